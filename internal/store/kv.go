// Package store provides the persistent key-value settings store used by the
// chat client: credential, theme, preferences, last visit. Operations never
// return errors; when the backing store is unavailable they degrade to
// defaults and report false, so callers always receive a usable value.
package store

// Well-known keys. Raw string keys bypass JSON serialization.
const (
	KeyCredential  = "api_credential" // raw
	KeyTheme       = "theme"          // raw, "light" or "dark"
	KeyPreferences = "preferences"    // JSON object
	KeyLastVisit   = "last_visit"     // raw, RFC 3339 timestamp
)

// KV is the settings store contract. Structured values round-trip through
// JSON; GetRaw/SetRaw handle plain scalars without serialization.
type KV interface {
	// Get decodes the value at key into out, reporting whether a value was
	// found and decoded. On false, out is left untouched.
	Get(key string, out any) bool
	// Set stores v under key, reporting success.
	Set(key string, v any) bool
	// GetRaw returns the raw string at key, or def when absent.
	GetRaw(key, def string) string
	// SetRaw stores a raw string under key, reporting success.
	SetRaw(key, val string) bool
	// Remove deletes key, reporting success. Removing an absent key succeeds.
	Remove(key string) bool
	// Has reports whether key is present.
	Has(key string) bool
}
