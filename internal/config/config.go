// Package config loads campuschat configuration from a flat JSON config
// file with CAMPUSCHAT_* environment overrides. Secrets (the Groq API key)
// are accepted via environment variables only and are never written to the
// config file.
package config

import "os"

type Config struct {
	Backend   BackendConfig
	Server    ServerConfig
	Proxy     ProxyConfig
	Storage   StorageConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Log       LogConfig
}

// BackendConfig points the chat client at the RAG backend.
type BackendConfig struct {
	BaseURL        string
	TimeoutSeconds int
}

// ServerConfig configures the serve command.
type ServerConfig struct {
	Port int
	// RequiredAPIKey, when set, is demanded on /api/query. Secret: env only.
	RequiredAPIKey string
}

// ProxyConfig configures the upstream LLM used by the serve command.
type ProxyConfig struct {
	// GroqAPIKey is the server's default upstream credential. Secret: env only.
	GroqAPIKey string
	Model      string
}

type StorageConfig struct {
	DataDir string
}

type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
}

type CacheConfig struct {
	Size       int
	TTLMinutes int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Backend: BackendConfig{
			BaseURL:        "http://localhost:5000",
			TimeoutSeconds: 60,
		},
		Server: ServerConfig{
			Port: 8080,
		},
		Proxy: ProxyConfig{
			Model: "llama-3.3-70b-versatile",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 30,
		},
		Cache: CacheConfig{
			Size:       100,
			TTLMinutes: 0,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the JSON file backend at
// $XDG_CONFIG_HOME/campuschat/config.json, then applies CAMPUSCHAT_*
// environment overrides. A missing file means pure defaults.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()))
}

func loadWith(b Backend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}
	applyEnvOverrides(&cfg)

	// The bare GROQ_API_KEY is honored as a fallback so the serve command
	// works in an environment prepared for the Python backend.
	if cfg.Proxy.GroqAPIKey == "" {
		cfg.Proxy.GroqAPIKey = os.Getenv("GROQ_API_KEY")
	}

	return cfg, nil
}
