package api

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/singleflight"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB
	maxQueryLen        = 1000
)

// DefaultSuggestions is served by GET /api/suggestions.
var DefaultSuggestions = []string{
	"Tell me about Velammal College",
	"What courses are offered at VCET?",
	"What is the admission process?",
	"Tell me about placements at VCET",
	"Who is the principal of VCET?",
	"What are the facilities available?",
	"Tell me about the infrastructure",
	"What is the fee structure?",
	"How do I apply for admission?",
	"What about student clubs and activities?",
}

// Deps holds the collaborators for the API surface.
type Deps struct {
	Answerer Answerer
	Limiter  *Limiter
	Cache    *QueryCache
	Stats    *Stats
	// RequiredKey, when non-empty, must match the X-API-Key header on
	// /api/query. Empty means requests without a key use the server's
	// default upstream credential.
	RequiredKey string
	Suggestions []string
}

type handler struct {
	deps   Deps
	flight singleflight.Group
}

// NewHandler returns the http.Handler serving the campus chat API.
func NewHandler(deps Deps) http.Handler {
	if deps.Suggestions == nil {
		deps.Suggestions = DefaultSuggestions
	}
	if deps.Stats == nil {
		deps.Stats = NewStats()
	}
	h := &handler{deps: deps}

	r := chi.NewRouter()
	r.Use(corsMiddleware)
	r.Get("/api/health", h.handleHealth)
	r.Post("/api/query", h.handleQuery)
	r.Get("/api/stats", h.handleStats)
	r.Get("/api/suggestions", h.handleSuggestions)
	r.Post("/api/clear-cache", h.handleClearCache)
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"status":  "error",
		"message": fmt.Sprintf(format, args...),
	})
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "healthy",
		"rag_initialized": h.deps.Answerer != nil,
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	})
}

type queryBody struct {
	Query *string `json:"query"`
}

func (h *handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	clientID := clientAddr(r)

	if h.deps.RequiredKey != "" {
		key := r.Header.Get("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(h.deps.RequiredKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "missing or invalid API key")
			return
		}
	}

	if h.deps.Limiter != nil && !h.deps.Limiter.Allow(clientID) {
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"status":             "error",
			"message":            "Rate limit exceeded. Please try again later.",
			"remaining_requests": 0,
		})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	var body queryBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Query == nil {
		writeError(w, http.StatusBadRequest, "Query parameter is required")
		return
	}

	query := strings.TrimSpace(*body.Query)
	if query == "" {
		writeError(w, http.StatusBadRequest, "Query cannot be empty")
		return
	}
	if utf8.RuneCountInString(query) > maxQueryLen {
		writeError(w, http.StatusBadRequest, "Query is too long (max %d characters)", maxQueryLen)
		return
	}

	if h.deps.Answerer == nil {
		writeError(w, http.StatusServiceUnavailable, "RAG system is not initialized. Please try again later.")
		return
	}

	if h.deps.Cache != nil {
		if answer, ok := h.deps.Cache.Get(query); ok {
			h.deps.Stats.RecordHit()
			h.writeAnswer(w, r, answer, true, 0)
			return
		}
	}

	credential := r.Header.Get("X-API-Key")

	// Identical queries in flight collapse into a single upstream call.
	// The credential is part of the key so different users' quotas stay
	// separate.
	flightKey := cacheKey(query) + ":" + credential
	start := time.Now()
	answer, err, _ := h.flight.Do(flightKey, func() (any, error) {
		text, err := h.deps.Answerer.Answer(r.Context(), query, credential)
		return text, err
	})
	elapsed := time.Since(start)

	if err != nil {
		slog.Error("query failed", "error", err, "client", clientID)
		switch {
		case isUpstreamUnauthorized(err):
			writeError(w, http.StatusUnauthorized, "missing or invalid API key")
		case isUpstreamRateLimit(err):
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"status":             "error",
				"message":            "Rate limit exceeded. Please try again later.",
				"remaining_requests": remainingFor(h.deps.Limiter, clientID),
			})
		default:
			writeError(w, http.StatusInternalServerError, "Failed to process query. Please try again.")
		}
		return
	}

	text := answer.(string)
	h.deps.Stats.RecordMiss(elapsed)
	if h.deps.Cache != nil {
		h.deps.Cache.Set(query, text)
	}
	h.writeAnswer(w, r, text, false, elapsed.Seconds())
}

func (h *handler) writeAnswer(w http.ResponseWriter, r *http.Request, text string, cached bool, elapsed float64) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "success",
		"response":           text,
		"cached":             cached,
		"response_time":      math.Round(elapsed*100) / 100,
		"model":              h.deps.Answerer.Model(),
		"remaining_requests": remainingFor(h.deps.Limiter, clientAddr(r)),
	})
}

func (h *handler) handleStats(w http.ResponseWriter, r *http.Request) {
	snap := h.deps.Stats.Snapshot()
	stats := map[string]any{
		"total_queries":         snap.TotalQueries,
		"cache_hits":            snap.CacheHits,
		"cache_misses":          snap.CacheMisses,
		"cache_hit_rate":        snap.CacheHitRate,
		"average_response_time": snap.AverageResponseTime,
	}
	if h.deps.Answerer != nil {
		stats["llm_model"] = h.deps.Answerer.Model()
	}
	if h.deps.Cache != nil {
		stats["cache_size"] = h.deps.Cache.Len()
		stats["cache_max_size"] = h.deps.Cache.MaxSize()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "success",
		"stats":  stats,
	})
}

func (h *handler) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	suggestions := h.deps.Suggestions
	if raw := r.URL.Query().Get("count"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 && n < len(suggestions) {
			suggestions = suggestions[:n]
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "success",
		"suggestions": suggestions,
	})
}

func (h *handler) handleClearCache(w http.ResponseWriter, r *http.Request) {
	if h.deps.Cache != nil {
		h.deps.Cache.Purge()
	}
	slog.Info("query cache cleared")
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Cache cleared successfully",
	})
}

// clientAddr extracts the client host for rate limiting, ignoring the port.
func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func remainingFor(l *Limiter, clientID string) int {
	if l == nil {
		return -1
	}
	return l.Remaining(clientID)
}
