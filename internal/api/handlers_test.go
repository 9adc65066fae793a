package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// fakeAnswerer returns a canned answer and records calls.
type fakeAnswerer struct {
	calls   int
	answer  string
	err     error
	lastKey string
}

func (f *fakeAnswerer) Answer(ctx context.Context, query, credential string) (string, error) {
	f.calls++
	f.lastKey = credential
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func (f *fakeAnswerer) Model() string { return "llama-3.3-70b-versatile" }

func newTestHandler(t *testing.T, deps Deps) http.Handler {
	t.Helper()
	if deps.Cache == nil {
		deps.Cache = NewQueryCache(100, 0)
	}
	return NewHandler(deps)
}

func postQuery(h http.Handler, body string, headers map[string]string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(body))
	req.RemoteAddr = "203.0.113.7:54321"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	return body
}

func TestQuery_Success(t *testing.T) {
	fa := &fakeAnswerer{answer: "VCET offers CSE, ECE, EEE, Mech and Civil."}
	h := newTestHandler(t, Deps{Answerer: fa})

	rr := postQuery(h, `{"query":"What courses are offered at VCET?"}`, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", rr.Code, rr.Body.String())
	}
	body := decodeBody(t, rr)
	if body["status"] != "success" {
		t.Errorf("status = %v", body["status"])
	}
	if body["response"] != fa.answer {
		t.Errorf("response = %v", body["response"])
	}
	if body["cached"] != false {
		t.Errorf("cached = %v, want false", body["cached"])
	}
}

func TestQuery_Validation(t *testing.T) {
	fa := &fakeAnswerer{answer: "x"}
	h := newTestHandler(t, Deps{Answerer: fa})

	cases := []struct {
		name string
		body string
	}{
		{"no body", ``},
		{"missing query", `{}`},
		{"empty query", `{"query":""}`},
		{"blank query", `{"query":"   "}`},
		{"too long", fmt.Sprintf(`{"query":%q}`, strings.Repeat("x", 1001))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := postQuery(h, tc.body, nil)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rr.Code)
			}
		})
	}
	if fa.calls != 0 {
		t.Errorf("answerer calls = %d, want 0", fa.calls)
	}
}

func TestQuery_SecondCallServedFromCache(t *testing.T) {
	fa := &fakeAnswerer{answer: "cached answer"}
	stats := NewStats()
	h := newTestHandler(t, Deps{Answerer: fa, Stats: stats})

	postQuery(h, `{"query":"Tell me about placements"}`, nil)
	rr := postQuery(h, `{"query":"  tell me about PLACEMENTS  "}`, nil)

	body := decodeBody(t, rr)
	if body["cached"] != true {
		t.Errorf("cached = %v, want true (normalized key match)", body["cached"])
	}
	if fa.calls != 1 {
		t.Errorf("answerer calls = %d, want 1", fa.calls)
	}

	snap := stats.Snapshot()
	if snap.TotalQueries != 2 || snap.CacheHits != 1 || snap.CacheMisses != 1 {
		t.Errorf("stats = %+v", snap)
	}
}

func TestQuery_RateLimited(t *testing.T) {
	fa := &fakeAnswerer{answer: "x"}
	h := newTestHandler(t, Deps{
		Answerer: fa,
		Limiter:  NewLimiter(2, time.Minute),
	})

	for i := 0; i < 2; i++ {
		if rr := postQuery(h, fmt.Sprintf(`{"query":"q%d"}`, i), nil); rr.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, rr.Code)
		}
	}
	rr := postQuery(h, `{"query":"q3"}`, nil)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["remaining_requests"] != float64(0) {
		t.Errorf("remaining_requests = %v, want 0", body["remaining_requests"])
	}
}

func TestQuery_RequiredKey(t *testing.T) {
	fa := &fakeAnswerer{answer: "x"}
	h := newTestHandler(t, Deps{Answerer: fa, RequiredKey: "sekrit"})

	if rr := postQuery(h, `{"query":"q"}`, nil); rr.Code != http.StatusUnauthorized {
		t.Errorf("missing key: status = %d, want 401", rr.Code)
	}
	if rr := postQuery(h, `{"query":"q"}`, map[string]string{"X-API-Key": "wrong"}); rr.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: status = %d, want 401", rr.Code)
	}
	if rr := postQuery(h, `{"query":"q"}`, map[string]string{"X-API-Key": "sekrit"}); rr.Code != http.StatusOK {
		t.Errorf("correct key: status = %d, want 200", rr.Code)
	}
}

func TestQuery_CredentialPassedUpstream(t *testing.T) {
	fa := &fakeAnswerer{answer: "x"}
	h := newTestHandler(t, Deps{Answerer: fa})

	postQuery(h, `{"query":"q"}`, map[string]string{"X-API-Key": "gsk-user"})
	if fa.lastKey != "gsk-user" {
		t.Errorf("upstream credential = %q, want gsk-user", fa.lastKey)
	}
}

func TestQuery_UpstreamFailure(t *testing.T) {
	fa := &fakeAnswerer{err: fmt.Errorf("upstream exploded")}
	h := newTestHandler(t, Deps{Answerer: fa})

	rr := postQuery(h, `{"query":"q"}`, nil)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["status"] != "error" {
		t.Errorf("status field = %v", body["status"])
	}
}

func TestQuery_NoAnswerer(t *testing.T) {
	h := newTestHandler(t, Deps{})
	rr := postQuery(h, `{"query":"q"}`, nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
}

func TestHealth(t *testing.T) {
	h := newTestHandler(t, Deps{Answerer: &fakeAnswerer{}})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["status"] != "healthy" {
		t.Errorf("status = %v", body["status"])
	}
	if body["rag_initialized"] != true {
		t.Errorf("rag_initialized = %v, want true", body["rag_initialized"])
	}
}

func TestSuggestions(t *testing.T) {
	h := newTestHandler(t, Deps{Answerer: &fakeAnswerer{}})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/suggestions?count=3", nil))
	body := decodeBody(t, rr)
	got := body["suggestions"].([]any)
	if len(got) != 3 {
		t.Errorf("len = %d, want 3", len(got))
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/suggestions", nil))
	body = decodeBody(t, rr)
	if got := body["suggestions"].([]any); len(got) != len(DefaultSuggestions) {
		t.Errorf("len = %d, want %d", len(got), len(DefaultSuggestions))
	}
}

func TestClearCache(t *testing.T) {
	fa := &fakeAnswerer{answer: "x"}
	cache := NewQueryCache(10, 0)
	h := newTestHandler(t, Deps{Answerer: fa, Cache: cache})

	postQuery(h, `{"query":"q"}`, nil)
	if cache.Len() != 1 {
		t.Fatalf("cache len = %d, want 1", cache.Len())
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/clear-cache", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if cache.Len() != 0 {
		t.Errorf("cache len after clear = %d, want 0", cache.Len())
	}

	// The next identical query is answered upstream again.
	rr = postQuery(h, `{"query":"q"}`, nil)
	if body := decodeBody(t, rr); body["cached"] != false {
		t.Errorf("cached = %v, want false after clear", body["cached"])
	}
}

func TestStatsEndpoint(t *testing.T) {
	fa := &fakeAnswerer{answer: "x"}
	h := newTestHandler(t, Deps{Answerer: fa})

	postQuery(h, `{"query":"q"}`, nil)
	postQuery(h, `{"query":"q"}`, nil)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	body := decodeBody(t, rr)
	stats := body["stats"].(map[string]any)
	if stats["total_queries"] != float64(2) {
		t.Errorf("total_queries = %v, want 2", stats["total_queries"])
	}
	if stats["cache_hits"] != float64(1) {
		t.Errorf("cache_hits = %v, want 1", stats["cache_hits"])
	}
	if stats["llm_model"] != "llama-3.3-70b-versatile" {
		t.Errorf("llm_model = %v", stats["llm_model"])
	}
}

func TestCORSPreflight(t *testing.T) {
	h := newTestHandler(t, Deps{Answerer: &fakeAnswerer{}})

	for _, path := range []string{"/api/query", "/api/health", "/api/stats", "/api/suggestions", "/api/clear-cache"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, path, nil))
		if rr.Code != http.StatusOK {
			t.Errorf("OPTIONS %s: status = %d, want 200", path, rr.Code)
		}
		if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
			t.Errorf("OPTIONS %s: Allow-Origin = %q, want *", path, got)
		}
	}
}

func TestCORSHeadersOnRegularResponses(t *testing.T) {
	h := newTestHandler(t, Deps{Answerer: &fakeAnswerer{answer: "x"}})
	rr := postQuery(h, `{"query":"q"}`, nil)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q, want *", got)
	}
}
