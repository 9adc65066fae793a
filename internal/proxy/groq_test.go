package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newUpstream(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClientWithBaseURL("default-key", "llama-3.3-70b-versatile", srv.URL)
	c.backoff = time.Millisecond
	return c
}

const okBody = `{"choices":[{"message":{"role":"assistant","content":"VCET is a college in Madurai."}}]}`

func TestComplete_Success(t *testing.T) {
	var gotAuth string
	var gotReq map[string]any
	c := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.Write([]byte(okBody))
	})

	text, err := c.Complete(context.Background(), "", "You are a campus assistant.", "Tell me about VCET")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "VCET is a college in Madurai." {
		t.Errorf("text = %q", text)
	}
	if gotAuth != "Bearer default-key" {
		t.Errorf("Authorization = %q, want default key", gotAuth)
	}
	if gotReq["model"] != "llama-3.3-70b-versatile" {
		t.Errorf("model = %v", gotReq["model"])
	}
	msgs := gotReq["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want 2", len(msgs))
	}
}

func TestComplete_PerRequestKeyOverride(t *testing.T) {
	var gotAuth string
	c := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(okBody))
	})

	if _, err := c.Complete(context.Background(), "user-key", "sys", "q"); err != nil {
		t.Fatal(err)
	}
	if gotAuth != "Bearer user-key" {
		t.Errorf("Authorization = %q, want user key", gotAuth)
	}
}

func TestComplete_RetriesOn429(t *testing.T) {
	attempts := 0
	c := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(okBody))
	})

	text, err := c.Complete(context.Background(), "", "sys", "q")
	if err != nil {
		t.Fatalf("unexpected error after retries: %v", err)
	}
	if text == "" {
		t.Error("empty text")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestComplete_RateLimitExhaustsRetries(t *testing.T) {
	c := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.Complete(context.Background(), "", "sys", "q")
	if !IsRateLimit(err) {
		t.Fatalf("error = %v, want rate limit", err)
	}
}

func TestComplete_UnauthorizedNotRetried(t *testing.T) {
	attempts := 0
	c := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.Complete(context.Background(), "bad-key", "sys", "q")
	if !IsUnauthorized(err) {
		t.Fatalf("error = %v, want unauthorized", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (no retry on 401)", attempts)
	}
}

func TestComplete_ServerErrorNotRetried(t *testing.T) {
	attempts := 0
	c := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	})

	if _, err := c.Complete(context.Background(), "", "sys", "q"); err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}
