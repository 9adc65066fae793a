// Package chat contains the query lifecycle controller: validation, the
// rate-limit bookkeeping around backend queries, and the blocked-state
// short-circuit. It owns no UI and no history; callers render results and
// append messages themselves.
package chat

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/vcetai/campuschat/internal/backend"
)

// maxQueryLen mirrors the backend's own limit so oversized input is rejected
// before it costs a round trip.
const maxQueryLen = 1000

// blockThreshold is the number of consecutive failures after which further
// queries are refused locally.
const blockThreshold = 3

// QueryResult is the normalized success value handed back to the caller.
type QueryResult struct {
	ResponseText   string
	Cached         bool
	ElapsedSeconds float64
	ModelID        string
}

// RateLimitState tracks quota bookkeeping across queries. Instances are
// owned by a Controller; tests read snapshots via State.
type RateLimitState struct {
	Blocked             bool
	ConsecutiveFailures int
	// RemainingQuota is -1 until the backend reports a value.
	RemainingQuota int
}

// QueryClient is the slice of the backend client the controller needs.
type QueryClient interface {
	Query(ctx context.Context, text string) (backend.QueryResponse, error)
}

// Controller orchestrates a single user's query stream. It is not safe for
// concurrent use; the caller serializes submissions (one in flight at a time).
type Controller struct {
	client    QueryClient
	modelID   string
	state     RateLimitState
	onBlocked func()
}

// Option configures a Controller.
type Option func(*Controller)

// WithBlockedSignal registers a callback fired exactly when the controller
// transitions to blocked, so the UI can show a persistent affordance rather
// than a transient error.
func WithBlockedSignal(fn func()) Option {
	return func(c *Controller) { c.onBlocked = fn }
}

// WithModelID sets the model identifier reported on results when the backend
// response does not carry one.
func WithModelID(id string) Option {
	return func(c *Controller) { c.modelID = id }
}

// NewController creates a controller with a fresh, unblocked state.
func NewController(client QueryClient, opts ...Option) *Controller {
	c := &Controller{
		client: client,
		state:  RateLimitState{RemainingQuota: -1},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns a snapshot of the rate-limit bookkeeping.
func (c *Controller) State() RateLimitState {
	return c.state
}

// Blocked reports whether queries are currently refused locally.
func (c *Controller) Blocked() bool {
	return c.state.Blocked
}

// Reset clears the blocked flag and the failure counter. Called when the
// user saves a new credential or explicitly resets the session.
func (c *Controller) Reset() {
	c.state.Blocked = false
	c.state.ConsecutiveFailures = 0
}

// SendQuery validates text, dispatches it to the backend, and applies the
// rate-limit bookkeeping. Failures are returned as *backend.Failure; the
// controller never retries on its own.
func (c *Controller) SendQuery(ctx context.Context, text string) (QueryResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return QueryResult{}, backend.NewValidationFailure("query cannot be empty")
	}
	if utf8.RuneCountInString(text) > maxQueryLen {
		return QueryResult{}, backend.NewValidationFailure("query is too long (max %d characters)", maxQueryLen)
	}

	if c.state.Blocked {
		return QueryResult{}, &backend.Failure{
			Kind:    backend.KindRateLimited,
			Message: "queries are blocked; save a new API credential to continue",
		}
	}

	resp, err := c.client.Query(ctx, text)
	if err != nil {
		c.recordFailure(err)
		return QueryResult{}, err
	}

	c.state.ConsecutiveFailures = 0
	if resp.RemainingRequests != nil {
		c.state.RemainingQuota = *resp.RemainingRequests
	}

	model := resp.Model
	if model == "" {
		model = c.modelID
	}
	return QueryResult{
		ResponseText:   resp.Response,
		Cached:         resp.Cached,
		ElapsedSeconds: resp.ResponseTime,
		ModelID:        model,
	}, nil
}

// recordFailure updates the consecutive-failure counter and decides whether
// to block. Timeouts count toward the counter but never trip the block on
// their own: only a non-timeout failure evaluates the threshold, so a flaky
// network alone cannot lock the user out.
func (c *Controller) recordFailure(err error) {
	c.state.ConsecutiveFailures++

	if backend.IsRateLimited(err) {
		c.block()
		return
	}
	if !backend.IsTimeout(err) && c.state.ConsecutiveFailures >= blockThreshold {
		c.block()
	}
}

func (c *Controller) block() {
	if c.state.Blocked {
		return
	}
	c.state.Blocked = true
	slog.Warn("query controller blocked", "consecutive_failures", c.state.ConsecutiveFailures)
	if c.onBlocked != nil {
		c.onBlocked()
	}
}
