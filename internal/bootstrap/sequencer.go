// Package bootstrap waits for the RAG backend to become ready before chat
// input is enabled, reporting progress steps to a display collaborator.
package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vcetai/campuschat/internal/backend"
)

// Step identifies a phase of the startup sequence.
type Step string

const (
	StepServer      Step = "server"
	StepModel       Step = "model"
	StepVectorStore Step = "vectorStore"
	StepReady       Step = "ready"
)

// StepState is the display state of a step.
type StepState string

const (
	StateActive    StepState = "active"
	StateCompleted StepState = "completed"
	StateError     StepState = "error"
)

// Progress is one progress event. Warning is set once when polling has gone
// on past the soft threshold without the backend reporting ready.
type Progress struct {
	Step    Step
	State   StepState
	Percent int
	Warning bool
}

// ErrTimeout is returned when the backend never reports ready within the
// hard deadline. It is distinct from connection errors: the server was
// reachable but initialization never finished.
var ErrTimeout = errors.New("backend did not become ready before the deadline")

// HealthClient is the slice of the backend client the sequencer needs.
type HealthClient interface {
	Health(ctx context.Context) (backend.HealthResponse, error)
}

const (
	defaultInterval    = 2 * time.Second
	defaultSoftWarn    = 5 * time.Minute
	defaultHardTimeout = 30 * time.Minute
)

// Sequencer runs the startup state machine:
// server → model → vectorStore → ready.
type Sequencer struct {
	client      HealthClient
	interval    time.Duration
	softWarn    time.Duration
	hardTimeout time.Duration
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithTimings overrides the poll interval and both thresholds (tests).
func WithTimings(interval, softWarn, hardTimeout time.Duration) Option {
	return func(s *Sequencer) {
		s.interval = interval
		s.softWarn = softWarn
		s.hardTimeout = hardTimeout
	}
}

// New creates a sequencer with production timings: 2s polls, a soft warning
// at 5 minutes, and a hard timeout at 30 minutes.
func New(client HealthClient, opts ...Option) *Sequencer {
	s := &Sequencer{
		client:      client,
		interval:    defaultInterval,
		softWarn:    defaultSoftWarn,
		hardTimeout: defaultHardTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes the startup sequence, invoking onProgress for every state
// change. It returns nil once the backend reports ready, ErrTimeout when the
// hard deadline passes, ctx.Err() on cancellation (checked at poll
// boundaries only), or the classified failure when the very first probe
// cannot reach the server at all. A failed Run leaves no resumable state; a
// fresh Run starts over with reset counters.
func (s *Sequencer) Run(ctx context.Context, onProgress func(Progress)) error {
	emit := func(p Progress) {
		if onProgress != nil {
			onProgress(p)
		}
	}

	// Connecting: a single probe, no retry loop. A dead server is surfaced
	// immediately with a retry affordance left to the caller.
	emit(Progress{Step: StepServer, State: StateActive, Percent: 10})
	hr, err := s.client.Health(ctx)
	if err != nil {
		emit(Progress{Step: StepServer, State: StateError, Percent: 10})
		return err
	}
	emit(Progress{Step: StepServer, State: StateCompleted, Percent: 25})

	// Checking model: poll until rag_initialized. Transient failures count
	// as "not ready yet"; the backend may be mid-load.
	emit(Progress{Step: StepModel, State: StateActive, Percent: 40})
	start := time.Now()
	maxPolls := int(s.hardTimeout / s.interval)
	warned := false

	for polls := 0; !hr.RAGInitialized; polls++ {
		elapsed := time.Since(start)
		if elapsed >= s.hardTimeout || polls >= maxPolls {
			emit(Progress{Step: StepModel, State: StateError, Percent: 40})
			return ErrTimeout
		}
		if !warned && elapsed >= s.softWarn {
			warned = true
			emit(Progress{Step: StepModel, State: StateActive, Percent: 40, Warning: true})
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.interval):
		}

		hr, err = s.client.Health(ctx)
		if err != nil {
			slog.Debug("health poll failed, backend not ready yet", "error", err)
			hr = backend.HealthResponse{}
		}
	}
	emit(Progress{Step: StepModel, State: StateCompleted, Percent: 55})

	// The remaining steps are synthetic pacing for the display; the backend
	// bundles vector-store readiness into rag_initialized.
	emit(Progress{Step: StepVectorStore, State: StateActive, Percent: 70})
	emit(Progress{Step: StepVectorStore, State: StateCompleted, Percent: 85})
	emit(Progress{Step: StepReady, State: StateCompleted, Percent: 100})
	return nil
}
