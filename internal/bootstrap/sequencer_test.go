package bootstrap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vcetai/campuschat/internal/backend"
)

// fakeHealth scripts health responses; after the script runs out it keeps
// returning the last element.
type fakeHealth struct {
	calls   int
	respond func(call int) (backend.HealthResponse, error)
}

func (f *fakeHealth) Health(ctx context.Context) (backend.HealthResponse, error) {
	f.calls++
	return f.respond(f.calls)
}

func ready() (backend.HealthResponse, error) {
	return backend.HealthResponse{Status: "healthy", RAGInitialized: true}, nil
}

func notReady() (backend.HealthResponse, error) {
	return backend.HealthResponse{Status: "healthy", RAGInitialized: false}, nil
}

func collect() (*[]Progress, func(Progress)) {
	var events []Progress
	return &events, func(p Progress) { events = append(events, p) }
}

func TestRun_ImmediatelyReady(t *testing.T) {
	fh := &fakeHealth{respond: func(int) (backend.HealthResponse, error) { return ready() }}
	events, onProgress := collect()

	s := New(fh, WithTimings(time.Millisecond, 10*time.Millisecond, 50*time.Millisecond))
	if err := s.Run(context.Background(), onProgress); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []struct {
		step  Step
		state StepState
	}{
		{StepServer, StateActive},
		{StepServer, StateCompleted},
		{StepModel, StateActive},
		{StepModel, StateCompleted},
		{StepVectorStore, StateActive},
		{StepVectorStore, StateCompleted},
		{StepReady, StateCompleted},
	}
	if len(*events) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(*events), len(want), *events)
	}
	for i, w := range want {
		e := (*events)[i]
		if e.Step != w.step || e.State != w.state {
			t.Errorf("event %d = %s/%s, want %s/%s", i, e.Step, e.State, w.step, w.state)
		}
	}
	last := (*events)[len(*events)-1]
	if last.Percent != 100 {
		t.Errorf("final percent = %d, want 100", last.Percent)
	}
	if fh.calls != 1 {
		t.Errorf("health calls = %d, want 1", fh.calls)
	}
}

func TestRun_ConnectFailureIsTerminal(t *testing.T) {
	netErr := &backend.Failure{Kind: backend.KindNetwork, Message: "connection refused"}
	fh := &fakeHealth{respond: func(int) (backend.HealthResponse, error) {
		return backend.HealthResponse{}, netErr
	}}
	events, onProgress := collect()

	s := New(fh, WithTimings(time.Millisecond, 10*time.Millisecond, 50*time.Millisecond))
	err := s.Run(context.Background(), onProgress)
	if backend.KindOf(err) != backend.KindNetwork {
		t.Fatalf("error = %v, want network failure", err)
	}
	if errors.Is(err, ErrTimeout) {
		t.Error("connect failure reported as timeout")
	}
	if fh.calls != 1 {
		t.Errorf("health calls = %d, want 1 (no retry loop on connect)", fh.calls)
	}
	last := (*events)[len(*events)-1]
	if last.Step != StepServer || last.State != StateError {
		t.Errorf("last event = %s/%s, want server/error", last.Step, last.State)
	}
}

func TestRun_NeverReadyTimesOut(t *testing.T) {
	fh := &fakeHealth{respond: func(int) (backend.HealthResponse, error) { return notReady() }}
	events, onProgress := collect()

	interval := time.Millisecond
	hard := 40 * time.Millisecond
	s := New(fh, WithTimings(interval, 10*time.Millisecond, hard))

	err := s.Run(context.Background(), onProgress)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}

	// Poll ceiling: never more than hard/interval polls (+1 initial probe).
	ceiling := int(hard/interval) + 1
	if fh.calls > ceiling {
		t.Errorf("health calls = %d, exceeds ceiling %d", fh.calls, ceiling)
	}

	timeouts := 0
	warnings := 0
	for _, e := range *events {
		if e.Step == StepModel && e.State == StateError {
			timeouts++
		}
		if e.Warning {
			warnings++
		}
	}
	if timeouts != 1 {
		t.Errorf("model error events = %d, want exactly 1", timeouts)
	}
	if warnings != 1 {
		t.Errorf("warning events = %d, want exactly 1", warnings)
	}
}

func TestRun_TransientPollFailuresAreNotReady(t *testing.T) {
	fh := &fakeHealth{respond: func(call int) (backend.HealthResponse, error) {
		switch call {
		case 1:
			return notReady()
		case 2:
			return backend.HealthResponse{}, &backend.Failure{Kind: backend.KindServer, Code: 503}
		default:
			return ready()
		}
	}}

	s := New(fh, WithTimings(time.Millisecond, 50*time.Millisecond, 200*time.Millisecond))
	if err := s.Run(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fh.calls != 3 {
		t.Errorf("health calls = %d, want 3", fh.calls)
	}
}

func TestRun_CancelledAtPollBoundary(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fh := &fakeHealth{respond: func(call int) (backend.HealthResponse, error) {
		if call == 2 {
			cancel()
		}
		return notReady()
	}}

	s := New(fh, WithTimings(time.Millisecond, 50*time.Millisecond, time.Second))
	err := s.Run(ctx, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}
