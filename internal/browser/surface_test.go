package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kuitang/todo-e2e/internal/obs"
)

func TestTimeoutMS_UsesSoonerOfFallbackAndDeadline(t *testing.T) {
	t.Parallel()

	got, err := timeoutMS(context.Background(), 2*time.Second)
	if err != nil || got != 2001 {
		t.Fatalf("timeoutMS(no deadline) = %v, %v; want 2001", got, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	got, err = timeoutMS(ctx, 5*time.Second)
	if err != nil {
		t.Fatalf("timeoutMS(deadline) error = %v", err)
	}
	if got > 201 || got < 1 {
		t.Fatalf("timeoutMS(deadline) = %v, want <= 201", got)
	}
}

func TestTimeoutMS_ExpiredContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := timeoutMS(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("timeoutMS(cancelled) error = %v, want context.Canceled", err)
	}
	if _, err := waitTimeoutMS(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("waitTimeoutMS(cancelled) error = %v, want context.Canceled", err)
	}
}

func TestWaitTimeoutMS_PrefersDeadlineOverFallback(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	got, err := waitTimeoutMS(ctx, time.Second)
	if err != nil {
		t.Fatalf("waitTimeoutMS error = %v", err)
	}
	if got < 14000 {
		t.Fatalf("waitTimeoutMS = %v, want the ~15s race deadline", got)
	}

	got, err = waitTimeoutMS(context.Background(), time.Second)
	if err != nil || got != 1000 {
		t.Fatalf("waitTimeoutMS(no deadline) = %v, %v; want 1000", got, err)
	}
}

func TestCorrelationHeaders(t *testing.T) {
	t.Parallel()

	if got := correlationHeaders(obs.Correlation{}); len(got) != 0 {
		t.Fatalf("correlationHeaders(empty) = %v, want none", got)
	}
	got := correlationHeaders(obs.Correlation{RunID: "run-1", TestName: "TestLogin"})
	if got[obs.RunIDHeader] != "run-1" || got[obs.TestNameHeader] != "TestLogin" {
		t.Fatalf("correlationHeaders = %v", got)
	}
}
