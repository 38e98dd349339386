// Package session establishes an authenticated browser session by submitting
// credentials on a login surface and racing the success marker against the
// rejection marker under one shared deadline.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/kuitang/todo-e2e/internal/errs"
	"github.com/kuitang/todo-e2e/internal/obs"
)

// DefaultDeadline bounds the race between the two markers.
const DefaultDeadline = 15 * time.Second

// Surface is the part of a page the initiator drives. WaitVisible blocks
// until the target is visible or ctx is done.
type Surface interface {
	Fill(ctx context.Context, target Target, value string) error
	Click(ctx context.Context, target Target) error
	WaitVisible(ctx context.Context, target Target) error
}

// Config holds the locators and deadline for an Initiator.
type Config struct {
	Form     LoginForm
	Markers  Markers
	Deadline time.Duration
}

// Initiator submits credentials and classifies the result. It owns its
// surface for the duration of one Establish call and does not retry.
type Initiator struct {
	surface  Surface
	form     LoginForm
	markers  Markers
	deadline time.Duration
}

// NewInitiator creates an initiator over surface. A zero Deadline means
// DefaultDeadline.
func NewInitiator(surface Surface, cfg Config) *Initiator {
	deadline := cfg.Deadline
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	return &Initiator{
		surface:  surface,
		form:     cfg.Form,
		markers:  cfg.Markers,
		deadline: deadline,
	}
}

// Deadline returns the shared wait bound for the marker race.
func (i *Initiator) Deadline() time.Duration {
	return i.deadline
}

type markerKind int

const (
	successMarker markerKind = iota
	rejectionMarker
)

type signal struct {
	kind markerKind
	err  error
}

// Establish fills the login form, submits it and waits for exactly one of
// the markers. Missing credentials fail before the surface is touched.
func (i *Initiator) Establish(ctx context.Context, creds Credentials) (Outcome, error) {
	if err := MissingCredentials(creds); err != nil {
		return 0, err
	}
	if i.form.Identifier.IsZero() || i.form.Secret.IsZero() || i.form.Submit.IsZero() {
		return 0, errs.New(errs.InvalidArgument, "session: login form targets are not configured")
	}
	if i.markers.Success.IsZero() || i.markers.Rejection.IsZero() {
		return 0, errs.New(errs.InvalidArgument, "session: success and rejection markers are not configured")
	}

	ctx = obs.WithCorrelation(ctx, obs.Correlation{AttemptID: obs.NewAttemptID()})
	logger := obs.From(ctx).With("pkg", "session")
	logger.Info("login_attempt_start", "credentials", creds, "deadline", i.deadline.String())

	if err := i.surface.Fill(ctx, i.form.Identifier, creds.Identifier); err != nil {
		logger.Warn("login_attempt_submit_failed", "step", "fill_identifier", "error", err)
		return Indeterminate, submitError("fill the identifier field", i.form.Identifier, err)
	}
	if err := i.surface.Fill(ctx, i.form.Secret, creds.Secret); err != nil {
		logger.Warn("login_attempt_submit_failed", "step", "fill_secret", "error", err)
		return Indeterminate, submitError("fill the secret field", i.form.Secret, err)
	}
	if err := i.surface.Click(ctx, i.form.Submit); err != nil {
		logger.Warn("login_attempt_submit_failed", "step", "submit", "error", err)
		return Indeterminate, submitError("trigger submit", i.form.Submit, err)
	}

	start := time.Now()
	outcome, expired, err := i.race(ctx, start)
	elapsed := time.Since(start)

	switch outcome {
	case Established:
		logger.Info("login_attempt_established", "elapsed_ms", elapsed.Milliseconds())
		return Established, nil
	case Rejected:
		logger.Warn("login_attempt_rejected", "elapsed_ms", elapsed.Milliseconds())
		return Rejected, rejectedError(creds, i.markers, elapsed)
	default:
		logger.Warn("login_attempt_indeterminate", "elapsed_ms", elapsed.Milliseconds(), "expired", expired, "error", err)
		if !expired {
			return Indeterminate, waitersFailedError(i.markers, elapsed, err)
		}
		return Indeterminate, indeterminateError(i.markers, i.deadline, err)
	}
}

// race launches one waiter per marker and returns on the first observation,
// on the shared deadline, or when both waiters have failed. expired is false
// only in the last case.
func (i *Initiator) race(ctx context.Context, start time.Time) (outcome Outcome, expired bool, err error) {
	raceCtx, cancel := context.WithDeadline(ctx, start.Add(i.deadline))
	defer cancel()

	// Buffered so the losing waiter never blocks after we return.
	results := make(chan signal, 2)
	wait := func(kind markerKind, target Target) {
		results <- signal{kind: kind, err: i.surface.WaitVisible(raceCtx, target)}
	}
	go wait(successMarker, i.markers.Success)
	go wait(rejectionMarker, i.markers.Rejection)

	var waitErrs []error
	for pending := 2; pending > 0; pending-- {
		select {
		case sig := <-results:
			if sig.err == nil {
				if sig.kind == successMarker {
					return Established, false, nil
				}
				return Rejected, false, nil
			}
			if raceCtx.Err() != nil {
				return Indeterminate, true, deadlineCause(ctx, raceCtx)
			}
			waitErrs = append(waitErrs, sig.err)
		case <-raceCtx.Done():
			return Indeterminate, true, deadlineCause(ctx, raceCtx)
		}
	}
	return Indeterminate, false, errors.Join(waitErrs...)
}

// deadlineCause separates caller cancellation from the race deadline.
func deadlineCause(parent, raceCtx context.Context) error {
	if err := parent.Err(); err != nil {
		return err
	}
	return raceCtx.Err()
}
