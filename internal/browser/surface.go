package browser

import (
	"context"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/todo-e2e/internal/session"
)

// Surface drives a playwright page on behalf of the session initiator.
type Surface struct {
	page          playwright.Page
	actionTimeout time.Duration
}

var _ session.Surface = (*Surface)(nil)

// NewSurface wraps page. Fill and Click are bounded by actionTimeout and by
// the caller's context deadline, whichever is sooner.
func NewSurface(page playwright.Page, actionTimeout time.Duration) *Surface {
	if actionTimeout <= 0 {
		actionTimeout = 5 * time.Second
	}
	return &Surface{page: page, actionTimeout: actionTimeout}
}

// Locate resolves a target into a locator on page. Combined fields must
// all match the same element.
func Locate(page playwright.Page, target session.Target) playwright.Locator {
	var parts []playwright.Locator
	if target.Selector != "" {
		parts = append(parts, page.Locator(target.Selector))
	}
	if target.Role != "" {
		opts := playwright.PageGetByRoleOptions{}
		if target.Name != "" {
			opts.Name = target.Name
		}
		parts = append(parts, page.GetByRole(playwright.AriaRole(target.Role), opts))
	}
	if target.Label != "" {
		parts = append(parts, page.GetByLabel(target.Label))
	}
	if target.Placeholder != nil {
		parts = append(parts, page.GetByPlaceholder(target.Placeholder))
	}
	if target.Text != nil {
		parts = append(parts, page.GetByText(target.Text))
	}

	if len(parts) == 0 {
		// Matches nothing; WaitVisible then runs to its deadline.
		return page.Locator("[data-todo-e2e-empty-target]")
	}
	locator := parts[0]
	for _, part := range parts[1:] {
		locator = locator.And(part)
	}
	return locator.First()
}

// Fill types value into the target input.
func (s *Surface) Fill(ctx context.Context, target session.Target, value string) error {
	timeout, err := timeoutMS(ctx, s.actionTimeout)
	if err != nil {
		return err
	}
	return Locate(s.page, target).Fill(value, playwright.LocatorFillOptions{
		Timeout: playwright.Float(timeout),
	})
}

// Click activates the target.
func (s *Surface) Click(ctx context.Context, target session.Target) error {
	timeout, err := timeoutMS(ctx, s.actionTimeout)
	if err != nil {
		return err
	}
	return Locate(s.page, target).Click(playwright.LocatorClickOptions{
		Timeout: playwright.Float(timeout),
	})
}

// WaitVisible blocks until the target is visible or ctx is done. Without a
// context deadline it waits up to the action timeout.
func (s *Surface) WaitVisible(ctx context.Context, target session.Target) error {
	timeout, err := waitTimeoutMS(ctx, s.actionTimeout)
	if err != nil {
		return err
	}
	locator := Locate(s.page, target)

	done := make(chan error, 1)
	go func() {
		done <- locator.WaitFor(playwright.LocatorWaitForOptions{
			State:   playwright.WaitForSelectorStateVisible,
			Timeout: playwright.Float(timeout),
		})
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// timeoutMS returns the smaller of fallback and the time left on ctx.
func timeoutMS(ctx context.Context, fallback time.Duration) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	timeout := fallback
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return 0, context.DeadlineExceeded
	}
	return float64(timeout.Milliseconds()) + 1, nil
}

// waitTimeoutMS uses the whole time left on ctx when it has a deadline.
func waitTimeoutMS(ctx context.Context, fallback time.Duration) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, context.DeadlineExceeded
		}
		return float64(remaining.Milliseconds()) + 1, nil
	}
	return float64(fallback.Milliseconds()), nil
}
