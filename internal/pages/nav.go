package pages

import (
	"fmt"
	"strings"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/todo-e2e/internal/selectors"
)

// Nav is the signed-in header.
type Nav struct {
	page playwright.Page
}

func NewNav(page playwright.Page) *Nav {
	return &Nav{page: page}
}

// IsAuthenticated reports whether the header shows a signed-in user.
func (n *Nav) IsAuthenticated() (bool, error) {
	count, err := n.page.Locator(selectors.TestID(selectors.NavUser)).Count()
	if err != nil {
		return false, fmt.Errorf("read nav: %w", err)
	}
	return count > 0, nil
}

// User returns the signed-in identifier shown in the header.
func (n *Nav) User() (string, error) {
	text, err := n.page.Locator(selectors.TestID(selectors.NavUser)).InnerText()
	if err != nil {
		return "", fmt.Errorf("read nav user: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// Logout signs out and waits for the resulting page.
func (n *Nav) Logout() error {
	if err := n.page.Locator(selectors.TestID(selectors.NavLogout)).Click(); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	if err := n.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State: playwright.LoadStateDomcontentloaded,
	}); err != nil {
		return fmt.Errorf("logout: wait for reload: %w", err)
	}
	return nil
}
