// Package selectors holds the data-testid attribute selectors shared by the
// page objects and the login fixture.
package selectors

import (
	"fmt"
	"regexp"

	"github.com/kuitang/todo-e2e/internal/session"
)

// Test ids rendered by the application under test.
const (
	LoginForm       = "login-form"
	LoginIdentifier = "login-identifier"
	LoginSecret     = "login-secret"
	LoginSubmit     = "login-submit"
	LoginError      = "login-error"

	NavUser   = "nav-user"
	NavLogout = "nav-logout"

	TodoNew            = "todo-new"
	TodoList           = "todo-list"
	TodoItem           = "todo-item"
	TodoTitle          = "todo-title"
	TodoToggle         = "todo-toggle"
	TodoEdit           = "todo-edit"
	TodoDelete         = "todo-delete"
	TodoCount          = "todo-count"
	TodoFilterAll      = "filter-all"
	TodoFilterActive   = "filter-active"
	TodoFilterDone     = "filter-completed"
	TodoClearCompleted = "clear-completed"
)

// TestID returns the attribute selector for a data-testid value.
func TestID(id string) string {
	return fmt.Sprintf(`[data-testid=%q]`, id)
}

// Within scopes a child test id under a parent test id.
func Within(parent, child string) string {
	return TestID(parent) + " " + TestID(child)
}

var (
	todoPlaceholder = regexp.MustCompile(`(?i)what|todo|add|new`)
	rejectionText   = regexp.MustCompile(`(?i)invalid (credentials|email or password|username or password)`)
)

// LoginFormTargets locates the login inputs by stable attribute selectors.
func LoginFormTargets() session.LoginForm {
	return session.LoginForm{
		Identifier: session.Target{Selector: TestID(LoginIdentifier)},
		Secret:     session.Target{Selector: TestID(LoginSecret)},
		Submit:     session.Target{Selector: TestID(LoginSubmit)},
	}
}

// AccessibleLoginFormTargets locates the login inputs by label and role, for
// deployments that do not render test ids.
func AccessibleLoginFormTargets() session.LoginForm {
	return session.LoginForm{
		Identifier: session.Target{Label: "Email"},
		Secret:     session.Target{Label: "Password"},
		Submit:     session.Target{Role: "button", Name: "Sign in"},
	}
}

// LoginMarkers returns the success and rejection markers. Success is the new
// todo textbox, which only exists in the authenticated area.
func LoginMarkers() session.Markers {
	return session.Markers{
		Success:   session.Target{Role: "textbox", Placeholder: todoPlaceholder},
		Rejection: session.Target{Text: rejectionText},
	}
}

// FormTargets picks the login form targets for a selector strategy
// ("testid" or "accessible").
func FormTargets(strategy string) session.LoginForm {
	if strategy == "accessible" {
		return AccessibleLoginFormTargets()
	}
	return LoginFormTargets()
}
