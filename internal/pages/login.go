// Package pages holds page objects for the login screen, the todo list and
// the signed-in navigation.
package pages

import (
	"context"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/todo-e2e/internal/browser"
	"github.com/kuitang/todo-e2e/internal/selectors"
	"github.com/kuitang/todo-e2e/internal/session"
)

// LoginPage drives the sign-in form.
type LoginPage struct {
	page    playwright.Page
	url     string
	form    session.LoginForm
	surface *browser.Surface
}

// NewLoginPage wraps page. loginURL is absolute, form says how to find the
// inputs and actionTimeout bounds each fill and click.
func NewLoginPage(page playwright.Page, loginURL string, form session.LoginForm, actionTimeout time.Duration) *LoginPage {
	return &LoginPage{
		page:    page,
		url:     loginURL,
		form:    form,
		surface: browser.NewSurface(page, actionTimeout),
	}
}

// Goto navigates to the login page and waits for the identifier input.
func (p *LoginPage) Goto(ctx context.Context) error {
	if _, err := p.page.Goto(p.url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return fmt.Errorf("navigate to %s: %w", p.url, err)
	}
	if err := p.surface.WaitVisible(ctx, p.form.Identifier); err != nil {
		return fmt.Errorf("login form did not render (%s): %w", p.form.Identifier, err)
	}
	return nil
}

func (p *LoginPage) FillIdentifier(ctx context.Context, value string) error {
	return p.surface.Fill(ctx, p.form.Identifier, value)
}

func (p *LoginPage) FillSecret(ctx context.Context, value string) error {
	return p.surface.Fill(ctx, p.form.Secret, value)
}

func (p *LoginPage) Submit(ctx context.Context) error {
	return p.surface.Click(ctx, p.form.Submit)
}

// ErrorText returns the rendered login error, or "" when there is none.
func (p *LoginPage) ErrorText() (string, error) {
	loc := p.page.Locator(selectors.TestID(selectors.LoginError))
	n, err := loc.Count()
	if err != nil || n == 0 {
		return "", err
	}
	return loc.First().InnerText()
}

// Surface exposes the page to a session.Initiator.
func (p *LoginPage) Surface() *browser.Surface {
	return p.surface
}

// Page returns the underlying playwright page.
func (p *LoginPage) Page() playwright.Page {
	return p.page
}

// Initiator builds a session initiator over this page's form.
func (p *LoginPage) Initiator(markers session.Markers, deadline time.Duration) *session.Initiator {
	return session.NewInitiator(p.surface, session.Config{
		Form:     p.form,
		Markers:  markers,
		Deadline: deadline,
	})
}

// Establish navigates to the form and runs one login attempt. Missing
// credentials are reported before the page is touched.
func (p *LoginPage) Establish(ctx context.Context, creds session.Credentials, markers session.Markers, deadline time.Duration) (session.Outcome, error) {
	if err := session.MissingCredentials(creds); err != nil {
		return 0, err
	}
	if err := p.Goto(ctx); err != nil {
		return session.Indeterminate, session.NavigationError(p.url, err)
	}
	return p.Initiator(markers, deadline).Establish(ctx, creds)
}
