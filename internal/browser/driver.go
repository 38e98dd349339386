// Package browser starts playwright and adapts its pages to the login
// surface and page objects used by the suite.
package browser

import (
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/todo-e2e/internal/config"
	"github.com/kuitang/todo-e2e/internal/obs"
)

// Options selects and tunes the browser engine.
type Options struct {
	Browser       string // chromium, firefox or webkit
	Headless      bool
	SlowMo        time.Duration
	ActionTimeout time.Duration
}

// OptionsFromConfig derives launch options from the suite configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Browser:       cfg.Browser,
		Headless:      cfg.Headless,
		SlowMo:        cfg.SlowMo,
		ActionTimeout: cfg.ActionTimeout,
	}
}

// Driver owns one playwright process and one launched browser.
type Driver struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	opts    Options
}

// Launch starts playwright and the configured browser engine.
func Launch(opts Options) (*Driver, error) {
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = 5 * time.Second
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	var browserType playwright.BrowserType
	switch opts.Browser {
	case "firefox":
		browserType = pw.Firefox
	case "webkit":
		browserType = pw.WebKit
	default:
		browserType = pw.Chromium
	}

	launch := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	}
	if opts.SlowMo > 0 {
		launch.SlowMo = playwright.Float(float64(opts.SlowMo.Milliseconds()))
	}
	browser, err := browserType.Launch(launch)
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch %s: %w", browserType.Name(), err)
	}

	obs.Pkg("browser").Debug("browser_launched", "browser", browserType.Name(), "headless", opts.Headless)
	return &Driver{pw: pw, browser: browser, opts: opts}, nil
}

// ContextOptions configures one isolated browser context.
type ContextOptions struct {
	BaseURL string
	// StorageStatePath starts the context with saved cookies and local storage.
	StorageStatePath string
	// Correlation is sent as request headers so the application under test
	// can log against the same run and test.
	Correlation obs.Correlation
}

// NewContext creates a browser context with the driver's default timeouts.
func (d *Driver) NewContext(opts ContextOptions) (playwright.BrowserContext, error) {
	options := playwright.BrowserNewContextOptions{}
	if opts.BaseURL != "" {
		options.BaseURL = playwright.String(opts.BaseURL)
	}
	if opts.StorageStatePath != "" {
		options.StorageStatePath = playwright.String(opts.StorageStatePath)
	}
	if headers := correlationHeaders(opts.Correlation); len(headers) > 0 {
		options.ExtraHttpHeaders = headers
	}

	ctx, err := d.browser.NewContext(options)
	if err != nil {
		return nil, fmt.Errorf("create browser context: %w", err)
	}
	timeoutMS := float64(d.opts.ActionTimeout.Milliseconds())
	ctx.SetDefaultTimeout(timeoutMS)
	ctx.SetDefaultNavigationTimeout(timeoutMS)
	return ctx, nil
}

// NewPage creates a page in a fresh context. Closing the page's context
// releases both.
func (d *Driver) NewPage(opts ContextOptions) (playwright.Page, error) {
	ctx, err := d.NewContext(opts)
	if err != nil {
		return nil, err
	}
	page, err := ctx.NewPage()
	if err != nil {
		_ = ctx.Close()
		return nil, fmt.Errorf("create page: %w", err)
	}
	return page, nil
}

// Close shuts the browser and the playwright process down.
func (d *Driver) Close() error {
	var firstErr error
	if d.browser != nil {
		if err := d.browser.Close(); err != nil {
			firstErr = fmt.Errorf("close browser: %w", err)
		}
	}
	if d.pw != nil {
		if err := d.pw.Stop(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("stop playwright: %w", err)
		}
	}
	return firstErr
}

func correlationHeaders(corr obs.Correlation) map[string]string {
	headers := map[string]string{}
	if corr.RunID != "" {
		headers[obs.RunIDHeader] = corr.RunID
	}
	if corr.TestName != "" {
		headers[obs.TestNameHeader] = corr.TestName
	}
	return headers
}
