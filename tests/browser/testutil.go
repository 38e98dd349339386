// Package browser provides the shared fixture for Playwright browser tests.
// All browser test files use BrowserTestEnv via SetupBrowserTestEnv(t).
package browser

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/todo-e2e/internal/artifacts"
	e2ebrowser "github.com/kuitang/todo-e2e/internal/browser"
	"github.com/kuitang/todo-e2e/internal/config"
	"github.com/kuitang/todo-e2e/internal/demoapp"
	"github.com/kuitang/todo-e2e/internal/obs"
	"github.com/kuitang/todo-e2e/internal/pages"
	"github.com/kuitang/todo-e2e/internal/ratelimit"
	"github.com/kuitang/todo-e2e/internal/report"
	"github.com/kuitang/todo-e2e/internal/selectors"
	"github.com/kuitang/todo-e2e/internal/session"
)

const (
	// Page actions and navigations never wait longer than this. Login races
	// use the configured E2E_LOGIN_TIMEOUT instead.
	browserMaxTimeoutMS = 5000
	browserMaxTimeout   = 5 * time.Second

	// StallIdentifier is an account whose logins never resolve on the demo app.
	StallIdentifier = "stall@example.com"
)

var browserFixtureMu sync.Mutex
var browserSharedFixture *BrowserTestEnv

// BrowserTestEnv is the shared environment for all browser tests: the
// application under test (the bundled demo app unless E2E_BASE_URL is set),
// one launched browser, an artifact store and the run report.
type BrowserTestEnv struct {
	Config    *config.Config
	App       *demoapp.App // nil against a hosted application
	Server    *httptest.Server
	BaseURL   string
	RunID     string
	Artifacts artifacts.Store
	Report    *report.Recorder
	TempDir   string

	driver     *e2ebrowser.Driver
	driverErr  error
	driverOnce sync.Once

	authMu    sync.Mutex
	authState string
}

// SetupBrowserTestEnv returns the shared environment, creating it on first use.
func SetupBrowserTestEnv(t *testing.T) *BrowserTestEnv {
	t.Helper()

	browserFixtureMu.Lock()
	defer browserFixtureMu.Unlock()

	if browserSharedFixture != nil {
		return browserSharedFixture
	}
	browserSharedFixture = createBrowserTestEnv(t)
	return browserSharedFixture
}

func createBrowserTestEnv(t *testing.T) *BrowserTestEnv {
	t.Helper()

	obs.Init()
	root := repositoryRoot()
	if err := config.LoadEnvFiles(filepath.Join(root, ".env.local"), filepath.Join(root, ".env")); err != nil {
		t.Fatalf("Failed to load env files: %v", err)
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		t.Fatalf("Failed to load configuration: %v", err)
	}

	tempDir, err := os.MkdirTemp("", "todo-e2e-browser-*")
	if err != nil {
		t.Fatalf("Failed to create shared browser fixture temp dir: %v", err)
	}

	store, err := artifacts.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to create artifact store: %v", err)
	}

	runID := obs.NewRunID()
	env := &BrowserTestEnv{
		Config:    cfg,
		BaseURL:   cfg.BaseURL,
		RunID:     runID,
		Artifacts: store,
		Report:    report.NewRecorder(runID),
		TempDir:   tempDir,
	}

	if cfg.UsesDemoApp() {
		env.startDemoApp(t)
	}
	return env
}

// startDemoApp serves the bundled app with fast hashing and generous
// throttling, seeded with the demo account and the configured one.
func (env *BrowserTestEnv) startDemoApp(t *testing.T) {
	t.Helper()

	app, err := demoapp.New(demoapp.Options{
		Hasher: demoapp.FakeInsecureHasher{},
		Throttle: ratelimit.Config{
			AttemptsPerSecond: 10000,
			Burst:             100000,
			CleanupInterval:   time.Hour,
		},
	})
	if err != nil {
		t.Fatalf("Failed to create demo app: %v", err)
	}
	if err := app.Seed(); err != nil {
		t.Fatalf("Failed to seed demo app: %v", err)
	}
	if env.Config.HasCredentials() {
		if err := app.AddUser(env.Config.Username, env.Config.Password); err != nil && !errors.Is(err, demoapp.ErrAccountExists) {
			t.Fatalf("Failed to register configured account in demo app: %v", err)
		}
	}
	if err := app.AddUser(StallIdentifier, demoapp.DemoPassword); err != nil {
		t.Fatalf("Failed to register stall account: %v", err)
	}
	app.StallLogins(StallIdentifier)

	env.App = app
	env.Server = httptest.NewServer(app.Handler())
	env.BaseURL = env.Server.URL
}

func cleanupSharedBrowserTestEnv() {
	browserFixtureMu.Lock()
	defer browserFixtureMu.Unlock()

	env := browserSharedFixture
	if env == nil {
		return
	}
	if env.Report.Len() > 0 {
		if loc, err := env.Report.Publish(context.Background(), env.Artifacts); err != nil {
			fmt.Fprintf(os.Stderr, "publish run report: %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "run report: %s\n", loc)
		}
	}
	if env.driver != nil {
		_ = env.driver.Close()
	}
	if env.Server != nil {
		env.Server.Close()
	}
	if env.App != nil {
		env.App.Close()
	}
	if env.TempDir != "" {
		_ = os.RemoveAll(env.TempDir)
	}
	browserSharedFixture = nil
}

func TestMain(m *testing.M) {
	code := m.Run()
	cleanupSharedBrowserTestEnv()
	os.Exit(code)
}

func repositoryRoot() string {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		panic("Failed to resolve repository root for test utilities")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
}

// =============================================================================
// Browser lifecycle helpers
// =============================================================================

// InitBrowser launches the configured browser once. Skips the test in -short
// mode or when Playwright is not available.
func (env *BrowserTestEnv) InitBrowser(t *testing.T) {
	t.Helper()

	if testing.Short() {
		t.Skip("browser tests are skipped in -short mode")
	}
	env.driverOnce.Do(func() {
		opts := e2ebrowser.OptionsFromConfig(env.Config)
		if opts.ActionTimeout > browserMaxTimeout {
			opts.ActionTimeout = browserMaxTimeout
		}
		env.driver, env.driverErr = e2ebrowser.Launch(opts)
	})
	if env.driverErr != nil {
		t.Skip("Playwright not available:", env.driverErr)
	}
}

// NewPage opens a page in a fresh context tagged with the run and test name.
// When the test fails, a capture of the page is stored before it closes.
func (env *BrowserTestEnv) NewPage(t *testing.T) playwright.Page {
	t.Helper()
	return env.newPage(t, "")
}

func (env *BrowserTestEnv) newPage(t *testing.T, storageState string) playwright.Page {
	t.Helper()
	env.InitBrowser(t)

	page, err := env.driver.NewPage(e2ebrowser.ContextOptions{
		BaseURL:          env.BaseURL,
		StorageStatePath: storageState,
		Correlation:      obs.Correlation{RunID: env.RunID, TestName: t.Name()},
	})
	if err != nil {
		t.Fatalf("could not create page: %v", err)
	}
	t.Cleanup(func() {
		if t.Failed() {
			env.captureFailure(t, page)
		}
		_ = page.Context().Close()
	})
	return page
}

// captureFailure stores a screenshot and the page HTML for a failed test.
func (env *BrowserTestEnv) captureFailure(t *testing.T, page playwright.Page) {
	t.Helper()

	snap, err := e2ebrowser.Capture(page)
	if err != nil {
		t.Logf("partial failure capture: %v", err)
	}
	t.Logf("page at failure: %s", snap.Summary())

	ctx, cancel := context.WithTimeout(context.Background(), browserMaxTimeout)
	defer cancel()

	var locations []string
	if len(snap.Screenshot) > 0 {
		loc, err := env.Artifacts.Put(ctx, artifacts.Key(env.RunID, t.Name(), "failure.png"), snap.Screenshot, "image/png")
		if err != nil {
			t.Logf("store screenshot: %v", err)
		} else {
			locations = append(locations, loc)
		}
	}
	if content, err := page.Content(); err == nil {
		loc, err := env.Artifacts.Put(ctx, artifacts.Key(env.RunID, t.Name(), "page.html"), []byte(content), "text/html; charset=utf-8")
		if err != nil {
			t.Logf("store page html: %v", err)
		} else {
			locations = append(locations, loc)
		}
	}
	for _, loc := range locations {
		t.Logf("artifact: %s", loc)
	}
	env.Report.Attach(t.Name(), locations...)
}

// Navigate opens baseURL+path and waits for the DOM.
func Navigate(t *testing.T, page playwright.Page, baseURL, path string) {
	t.Helper()

	_, err := page.Goto(baseURL+path, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(browserMaxTimeoutMS),
	})
	if err != nil {
		t.Fatalf("Failed to navigate to %s: %v", path, err)
	}
}

// WaitForSelector waits for the first match of selector to be visible and
// logs where the page is when it never appears.
func WaitForSelector(t *testing.T, page playwright.Page, selector string) playwright.Locator {
	t.Helper()

	first := page.Locator(selector).First()
	err := first.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(browserMaxTimeoutMS),
	})
	if err != nil {
		snap, _ := e2ebrowser.Capture(page)
		t.Logf("Current URL: %s", snap.URL)
		t.Logf("Current title: %s", snap.Title)
		t.Logf("Content preview: %s", snap.Preview)
		t.Fatalf("Failed to wait for selector %s: %v", selector, err)
	}
	return first
}

// =============================================================================
// Login fixture
// =============================================================================

// RequireDemoApp skips tests that need to control the application.
func (env *BrowserTestEnv) RequireDemoApp(t *testing.T) {
	t.Helper()
	if env.App == nil {
		t.Skip("needs the bundled demo app; E2E_BASE_URL points at a hosted application")
	}
}

// Credentials returns the login pair for authenticated tests: the configured
// one, or the demo account when running against the demo app. Without
// credentials the test is skipped, or failed when E2E_REQUIRE_CREDENTIALS
// is set.
func (env *BrowserTestEnv) Credentials(t *testing.T) session.Credentials {
	t.Helper()

	creds, err := env.Config.Credentials()
	if err == nil {
		return creds
	}
	if env.App != nil {
		return session.Credentials{Identifier: demoapp.DemoUser, Secret: demoapp.DemoPassword}
	}
	if env.Config.RequireCredentials {
		t.Fatal(err)
	}
	t.Skip(err.Error())
	return session.Credentials{}
}

// NewUser registers a fresh demo-app account so a test owns its todo list.
func (env *BrowserTestEnv) NewUser(t *testing.T, prefix string) session.Credentials {
	t.Helper()
	env.RequireDemoApp(t)

	creds := session.Credentials{Identifier: GenerateUniqueEmail(prefix), Secret: "password-" + prefix}
	if err := env.App.AddUser(creds.Identifier, creds.Secret); err != nil {
		t.Fatalf("Failed to create user %s: %v", creds.Identifier, err)
	}
	return creds
}

// LoginPage returns the login page object for page, using the configured
// selector strategy.
func (env *BrowserTestEnv) LoginPage(page playwright.Page) *pages.LoginPage {
	return pages.NewLoginPage(page, env.Config.LoginURL(env.BaseURL), selectors.FormTargets(env.Config.Selectors), browserMaxTimeout)
}

// EstablishSession runs one login attempt on page with the configured
// deadline and records the outcome in the run report.
func (env *BrowserTestEnv) EstablishSession(t *testing.T, page playwright.Page, creds session.Credentials) (session.Outcome, error) {
	t.Helper()
	return env.EstablishSessionWithin(t, page, creds, env.Config.LoginTimeout)
}

// EstablishSessionWithin is EstablishSession with an explicit deadline.
func (env *BrowserTestEnv) EstablishSessionWithin(t *testing.T, page playwright.Page, creds session.Credentials, deadline time.Duration) (session.Outcome, error) {
	t.Helper()

	ctx := obs.WithCorrelation(context.Background(), obs.Correlation{RunID: env.RunID, TestName: t.Name()})
	start := time.Now()
	outcome, err := env.LoginPage(page).Establish(ctx, creds, selectors.LoginMarkers(), deadline)

	entry := report.Entry{Test: t.Name(), Outcome: outcome, Duration: time.Since(start)}
	if err != nil {
		entry.Detail = err.Error()
	}
	env.Report.Record(entry)
	return outcome, err
}

// LoginAs establishes a session or fails the test with the classified
// diagnostic.
func (env *BrowserTestEnv) LoginAs(t *testing.T, page playwright.Page, creds session.Credentials) {
	t.Helper()

	outcome, err := env.EstablishSession(t, page, creds)
	if outcome != session.Established {
		t.Fatalf("login %s: %v", outcome, err)
	}
}

// AuthenticatedPage returns a page whose context starts with the session
// cookies of env.Credentials. The login runs once per test binary; later
// calls reuse the saved storage state.
func (env *BrowserTestEnv) AuthenticatedPage(t *testing.T) playwright.Page {
	t.Helper()
	return env.newPage(t, env.storageState(t))
}

// storageState logs in on first use and returns the saved state path.
func (env *BrowserTestEnv) storageState(t *testing.T) string {
	t.Helper()

	env.authMu.Lock()
	defer env.authMu.Unlock()
	if env.authState != "" {
		return env.authState
	}

	path := env.Config.StorageState
	if path == "" {
		path = filepath.Join(env.TempDir, "storage-state.json")
	}
	page := env.NewPage(t)
	env.LoginAs(t, page, env.Credentials(t))
	if err := e2ebrowser.SaveStorageState(page.Context(), path); err != nil {
		t.Fatalf("Failed to save storage state: %v", err)
	}
	env.authState = path
	return path
}

// GenerateUniqueEmail generates a unique email for test isolation.
func GenerateUniqueEmail(prefix string) string {
	suffix := make([]byte, 8)
	if _, err := crand.Read(suffix); err != nil {
		panic(fmt.Sprintf("failed to generate unique email suffix: %v", err))
	}
	return fmt.Sprintf("%s-%s@example.com", prefix, hex.EncodeToString(suffix))
}
