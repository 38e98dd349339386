package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/spf13/cobra"

	"github.com/kuitang/todo-e2e/internal/artifacts"
	"github.com/kuitang/todo-e2e/internal/browser"
	"github.com/kuitang/todo-e2e/internal/config"
	"github.com/kuitang/todo-e2e/internal/demoapp"
	"github.com/kuitang/todo-e2e/internal/errs"
	"github.com/kuitang/todo-e2e/internal/obs"
	"github.com/kuitang/todo-e2e/internal/pages"
	"github.com/kuitang/todo-e2e/internal/report"
	"github.com/kuitang/todo-e2e/internal/selectors"
	"github.com/kuitang/todo-e2e/internal/session"
)

type loginOptions struct {
	baseURL   string
	deadline  time.Duration
	saveState string
	selectors string
	report    bool
}

func newLoginCmd() *cobra.Command {
	opts := loginOptions{}
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Establish a session with the configured credentials",
		Long: `Open the login page, submit E2E_USERNAME and E2E_PASSWORD and wait for
either the signed-in view or the rejection message.

Exit status: 0 established, 2 configuration problem, 3 credentials rejected,
4 no decision before the deadline, 5 login page unreachable.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogin(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.baseURL, "base-url", "", "application URL (overrides E2E_BASE_URL; empty runs the bundled app)")
	cmd.Flags().DurationVar(&opts.deadline, "deadline", 0, "wait bound for the login result (overrides E2E_LOGIN_TIMEOUT)")
	cmd.Flags().StringVar(&opts.saveState, "save-state", "", "write the session's storage state here (overrides E2E_STORAGE_STATE)")
	cmd.Flags().StringVar(&opts.selectors, "selectors", "", "login form selector strategy: testid or accessible (overrides E2E_SELECTORS)")
	cmd.Flags().BoolVar(&opts.report, "report", false, "publish a run report and failure captures to the artifact store")
	return cmd
}

// applyFlags layers command-line overrides onto the loaded configuration.
func (o loginOptions) applyFlags(cfg *config.Config) error {
	if o.baseURL != "" {
		cfg.BaseURL = strings.TrimRight(strings.TrimSpace(o.baseURL), "/")
	}
	if o.deadline != 0 {
		cfg.LoginTimeout = o.deadline
	}
	if o.saveState != "" {
		cfg.StorageState = o.saveState
	}
	if o.selectors != "" {
		cfg.Selectors = strings.ToLower(o.selectors)
	}
	return cfg.Validate()
}

func runLogin(ctx context.Context, stdout, stderr io.Writer, opts loginOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return errs.Wrap(errs.InvalidArgument, "load configuration", err)
	}
	if err := opts.applyFlags(cfg); err != nil {
		return errs.Wrap(errs.InvalidArgument, "invalid flags", err)
	}

	creds, err := loginCredentials(cfg)
	if err != nil {
		return err
	}
	cfg.PrintStartupSummary(stderr)

	baseURL := cfg.BaseURL
	if cfg.UsesDemoApp() {
		url, stop, err := startDemoServer(ctx, creds)
		if err != nil {
			return err
		}
		defer stop()
		baseURL = url
	}

	driver, err := browser.Launch(browser.OptionsFromConfig(cfg))
	if err != nil {
		return errs.Wrap(errs.Unavailable, "start browser", err)
	}
	defer driver.Close()

	runID := obs.NewRunID()
	corr := obs.Correlation{RunID: runID, TestName: "cli-login"}
	ctx = obs.WithCorrelation(ctx, corr)

	page, err := driver.NewPage(browser.ContextOptions{BaseURL: baseURL, Correlation: corr})
	if err != nil {
		return errs.Wrap(errs.Unavailable, "open page", err)
	}
	defer page.Context().Close()

	login := pages.NewLoginPage(page, cfg.LoginURL(baseURL), selectors.FormTargets(cfg.Selectors), cfg.ActionTimeout)
	start := time.Now()
	outcome, loginErr := login.Establish(ctx, creds, selectors.LoginMarkers(), cfg.LoginTimeout)
	elapsed := time.Since(start)
	fmt.Fprintf(stdout, "outcome: %s after %s\n", outcome, elapsed.Round(time.Millisecond))

	if outcome == session.Established && cfg.StorageState != "" {
		if err := browser.SaveStorageState(page.Context(), cfg.StorageState); err != nil {
			return errs.Wrap(errs.Internal, "save storage state", err)
		}
		fmt.Fprintf(stdout, "storage state: %s\n", cfg.StorageState)
	}

	if opts.report {
		loc, err := publishLoginReport(ctx, cfg, runID, outcome, elapsed, loginErr, page)
		if err != nil {
			fmt.Fprintf(stderr, "report not published: %v\n", err)
		} else {
			fmt.Fprintf(stdout, "report: %s\n", loc)
		}
	}
	return loginErr
}

// loginCredentials falls back to the demo account when the bundled app is
// the target and nothing is configured.
func loginCredentials(cfg *config.Config) (session.Credentials, error) {
	creds, err := cfg.Credentials()
	if err == nil {
		return creds, nil
	}
	if cfg.UsesDemoApp() {
		return session.Credentials{Identifier: demoapp.DemoUser, Secret: demoapp.DemoPassword}, nil
	}
	return session.Credentials{}, err
}

// startDemoServer serves the bundled app on a free local port with creds
// registered, so configured accounts can sign in.
func startDemoServer(ctx context.Context, creds session.Credentials) (string, func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	addrCh := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- runServe(ctx, serveOptions{addr: "127.0.0.1:0", accounts: []session.Credentials{creds}}, func(addr string) { addrCh <- addr })
	}()

	select {
	case addr := <-addrCh:
		return "http://" + addr, func() {
			cancel()
			<-done
		}, nil
	case err := <-done:
		cancel()
		return "", nil, err
	}
}

// publishLoginReport writes the one-entry report, plus a capture of the
// page when the login did not establish a session.
func publishLoginReport(ctx context.Context, cfg *config.Config, runID string, outcome session.Outcome, elapsed time.Duration, loginErr error, page playwright.Page) (string, error) {
	store, err := artifacts.New(ctx, cfg)
	if err != nil {
		return "", err
	}
	rec := report.NewRecorder(runID)
	entry := report.Entry{Test: "cli-login", Outcome: outcome, Duration: elapsed}
	if loginErr != nil {
		entry.Detail = loginErr.Error()
	}
	rec.Record(entry)

	if outcome != session.Established {
		snap, _ := browser.Capture(page)
		if len(snap.Screenshot) > 0 {
			loc, err := store.Put(ctx, artifacts.Key(runID, "cli-login", "failure.png"), snap.Screenshot, "image/png")
			if err != nil {
				return "", err
			}
			rec.Attach("cli-login", loc)
		}
	}
	return rec.Publish(ctx, store)
}
