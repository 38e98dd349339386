package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/kuitang/todo-e2e/internal/demoapp"
	"github.com/kuitang/todo-e2e/internal/errs"
	"github.com/kuitang/todo-e2e/internal/logutil"
	"github.com/kuitang/todo-e2e/internal/obs"
	"github.com/kuitang/todo-e2e/internal/session"
)

type serveOptions struct {
	addr       string
	loginDelay time.Duration
	stall      bool
	// accounts are registered next to the demo account.
	accounts []session.Credentials
}

func newServeCmd() *cobra.Command {
	opts := serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bundled todo app",
		Long:  fmt.Sprintf("Run the bundled todo app with the account %s / %s.", demoapp.DemoUser, demoapp.DemoPassword),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts, func(addr string) {
				fmt.Fprintf(cmd.OutOrStdout(), "todo app listening on http://%s\n", addr)
			})
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().DurationVar(&opts.loginDelay, "login-delay", 0, "delay every login response by this long")
	cmd.Flags().BoolVar(&opts.stall, "stall", false, "never resolve logins (neither success nor rejection is shown)")
	return cmd
}

// runServe serves until ctx is cancelled. ready receives the bound address.
func runServe(ctx context.Context, opts serveOptions, ready func(addr string)) error {
	app, err := demoapp.New(demoapp.Options{LoginDelay: opts.loginDelay, Stall: opts.stall})
	if err != nil {
		return errs.Wrap(errs.Internal, "create todo app", err)
	}
	defer app.Close()
	if err := app.Seed(); err != nil {
		return errs.Wrap(errs.Internal, "seed todo app", err)
	}
	for _, acct := range opts.accounts {
		if err := app.AddUser(acct.Identifier, acct.Secret); err != nil && !errors.Is(err, demoapp.ErrAccountExists) {
			return errs.Wrap(errs.FailedPrecondition, "register account "+logutil.MaskIdentifier(acct.Identifier), err)
		}
	}

	ln, err := net.Listen("tcp", opts.addr)
	if err != nil {
		return errs.Wrap(errs.Unavailable, "listen on "+opts.addr, err)
	}
	srv := &http.Server{
		Handler:           app.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	obs.Pkg("cmd").Info("server_started", "addr", ln.Addr().String(), "stall", opts.stall, "login_delay", opts.loginDelay.String())
	if ready != nil {
		ready(ln.Addr().String())
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errs.Wrap(errs.Unavailable, "serve", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errs.Wrap(errs.Internal, "shutdown", err)
	}
	obs.Pkg("cmd").Info("server_stopped")
	return nil
}
