package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/todo-e2e/internal/config"
	"github.com/kuitang/todo-e2e/internal/demoapp"
	"github.com/kuitang/todo-e2e/internal/errs"
	"github.com/kuitang/todo-e2e/internal/session"
)

func TestRootCmd_HasSubcommands(t *testing.T) {
	root := NewRootCmd()
	for _, name := range []string{"serve", "login", "version"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestVersionCmd(t *testing.T) {
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Equal(t, version+"\n", out.String())
}

func TestRunServe_ServesUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	addrCh := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- runServe(ctx, serveOptions{addr: "127.0.0.1:0"}, func(addr string) { addrCh <- addr })
	}()

	var addr string
	select {
	case addr = <-addrCh:
	case err := <-done:
		t.Fatalf("runServe exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get("http://" + addr + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "ok")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRunServe_ListenFailureIsUnavailable(t *testing.T) {
	err := runServe(context.Background(), serveOptions{addr: "256.0.0.1:1"}, nil)
	assert.Equal(t, errs.Unavailable, errs.CodeOf(err))
}

func TestApplyFlags(t *testing.T) {
	cfg := &config.Config{
		LoginPath:     "/login",
		LoginTimeout:  15 * time.Second,
		ActionTimeout: 5 * time.Second,
		Browser:       "chromium",
		Selectors:     "testid",
	}
	opts := loginOptions{baseURL: "https://todo.example.com/", deadline: 3 * time.Second, selectors: "Accessible", saveState: "state.json"}
	require.NoError(t, opts.applyFlags(cfg))
	assert.Equal(t, "https://todo.example.com", cfg.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.LoginTimeout)
	assert.Equal(t, "accessible", cfg.Selectors)
	assert.Equal(t, "state.json", cfg.StorageState)

	bad := loginOptions{deadline: -time.Second}
	assert.Error(t, bad.applyFlags(cfg))
}

func TestLoginCredentials(t *testing.T) {
	demo := &config.Config{}
	creds, err := loginCredentials(demo)
	require.NoError(t, err)
	assert.Equal(t, demoapp.DemoUser, creds.Identifier)

	hosted := &config.Config{BaseURL: "https://todo.example.com", Username: "user@example.com"}
	_, err = loginCredentials(hosted)
	require.True(t, errors.Is(err, session.ErrMissingCredentials))
	assert.Equal(t, 2, errs.ExitCode(errs.CodeOf(err)))
}

func TestStartDemoServer_RegistersConfiguredAccount(t *testing.T) {
	creds := session.Credentials{Identifier: "me@example.io", Secret: "longpassword"}
	baseURL, stop, err := startDemoServer(context.Background(), creds)
	require.NoError(t, err)
	defer stop()

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	post := func(email, password string) *http.Response {
		resp, err := client.PostForm(baseURL+"/login", url.Values{"email": {email}, "password": {password}})
		require.NoError(t, err)
		resp.Body.Close()
		return resp
	}

	resp := post(creds.Identifier, creds.Secret)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/todos", resp.Header.Get("Location"))

	resp = post(demoapp.DemoUser, demoapp.DemoPassword)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode, "demo account is still seeded")
}

func TestStartDemoServer_DemoCredentialsAreNotDuplicated(t *testing.T) {
	_, stop, err := startDemoServer(context.Background(), session.Credentials{Identifier: demoapp.DemoUser, Secret: demoapp.DemoPassword})
	require.NoError(t, err)
	stop()
}

func TestRunServe_UnusableAccountFails(t *testing.T) {
	opts := serveOptions{addr: "127.0.0.1:0", accounts: []session.Credentials{{Identifier: "me@example.io", Secret: "short"}}}
	err := runServe(context.Background(), opts, nil)
	assert.Equal(t, errs.FailedPrecondition, errs.CodeOf(err))
	assert.Equal(t, 2, errs.ExitCode(errs.CodeOf(err)))
}
