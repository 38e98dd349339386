// Package demoapp is a small todo application with a password login. The
// browser suite runs against it when no hosted application is configured,
// and its behaviour (login delay, stalled logins) can be tuned to exercise
// every login outcome.
package demoapp

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/kuitang/todo-e2e/internal/errs"
	"github.com/kuitang/todo-e2e/internal/logutil"
	"github.com/kuitang/todo-e2e/internal/obs"
	"github.com/kuitang/todo-e2e/internal/ratelimit"
)

// Seeded account used by the CLI and the browser suite.
const (
	DemoUser     = "user@example.com"
	DemoPassword = "password123"
)

// Messages rendered on the login page.
const (
	InvalidCredentialsMessage = "Invalid email or password"
	ThrottledMessage          = "Too many sign-in attempts. Wait a moment and try again."
)

// Options tune the application.
type Options struct {
	// Hasher hashes account passwords. Nil means Argon2Hasher.
	Hasher PasswordHasher
	// LoginDelay is applied to every login submission before it is answered.
	LoginDelay time.Duration
	// Stall makes every login answer with a neutral pending page.
	Stall bool
	// Throttle limits login attempts per identifier. Zero means ratelimit.DefaultConfig.
	Throttle ratelimit.Config
	// SessionTTL bounds session lifetime. Zero means DefaultSessionTTL.
	SessionTTL time.Duration
}

// App wires the stores, templates and routes together.
type App struct {
	opts     Options
	users    *UserStore
	sessions *SessionStore
	todos    *TodoStore
	limiter  *ratelimit.RateLimiter
	renderer *Renderer
	handler  http.Handler

	mu         sync.RWMutex
	stallUsers map[string]bool
}

// New creates an App with no accounts.
func New(opts Options) (*App, error) {
	renderer, err := NewRenderer()
	if err != nil {
		return nil, err
	}
	throttle := opts.Throttle
	if throttle == (ratelimit.Config{}) {
		throttle = ratelimit.DefaultConfig
	}

	a := &App{
		opts:       opts,
		users:      NewUserStore(opts.Hasher),
		sessions:   NewSessionStore(opts.SessionTTL),
		todos:      NewTodoStore(),
		limiter:    ratelimit.NewRateLimiter(throttle),
		renderer:   renderer,
		stallUsers: make(map[string]bool),
	}
	a.handler = obs.RequestContextMiddleware(obs.AccessLogMiddleware("demoapp", a.routes()))
	return a, nil
}

// AddUser registers an account.
func (a *App) AddUser(email, password string) error {
	return a.users.Add(email, password)
}

// Seed registers DemoUser.
func (a *App) Seed() error {
	if err := a.users.Add(DemoUser, DemoPassword); err != nil && !errors.Is(err, ErrAccountExists) {
		return err
	}
	return nil
}

// StallLogins makes logins for email hang on the pending page, whatever
// the password. Other accounts are unaffected.
func (a *App) StallLogins(email string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stallUsers[NormalizeEmail(email)] = true
}

func (a *App) stalls(email string) bool {
	if a.opts.Stall {
		return true
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stallUsers[NormalizeEmail(email)]
}

// Handler returns the root handler with correlation and access logging.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Close stops background work.
func (a *App) Close() {
	a.limiter.Stop()
}

func (a *App) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc("GET /{$}", a.handleRoot)
	mux.HandleFunc("GET /login", a.handleLoginPage)
	loginThrottle := ratelimit.Middleware(a.limiter, func(r *http.Request) string {
		return NormalizeEmail(r.PostFormValue("email"))
	}, a.handleThrottled)
	mux.Handle("POST /login", loginThrottle(http.HandlerFunc(a.handleLogin)))
	mux.HandleFunc("POST /logout", a.handleLogout)

	mux.HandleFunc("GET /todos", a.requireUser(a.handleTodos))
	mux.HandleFunc("POST /todos", a.requireUser(a.handleAddTodo))
	mux.HandleFunc("POST /todos/clear-completed", a.requireUser(a.handleClearCompleted))
	mux.HandleFunc("POST /todos/{id}/toggle", a.requireUser(a.handleToggleTodo))
	mux.HandleFunc("POST /todos/{id}/edit", a.requireUser(a.handleEditTodo))
	mux.HandleFunc("POST /todos/{id}/delete", a.requireUser(a.handleDeleteTodo))

	return mux
}

// pageData is the view model shared by every template.
type pageData struct {
	User      string
	Email     string
	Error     string
	ErrorCode string
	Notice    string

	Filter    Filter
	Todos     []Todo
	Active    int
	Completed int
}

type userHandler func(w http.ResponseWriter, r *http.Request, user string)

// requireUser redirects to the login page when there is no live session.
func (a *App) requireUser(next userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := a.currentUser(r)
		if !ok {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next(w, r, user)
	}
}

func (a *App) currentUser(r *http.Request) (string, bool) {
	id, err := SessionFromRequest(r)
	if err != nil {
		return "", false
	}
	user, err := a.sessions.Validate(id)
	if err != nil {
		return "", false
	}
	return user, true
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (a *App) handleRoot(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.currentUser(r); ok {
		http.Redirect(w, r, "/todos", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (a *App) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.currentUser(r); ok {
		http.Redirect(w, r, "/todos", http.StatusSeeOther)
		return
	}
	a.render(w, r, http.StatusOK, "login.html", pageData{})
}

func (a *App) handleThrottled(w http.ResponseWriter, r *http.Request) {
	email := NormalizeEmail(r.PostFormValue("email"))
	obs.From(r.Context()).With("pkg", "demoapp").Warn("login_throttled",
		"identifier", logutil.MaskIdentifier(email))
	a.render(w, r, http.StatusTooManyRequests, "login.html", pageData{Email: email, Notice: ThrottledMessage})
}

func (a *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := obs.From(ctx).With("pkg", "demoapp")
	email := NormalizeEmail(r.PostFormValue("email"))
	password := r.PostFormValue("password")

	if err := sleepCtx(ctx, a.opts.LoginDelay); err != nil {
		return
	}

	if a.stalls(email) {
		logger.Info("login_stalled", "identifier", logutil.MaskIdentifier(email))
		a.render(w, r, http.StatusAccepted, "pending.html", pageData{})
		return
	}

	user, err := a.users.Authenticate(email, password)
	if err != nil {
		logger.Info("login_rejected", "identifier", logutil.MaskIdentifier(email))
		a.render(w, r, http.StatusUnauthorized, "login.html", pageData{Email: email, Error: InvalidCredentialsMessage})
		return
	}

	a.limiter.Reset(email)
	SetCookie(w, r, a.sessions.Create(user), a.sessions.ttl)
	logger.Info("login_established", "identifier", logutil.MaskIdentifier(user))
	http.Redirect(w, r, "/todos", http.StatusSeeOther)
}

func (a *App) handleLogout(w http.ResponseWriter, r *http.Request) {
	if id, err := SessionFromRequest(r); err == nil {
		a.sessions.Delete(id)
	}
	ClearCookie(w, r)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (a *App) handleTodos(w http.ResponseWriter, r *http.Request, user string) {
	filter := ParseFilter(r.URL.Query().Get("filter"))
	a.render(w, r, http.StatusOK, "todos.html", a.todosPage(user, filter, ""))
}

func (a *App) handleAddTodo(w http.ResponseWriter, r *http.Request, user string) {
	filter := ParseFilter(r.PostFormValue("filter"))
	if _, err := a.todos.Add(user, r.PostFormValue("title")); err != nil {
		a.renderTodosError(w, r, user, filter, err)
		return
	}
	redirectToList(w, r, filter)
}

func (a *App) handleToggleTodo(w http.ResponseWriter, r *http.Request, user string) {
	filter := ParseFilter(r.PostFormValue("filter"))
	if err := a.todos.Toggle(user, r.PathValue("id")); err != nil {
		a.renderTodosError(w, r, user, filter, err)
		return
	}
	redirectToList(w, r, filter)
}

func (a *App) handleEditTodo(w http.ResponseWriter, r *http.Request, user string) {
	filter := ParseFilter(r.PostFormValue("filter"))
	if err := a.todos.Rename(user, r.PathValue("id"), r.PostFormValue("title")); err != nil {
		a.renderTodosError(w, r, user, filter, err)
		return
	}
	redirectToList(w, r, filter)
}

func (a *App) handleDeleteTodo(w http.ResponseWriter, r *http.Request, user string) {
	filter := ParseFilter(r.PostFormValue("filter"))
	if err := a.todos.Delete(user, r.PathValue("id")); err != nil {
		a.renderTodosError(w, r, user, filter, err)
		return
	}
	redirectToList(w, r, filter)
}

func (a *App) handleClearCompleted(w http.ResponseWriter, r *http.Request, user string) {
	a.todos.ClearCompleted(user)
	redirectToList(w, r, ParseFilter(r.PostFormValue("filter")))
}

func (a *App) todosPage(user string, filter Filter, message string) pageData {
	active, completed := a.todos.Counts(user)
	return pageData{
		User:      user,
		Error:     message,
		Filter:    filter,
		Todos:     a.todos.List(user, filter),
		Active:    active,
		Completed: completed,
	}
}

// renderTodosError re-renders the list with the error's message and the
// status its code maps to.
func (a *App) renderTodosError(w http.ResponseWriter, r *http.Request, user string, filter Filter, err error) {
	code := errs.CodeOf(err)
	obs.From(r.Context()).With("pkg", "demoapp").Warn("todo_action_failed", "code", string(code), "error", err)
	a.render(w, r, errs.HTTPStatus(code), "todos.html", a.todosPage(user, filter, errs.MessageOf(err)))
}

func (a *App) render(w http.ResponseWriter, r *http.Request, status int, name string, data pageData) {
	if err := a.renderer.Render(w, status, name, data); err != nil {
		obs.From(r.Context()).With("pkg", "demoapp").Error("render_failed", "template", name, "error", err)
		a.renderer.RenderError(w, http.StatusInternalServerError, "internal error")
	}
}

func redirectToList(w http.ResponseWriter, r *http.Request, filter Filter) {
	target := "/todos"
	if filter != FilterAll {
		target += "?filter=" + url.QueryEscape(string(filter))
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
