package demoapp

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	SessionCookieName = "todo_session"
	DefaultSessionTTL = 24 * time.Hour
)

var ErrSessionNotFound = errors.New("session not found")

type sessionEntry struct {
	email     string
	expiresAt time.Time
}

// SessionStore maps opaque session IDs to signed-in accounts.
type SessionStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]sessionEntry
	now      func() time.Time
}

func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{ttl: ttl, sessions: make(map[string]sessionEntry), now: time.Now}
}

// Create starts a session for email and returns its ID.
func (s *SessionStore) Create(email string) string {
	id := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = sessionEntry{email: email, expiresAt: s.now().Add(s.ttl)}
	return id
}

// Validate returns the account for a live session. Expired sessions are
// dropped on access.
func (s *SessionStore) Validate(id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[id]
	if !ok {
		return "", ErrSessionNotFound
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.sessions, id)
		return "", ErrSessionNotFound
	}
	return entry.email, nil
}

func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// SetCookie sets the session cookie on the response. The demo app is served
// over plain http in tests, so the cookie is only Secure behind TLS.
func SetCookie(w http.ResponseWriter, r *http.Request, sessionID string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl.Seconds()),
	})
}

// ClearCookie removes the session cookie.
func ClearCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// SessionFromRequest retrieves the session ID from the request cookie.
func SessionFromRequest(r *http.Request) (string, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return "", ErrSessionNotFound
		}
		return "", err
	}
	return cookie.Value, nil
}
