package demoapp

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// Fixed inputs: each Argon2 hash costs ~19 MiB and tens of milliseconds.
func TestArgon2Hasher_Roundtrip(t *testing.T) {
	var h Argon2Hasher
	for _, password := range []string{"password123", "correct horse battery", "pässwörd-ünïcode"} {
		hash, err := h.HashPassword(password)
		if err != nil {
			t.Fatalf("HashPassword: %v", err)
		}
		if !strings.HasPrefix(hash, "$argon2id$v=19$") {
			t.Fatalf("unexpected hash format %q", hash)
		}
		if !h.VerifyPassword(password, hash) {
			t.Fatalf("VerifyPassword rejected %q", password)
		}
		if h.VerifyPassword(password+"x", hash) {
			t.Fatalf("VerifyPassword accepted a different password for %q", password)
		}
	}
}

func TestArgon2Hasher_RejectsMalformedHashes(t *testing.T) {
	var h Argon2Hasher
	for _, hash := range []string{"", "$fake$password123", "$argon2id$v=18$m=1,t=1,p=1$AA$AA", "$argon2id$v=19$garbage$AA$AA"} {
		if h.VerifyPassword("password123", hash) {
			t.Errorf("VerifyPassword accepted malformed hash %q", hash)
		}
	}
}

func TestUserStore_AddAndAuthenticate(t *testing.T) {
	s := NewUserStore(FakeInsecureHasher{})
	if err := s.Add("User@Example.com", "password123"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add("user@example.com", "password123"); !errors.Is(err, ErrAccountExists) {
		t.Fatalf("duplicate Add error = %v, want ErrAccountExists", err)
	}
	if err := s.Add("short@example.com", "short"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("weak password error = %v, want ErrWeakPassword", err)
	}

	got, err := s.Authenticate(" USER@example.com", "password123")
	if err != nil || got != "user@example.com" {
		t.Fatalf("Authenticate = %q, %v", got, err)
	}
	if _, err := s.Authenticate("user@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password error = %v", err)
	}
	if _, err := s.Authenticate("missing@example.com", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user error = %v", err)
	}
}

func TestSessionStore_Expiry(t *testing.T) {
	s := NewSessionStore(time.Minute)
	now := time.Now()
	s.now = func() time.Time { return now }

	id := s.Create("user@example.com")
	if user, err := s.Validate(id); err != nil || user != "user@example.com" {
		t.Fatalf("Validate = %q, %v", user, err)
	}

	now = now.Add(time.Minute)
	if _, err := s.Validate(id); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expired Validate error = %v", err)
	}
	if _, err := s.Validate("unknown"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("unknown Validate error = %v", err)
	}
}
