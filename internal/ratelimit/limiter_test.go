package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// =============================================================================
// Generators for property-based testing
// =============================================================================

func identifierGenerator() *rapid.Generator[string] {
	return rapid.StringMatching(`[a-z0-9]{4,16}@example\.com`)
}

// =============================================================================
// Property: Attempts within the burst succeed
// =============================================================================

func testRateLimiter_AttemptsWithinBurst(t *rapid.T) {
	config := Config{
		AttemptsPerSecond: 100.0,
		Burst:             50,
		CleanupInterval:   time.Hour,
	}

	rl := NewRateLimiter(config)
	defer rl.Stop()

	identifier := identifierGenerator().Draw(t, "identifier")
	attempts := rapid.IntRange(1, config.Burst/2).Draw(t, "attempts")

	for i := 0; i < attempts; i++ {
		if !rl.Allow(identifier) {
			t.Fatalf("Attempt %d of %d should have been allowed (within burst of %d)", i+1, attempts, config.Burst)
		}
	}
}

func TestRateLimiter_AttemptsWithinBurst(t *testing.T) {
	rapid.Check(t, testRateLimiter_AttemptsWithinBurst)
}

func FuzzRateLimiter_AttemptsWithinBurst(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testRateLimiter_AttemptsWithinBurst))
}

// =============================================================================
// Property: Attempts beyond the burst are blocked
// =============================================================================

func testRateLimiter_ExceedingBurstBlocked(t *rapid.T) {
	config := Config{
		AttemptsPerSecond: 0.001,
		Burst:             rapid.IntRange(1, 10).Draw(t, "burst"),
		CleanupInterval:   time.Hour,
	}

	rl := NewRateLimiter(config)
	defer rl.Stop()

	identifier := identifierGenerator().Draw(t, "identifier")
	for i := 0; i < config.Burst; i++ {
		rl.Allow(identifier)
	}

	if rl.Allow(identifier) {
		t.Fatalf("Attempt beyond burst of %d should have been blocked", config.Burst)
	}
}

func TestRateLimiter_ExceedingBurstBlocked(t *testing.T) {
	rapid.Check(t, testRateLimiter_ExceedingBurstBlocked)
}

func FuzzRateLimiter_ExceedingBurstBlocked(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testRateLimiter_ExceedingBurstBlocked))
}

// =============================================================================
// Property: Identifier variants share one limiter; distinct identifiers don't
// =============================================================================

func testRateLimiter_KeyNormalization(t *rapid.T) {
	config := Config{AttemptsPerSecond: 0.001, Burst: 1, CleanupInterval: time.Hour}
	rl := NewRateLimiter(config)
	defer rl.Stop()

	identifier := identifierGenerator().Draw(t, "identifier")
	other := identifierGenerator().Filter(func(s string) bool { return s != identifier }).Draw(t, "other")

	if !rl.Allow(identifier) {
		t.Fatal("first attempt should be allowed")
	}
	if rl.Allow("  " + strings.ToUpper(identifier) + " ") {
		t.Fatal("case/padding variant should share the exhausted limiter")
	}
	if !rl.Allow(other) {
		t.Fatal("a different identifier should have its own limiter")
	}
}

func TestRateLimiter_KeyNormalization(t *testing.T) {
	rapid.Check(t, testRateLimiter_KeyNormalization)
}

func TestRateLimiter_ResetRestoresBurst(t *testing.T) {
	rl := NewRateLimiter(Config{AttemptsPerSecond: 0.001, Burst: 1, CleanupInterval: time.Hour})
	defer rl.Stop()

	rl.Allow("user@example.com")
	if rl.Allow("user@example.com") {
		t.Fatal("second attempt should be blocked")
	}
	rl.Reset("USER@example.com")
	if !rl.Allow("user@example.com") {
		t.Fatal("attempt after Reset should be allowed")
	}
}

// =============================================================================
// Property: Idle limiters are cleaned up
// =============================================================================

func testRateLimiter_IdleLimiterCleanup(t *rapid.T) {
	cleanupInterval := 10 * time.Millisecond

	rl := NewRateLimiter(Config{AttemptsPerSecond: 100, Burst: 200, CleanupInterval: cleanupInterval})
	defer rl.Stop()

	n := rapid.IntRange(2, 10).Draw(t, "n")
	for i := 0; i < n; i++ {
		rl.Allow(identifierGenerator().Draw(t, "identifier"))
	}
	if rl.Len() == 0 {
		t.Fatal("Expected some limiters to be created")
	}

	time.Sleep(cleanupInterval + 5*time.Millisecond)
	rl.Cleanup()

	if got := rl.Len(); got != 0 {
		t.Fatalf("Expected all idle limiters to be cleaned up, got %d remaining", got)
	}
}

func TestRateLimiter_IdleLimiterCleanup(t *testing.T) {
	rapid.Check(t, testRateLimiter_IdleLimiterCleanup)
}

func FuzzRateLimiter_IdleLimiterCleanup(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testRateLimiter_IdleLimiterCleanup))
}

// =============================================================================
// Property: Concurrent access loses no attempts
// =============================================================================

func testRateLimiter_ConcurrentAccess(t *rapid.T) {
	rl := NewRateLimiter(Config{AttemptsPerSecond: 1000, Burst: 2000, CleanupInterval: time.Hour})
	defer rl.Stop()

	numIdentifiers := rapid.IntRange(2, 10).Draw(t, "numIdentifiers")
	numGoroutines := rapid.IntRange(2, 10).Draw(t, "numGoroutines")
	perGoroutine := rapid.IntRange(5, 30).Draw(t, "perGoroutine")

	identifiers := make([]string, numIdentifiers)
	for i := range identifiers {
		identifiers[i] = identifierGenerator().Draw(t, "identifier")
	}

	var wg sync.WaitGroup
	var allowed, denied atomic.Int64
	for g := 0; g < numGoroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for r := 0; r < perGoroutine; r++ {
				if rl.Allow(identifiers[(g+r)%numIdentifiers]) {
					allowed.Add(1)
				} else {
					denied.Add(1)
				}
			}
		}(g)
	}
	wg.Wait()

	if total := allowed.Load() + denied.Load(); total != int64(numGoroutines*perGoroutine) {
		t.Fatalf("attempt count mismatch: got %d want %d", total, numGoroutines*perGoroutine)
	}
	if allowed.Load() == 0 {
		t.Fatal("Expected at least some attempts to be allowed")
	}
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	rapid.Check(t, testRateLimiter_ConcurrentAccess)
}

// =============================================================================
// Property: Stop returns promptly
// =============================================================================

func TestRateLimiter_StopGracefulShutdown(t *testing.T) {
	rl := NewRateLimiter(Config{AttemptsPerSecond: 100, Burst: 200, CleanupInterval: 10 * time.Millisecond})
	rl.Allow("user@example.com")

	done := make(chan struct{})
	go func() {
		rl.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return within timeout - possible goroutine leak")
	}
}

// =============================================================================
// Middleware
// =============================================================================

func TestMiddleware_ThrottlesByFormIdentifier(t *testing.T) {
	rl := NewRateLimiter(Config{AttemptsPerSecond: 0.001, Burst: 2, CleanupInterval: time.Hour})
	defer rl.Stop()

	keyOf := func(r *http.Request) string { return r.PostFormValue("email") }
	handler := Middleware(rl, keyOf, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	post := func(email string) *httptest.ResponseRecorder {
		form := url.Values{"email": {email}}
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := post("user@example.com"); rec.Code != http.StatusNoContent {
			t.Fatalf("attempt %d status = %d, want 204", i+1, rec.Code)
		}
	}
	rec := post("user@example.com")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("throttled status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "1" || rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("throttled headers = %v", rec.Header())
	}
	if rec := post(""); rec.Code != http.StatusNoContent {
		t.Fatalf("request without identifier status = %d, want pass-through", rec.Code)
	}
}

func TestMiddleware_CustomLimitedResponse(t *testing.T) {
	rl := NewRateLimiter(Config{AttemptsPerSecond: 0.001, Burst: 1, CleanupInterval: time.Hour})
	defer rl.Stop()

	onLimited := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("slow down"))
	}
	handler := Middleware(rl, func(*http.Request) string { return "k" }, onLimited)(http.NotFoundHandler())

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTooManyRequests || rec.Body.String() != "slow down" {
		t.Fatalf("limited response = %d %q", rec.Code, rec.Body.String())
	}
}
