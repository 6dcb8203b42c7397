package ratelimit

import (
	"errors"
	"testing"
	"time"
)

func TestAllowUnderLimit(t *testing.T) {
	limiter := New(60)

	for i := 0; i < 60; i++ {
		if err := limiter.Allow("acme"); err != nil {
			t.Fatalf("request %d rejected: %v", i+1, err)
		}
	}
	if err := limiter.Allow("acme"); !errors.Is(err, ErrLimitExceeded) {
		t.Errorf("61st request should be rejected, got %v", err)
	}
}

func TestTenantsAreIsolated(t *testing.T) {
	limiter := New(3)

	for i := 0; i < 3; i++ {
		if err := limiter.Allow("acme"); err != nil {
			t.Fatalf("acme request %d rejected: %v", i+1, err)
		}
	}
	if err := limiter.Allow("acme"); err == nil {
		t.Fatal("acme should be at its limit")
	}

	// A saturated tenant never affects another tenant's window.
	if err := limiter.Allow("globex"); err != nil {
		t.Errorf("globex rejected by acme's saturation: %v", err)
	}
}

func TestWindowSlides(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	limiter := New(2)
	limiter.now = func() time.Time { return now }

	if err := limiter.Allow("acme"); err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
	if err := limiter.Allow("acme"); err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}
	if err := limiter.Allow("acme"); err == nil {
		t.Fatal("third request inside the window should be rejected")
	}

	// 61 seconds later both stamps have left the trailing window.
	now = now.Add(61 * time.Second)
	if err := limiter.Allow("acme"); err != nil {
		t.Errorf("request after window expiry rejected: %v", err)
	}
}

func TestRejectionRecordsNothing(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	limiter := New(1)
	limiter.now = func() time.Time { return now }

	if err := limiter.Allow("acme"); err != nil {
		t.Fatalf("unexpected rejection: %v", err)
	}

	// Hammering a saturated tenant must not extend its window.
	for i := 0; i < 10; i++ {
		now = now.Add(5 * time.Second)
		limiter.Allow("acme")
	}

	// 61s after the single admitted request, the tenant is clear even
	// though rejections kept arriving.
	now = now.Add(12 * time.Second)
	if err := limiter.Allow("acme"); err != nil {
		t.Errorf("rejections must not count toward the window: %v", err)
	}
}
