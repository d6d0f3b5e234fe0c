package billing

import (
	"testing"
	"time"
)

func TestSessionIsExpired(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		session Session
		expired bool
	}{
		{
			name:    "active and in window",
			session: Session{IsActive: true, ExpiresAt: now.Add(time.Hour)},
			expired: false,
		},
		{
			name:    "past expiry even while flagged active",
			session: Session{IsActive: true, ExpiresAt: now.Add(-time.Minute)},
			expired: true,
		},
		{
			name:    "exactly at expiry",
			session: Session{IsActive: true, ExpiresAt: now},
			expired: true,
		},
		{
			name:    "swept inactive",
			session: Session{IsActive: false, ExpiresAt: now.Add(time.Hour)},
			expired: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.session.IsExpired(now); got != tc.expired {
				t.Fatalf("expected expired=%v, got %v", tc.expired, got)
			}
		})
	}
}

func TestSessionExpiresIn(t *testing.T) {
	now := time.Now()
	s := Session{IsActive: true, ExpiresAt: now.Add(30 * time.Minute)}
	if got := s.ExpiresIn(now); got != 30*time.Minute {
		t.Fatalf("expected 30m, got %v", got)
	}
	stale := Session{IsActive: true, ExpiresAt: now.Add(-time.Minute)}
	if got := stale.ExpiresIn(now); got != 0 {
		t.Fatalf("expected 0 for stale session, got %v", got)
	}
}

func TestValidateCode(t *testing.T) {
	cases := []struct {
		name string
		code string
		ok   bool
	}{
		{name: "phone number", code: "9998887776", ok: true},
		{name: "trimmed", code: "  9998887776  ", ok: true},
		{name: "short opaque key", code: "ab12", ok: true},
		{name: "too short", code: "123", ok: false},
		{name: "empty", code: "", ok: false},
		{name: "too long", code: "123456789012345678901234567890123", ok: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateCode(tc.code)
			if tc.ok && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestValidateTableID(t *testing.T) {
	if err := ValidateTableID("5"); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	if err := ValidateTableID("  T12 "); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	if err := ValidateTableID(""); err == nil {
		t.Fatalf("expected error for empty table id")
	}
	// Split identifiers are allocated, never accepted from clients.
	if err := ValidateTableID("5.1"); err == nil {
		t.Fatalf("expected error for pre-split table id")
	}
}
