package auth

import (
	"testing"
	"time"
)

func TestParseBearerToken(t *testing.T) {
	cases := []struct {
		name   string
		header string
		want   string
	}{
		{name: "well formed", header: "Bearer abc.def.ghi", want: "abc.def.ghi"},
		{name: "case insensitive scheme", header: "bearer tok", want: "tok"},
		{name: "missing scheme", header: "tok", want: ""},
		{name: "empty", header: "", want: ""},
		{name: "wrong scheme", header: "Basic tok", want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ParseBearerToken(tc.header); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	claims := &Claims{
		UserID:       "u1",
		Role:         RoleStaff,
		Email:        "staff@example.com",
		RestaurantID: "r1",
	}
	token, err := SignAccessToken(claims, "secret", time.Hour)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	parsed, err := VerifyAccessToken(token, "secret")
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if parsed.UserID != "u1" || parsed.RestaurantID != "r1" || parsed.Role != RoleStaff {
		t.Fatalf("claims did not round-trip: %+v", parsed)
	}

	if _, err := VerifyAccessToken(token, "other-secret"); err == nil {
		t.Fatalf("expected verification failure with wrong secret")
	}
}

func TestVerifyExpiredToken(t *testing.T) {
	claims := &Claims{UserID: "u1", Role: RoleStaff, RestaurantID: "r1"}
	token, err := SignAccessToken(claims, "secret", -time.Minute)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}
	if _, err := VerifyAccessToken(token, "secret"); err == nil {
		t.Fatalf("expected expired-token error")
	}
}
