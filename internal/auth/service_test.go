package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/microloan/backend/internal/auth"
	"github.com/microloan/backend/internal/db"
	"github.com/microloan/backend/internal/repository/memory"
)

func newAuthService() *auth.Service {
	jwt := auth.NewJWTManager("microloan", "microloan-api", "test-secret")
	return auth.NewService(memory.NewStore().Users(), jwt, 15*time.Minute, time.Hour, 5000)
}

func TestRegisterNormalizesPhoneAndSetsDefaultLimit(t *testing.T) {
	svc := newAuthService()
	ctx := context.Background()

	tokens, err := svc.Register(ctx, auth.RegisterInput{Phone: "+254 712-345-678", IDNumber: "12345678", Password: "secret1"}, "ua", "127.0.0.1")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if tokens.User.Phone != "+254712345678" || tokens.User.LoanLimit != 5000 {
		t.Fatalf("unexpected user: %+v", tokens.User)
	}
	if tokens.User.PasswordHash == "secret1" {
		t.Fatal("password must be hashed")
	}

	_, err = svc.Register(ctx, auth.RegisterInput{Phone: "+254712345678", Password: "secret1"}, "", "")
	if !errors.Is(err, db.ErrPhoneTaken) {
		t.Fatalf("expected phone taken, got %v", err)
	}
}

func TestRegisterRejectsBadInput(t *testing.T) {
	svc := newAuthService()
	for _, in := range []auth.RegisterInput{
		{Phone: "12", Password: "secret1"},
		{Phone: "+254712345678", Password: "123"},
		{Phone: "07abc", Password: "secret1"},
	} {
		if _, err := svc.Register(context.Background(), in, "", ""); !errors.Is(err, auth.ErrInvalidInput) {
			t.Fatalf("%+v: expected invalid input, got %v", in, err)
		}
	}
}

func TestLoginRefreshLogout(t *testing.T) {
	svc := newAuthService()
	ctx := context.Background()
	if _, err := svc.Register(ctx, auth.RegisterInput{Phone: "0712345678", Password: "secret1"}, "", ""); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := svc.Login(ctx, "0712345678", "nope-nope", "", ""); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if _, err := svc.Login(ctx, "0799999999", "secret1", "", ""); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Fatalf("unknown phone: expected invalid credentials, got %v", err)
	}

	tokens, err := svc.Login(ctx, "0712345678", "secret1", "", "")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := svc.Refresh(ctx, tokens.AccessToken, "", ""); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("access token used as refresh: expected invalid token, got %v", err)
	}

	rotated, err := svc.Refresh(ctx, tokens.RefreshToken, "", "")
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if rotated.SessionID == tokens.SessionID {
		t.Fatal("expected a new session on refresh")
	}
	if _, err := svc.Refresh(ctx, tokens.RefreshToken, "", ""); !errors.Is(err, auth.ErrSessionRevoked) {
		t.Fatalf("reused refresh token: expected revoked, got %v", err)
	}

	if err := svc.Logout(ctx, rotated.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.Refresh(ctx, rotated.RefreshToken, "", ""); !errors.Is(err, auth.ErrSessionRevoked) {
		t.Fatalf("refresh after logout: expected revoked, got %v", err)
	}
	if err := svc.Logout(ctx, "garbage"); err != nil {
		t.Fatalf("logout with garbage token should be a no-op, got %v", err)
	}

	me, err := svc.Me(ctx, tokens.User.ID)
	if err != nil || me.Phone != "0712345678" {
		t.Fatalf("me: %+v err=%v", me, err)
	}
}

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"0712345678":        "0712345678",
		" +254 712 345 678": "+254712345678",
		"254-712-345-678":   "254712345678",
		"+2547123456789012": "",
		"12345":             "",
		"071234567a":        "",
		"07+12345678":       "",
	}
	for in, want := range cases {
		if got := auth.NormalizePhone(in); got != want {
			t.Fatalf("NormalizePhone(%q) = %q, want %q", in, got, want)
		}
	}
}
