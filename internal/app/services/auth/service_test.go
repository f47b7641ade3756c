package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vrn21/payfree/internal/app/storage"
	"github.com/vrn21/payfree/internal/app/storage/memory"
)

func newService(t *testing.T) *Service {
	t.Helper()

	issuer, err := NewTokenIssuer([]byte("test-secret"), time.Hour)
	if err != nil {
		t.Fatalf("token issuer: %v", err)
	}
	return New(memory.New(), issuer, nil)
}

func TestSignupAndLogin(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	acct, err := svc.Signup(ctx, SignupInput{
		Name:     "Alice Example",
		Username: "alice",
		Phone:    "555-0100",
		Address:  "1 Main St",
		Password: "correct horse",
		Balance:  100,
	})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	if acct.PasswordHash == "correct horse" {
		t.Fatal("password stored in the clear")
	}
	if acct.Balance != 100 {
		t.Fatalf("balance = %d, want 100", acct.Balance)
	}

	token, err := svc.Login(ctx, "alice", "correct horse")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	subject, err := svc.tokens.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if subject != "alice" {
		t.Fatalf("subject = %q, want alice", subject)
	}
}

func TestSignupValidation(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   SignupInput
		want error
	}{
		{"missing name", SignupInput{Username: "x", Password: "longenough"}, ErrMissingField},
		{"missing username", SignupInput{Name: "X", Password: "longenough"}, ErrMissingField},
		{"short password", SignupInput{Name: "X", Username: "x", Password: "short"}, ErrWeakPassword},
		{"negative balance", SignupInput{Name: "X", Username: "x", Password: "longenough", Balance: -1}, ErrNegativeBalance},
	}
	for _, tc := range cases {
		if _, err := svc.Signup(ctx, tc.in); !errors.Is(err, tc.want) {
			t.Errorf("%s: got %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestSignupDuplicateUsername(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	in := SignupInput{Name: "Alice", Username: "alice", Password: "longenough"}
	if _, err := svc.Signup(ctx, in); err != nil {
		t.Fatalf("first signup: %v", err)
	}
	if _, err := svc.Signup(ctx, in); !errors.Is(err, storage.ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	if _, err := svc.Signup(ctx, SignupInput{Name: "Alice", Username: "alice", Password: "longenough"}); err != nil {
		t.Fatalf("signup: %v", err)
	}

	if _, err := svc.Login(ctx, "alice", "wrong password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: got %v", err)
	}
	if _, err := svc.Login(ctx, "nobody", "longenough"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user: got %v", err)
	}
}

func TestVerifyRejectsTamperedTokens(t *testing.T) {
	issuer, err := NewTokenIssuer([]byte("secret-a"), time.Hour)
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	other, err := NewTokenIssuer([]byte("secret-b"), time.Hour)
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}

	token, err := issuer.Issue("alice", time.Now())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := other.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong secret: got %v", err)
	}
	if _, err := issuer.Verify("not.a.token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage token: got %v", err)
	}

	expired, err := issuer.Issue("alice", time.Now().Add(-2*time.Hour))
	if err != nil {
		t.Fatalf("issue expired: %v", err)
	}
	if _, err := issuer.Verify(expired); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token: got %v", err)
	}
}
