package auth

import (
	"context"
	"testing"

	"github.com/hakanai/hakanai/internal/kv"
)

func TestCreateAndVerifyUserToken(t *testing.T) {
	store := New(kv.NewMemoryStore())
	ctx := context.Background()

	token, err := store.CreateUserToken(ctx, 1024)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	rec, err := store.VerifyUserToken(ctx, token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if rec.UploadSizeLimit != 1024 {
		t.Fatalf("upload size limit: got %d want 1024", rec.UploadSizeLimit)
	}
}

func TestVerifyUnknownTokenFails(t *testing.T) {
	store := New(kv.NewMemoryStore())
	if _, err := store.VerifyUserToken(context.Background(), "nonexistent"); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestRevokeUserTokenByHash(t *testing.T) {
	store := New(kv.NewMemoryStore())
	ctx := context.Background()

	token, err := store.CreateUserToken(ctx, 10)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	hash := HashToken(token)

	if err := store.RevokeUserTokenByHash(ctx, hash); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := store.VerifyUserToken(ctx, token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken after revocation, got %v", err)
	}
}

func TestResolveLimitPrefersTokenThenAnonymous(t *testing.T) {
	adm := Admission{AnonymousSizeLimit: 100}

	if got := adm.ResolveLimit(nil); got != 100 {
		t.Fatalf("anonymous: got %d want 100", got)
	}
	if got := adm.ResolveLimit(&TokenRecord{UploadSizeLimit: 5000}); got != 5000 {
		t.Fatalf("token: got %d want 5000", got)
	}
}
