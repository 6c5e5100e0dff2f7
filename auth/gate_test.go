package auth

import (
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func newTestGate(t *testing.T) (*Gate, *Codec) {
	t.Helper()
	codec := NewCodec("gate-secret", 300*time.Second)
	gate := NewGate(codec, "webhook-key", "api-key", log.New(io.Discard, "", 0))
	return gate, codec
}

func TestGate_AdmitsValidToken(t *testing.T) {
	gate, codec := newTestGate(t)

	token, err := codec.Issue(IssueParams{Action: "webhook"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	adm, err := gate.Admit("Bearer "+token, "")
	if err != nil {
		t.Fatalf("admit: unexpected error: %v", err)
	}
	if adm.Method != MethodToken {
		t.Fatalf("expected token admission, got %s", adm.Method)
	}
	if adm.Claims == nil || adm.Claims.Action != "webhook" {
		t.Fatalf("expected claims carried through, got %+v", adm.Claims)
	}
}

func TestGate_AdmitsStaticKeyOnly(t *testing.T) {
	gate, _ := newTestGate(t)

	adm, err := gate.Admit("", "webhook-key")
	if err != nil {
		t.Fatalf("admit: unexpected error: %v", err)
	}
	if adm.Method != MethodAPIKey {
		t.Fatalf("expected api_key admission, got %s", adm.Method)
	}
	if adm.Claims != nil {
		t.Fatal("api-key admission carries no claims")
	}
}

func TestGate_BearerStaticKey(t *testing.T) {
	gate, _ := newTestGate(t)

	adm, err := gate.Admit("Bearer api-key", "")
	if err != nil {
		t.Fatalf("admit: unexpected error: %v", err)
	}
	if adm.Method != MethodAPIKey {
		t.Fatalf("expected api_key admission, got %s", adm.Method)
	}
}

// A token-shaped bearer value that fails verification is rejected outright,
// even when a valid static key is also present in X-API-Key.
func TestGate_InvalidTokenNeverFallsBackToKey(t *testing.T) {
	gate, _ := newTestGate(t)

	otherCodec := NewCodec("some-other-secret", 300*time.Second)
	badToken, err := otherCodec.Issue(IssueParams{})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	_, err = gate.Admit("Bearer "+badToken, "webhook-key")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestGate_ExpiredTokenRejected(t *testing.T) {
	codec := NewCodec("gate-secret", 1*time.Second)
	issuedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	codec.now = func() time.Time { return issuedAt }

	token, err := codec.Issue(IssueParams{})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	codec.now = func() time.Time { return issuedAt.Add(time.Minute) }
	gate := NewGate(codec, "webhook-key", "api-key", log.New(io.Discard, "", 0))

	if _, err := gate.Admit("Bearer "+token, ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestGate_NoCredentials(t *testing.T) {
	gate, _ := newTestGate(t)

	if _, err := gate.Admit("", ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := gate.Admit("Bearer nope", "wrong"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestGate_BcryptHashedKey(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("rotating-secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	codec := NewCodec("gate-secret", 300*time.Second)
	gate := NewGate(codec, string(hash), "", log.New(io.Discard, "", 0))

	adm, err := gate.Admit("", "rotating-secret")
	if err != nil {
		t.Fatalf("admit: unexpected error: %v", err)
	}
	if adm.Method != MethodAPIKey {
		t.Fatalf("expected api_key admission, got %s", adm.Method)
	}

	if _, err := gate.Admit("", "wrong-secret"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}
