package token

import (
	"testing"
	"time"
)

func TestGenerateVerify(t *testing.T) {
	secret := []byte("secret")
	tok, err := Generate(Payload{
		AdID:      42,
		ViewerKey: "u:7",
		Page:      "homepage",
		Location:  "top_banner",
		Variant:   "control",
	}, secret)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	p, err := Verify(tok, secret, time.Minute)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if p.AdID != 42 || p.ViewerKey != "u:7" || p.Page != "homepage" || p.Location != "top_banner" || p.Variant != "control" {
		t.Fatalf("unexpected payload: %+v", p)
	}
}

func TestVerifyExpired(t *testing.T) {
	secret := []byte("s")
	tok, err := Generate(Payload{AdID: 1, TS: time.Now().Add(-time.Hour).Unix()}, secret)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := Verify(tok, secret, time.Minute); err != ErrExpired {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestVerifyTampered(t *testing.T) {
	secret := []byte("s")
	tok, _ := Generate(Payload{AdID: 1}, secret)
	if _, err := Verify(tok+"x", secret, time.Minute); err != ErrInvalid {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	tok, _ := Generate(Payload{AdID: 1}, []byte("one"))
	if _, err := Verify(tok, []byte("two"), time.Minute); err != ErrInvalid {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestVerifyMalformed(t *testing.T) {
	for _, tok := range []string{"", "abc", "a.b.c", "!!!.???"} {
		if _, err := Verify(tok, []byte("s"), time.Minute); err != ErrInvalid {
			t.Fatalf("Verify(%q): expected ErrInvalid, got %v", tok, err)
		}
	}
}
