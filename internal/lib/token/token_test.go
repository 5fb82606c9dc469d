package token

import (
	"errors"
	"testing"
)

func TestNewTokensAreUnique(t *testing.T) {
	seen := make(map[string]bool)

	for i := 0; i < 100; i++ {
		tok, err := New()
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if len(tok) != tokenBytes*2 {
			t.Fatalf("token length: got %d want %d", len(tok), tokenBytes*2)
		}
		if seen[tok] {
			t.Fatalf("duplicate token generated")
		}
		seen[tok] = true
	}
}

func TestResetIDRoundTrip(t *testing.T) {
	id := EncodeResetID("a@x.com", "deadbeefcafe")

	email, tok, err := DecodeResetID(id)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if email != "a@x.com" || tok != "deadbeefcafe" {
		t.Fatalf("round trip mismatch: %q %q", email, tok)
	}
}

func TestDecodeResetIDMalformed(t *testing.T) {
	cases := []struct {
		name string
		id   string
	}{
		{"not base64", "%%%"},
		{"no separator", EncodeResetID("", "")},
		{"empty token", "YUB4LmNvbTo="}, // "a@x.com:"
		{"empty email", "OmRlYWRiZWVm"}, // ":deadbeef"
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := DecodeResetID(tc.id); !errors.Is(err, ErrMalformedResetID) {
				t.Fatalf("expected ErrMalformedResetID, got %v", err)
			}
		})
	}
}

func TestHashIsStable(t *testing.T) {
	if Hash("abc") != Hash("abc") {
		t.Fatalf("hash not deterministic")
	}
	if Hash("abc") == Hash("abd") {
		t.Fatalf("distinct inputs collide")
	}
	if Hash("abc") == "abc" {
		t.Fatalf("hash equals input")
	}
}
