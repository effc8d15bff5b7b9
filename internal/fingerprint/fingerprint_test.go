package fingerprint

import (
	"testing"

	"pgregory.net/rapid"
)

func TestNormalize_CollapsesWhitespaceAndCase(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"  Prefers   Dark Mode  ", "prefers dark mode"},
		{"prefers dark mode", "prefers dark mode"},
		{"Prefers\tdark\nmode", "prefers dark mode"},
		{"", ""},
		{"   \n\t  ", ""},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Fatalf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestHash_EqualForNearIdenticalStrings(t *testing.T) {
	a := Hash("User prefers   concise answers")
	b := Hash("  user PREFERS concise answers\n")
	if a != b {
		t.Fatalf("expected identical hashes, got %q vs %q", a, b)
	}
	c := Hash("user prefers verbose answers")
	if a == c {
		t.Fatalf("distinct content must not collide: %q", a)
	}
}

func TestHash_Deterministic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s := rapid.String().Draw(rt, "content")
		if Hash(s) != Hash(s) {
			rt.Fatalf("Hash not deterministic for %q", s)
		}
		// Hashing the normalized form must be a fixed point.
		if Hash(s) != Hash(Normalize(s)) {
			rt.Fatalf("Hash(Normalize(s)) differs from Hash(s) for %q", s)
		}
	})
}
