package scan

import "testing"

func TestCanonicalize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"John.Doe@Example.COM", "john.doe@example.com"},
		{"  bob@corp.io  ", "bob@corp.io"},
		{"<jane@sub.example.org>", "jane@sub.example.org"},
		{"< jane@sub.example.org >", "jane@sub.example.org"},
		{"<not-closed@example.com", "<not-closed@example.com"},
		{"", ""},
		{"   ", ""},
		{"<>", ""},
	}
	for _, c := range cases {
		if got := Canonicalize(c.in); got != c.want {
			t.Errorf("Canonicalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

// TestCanonicalizeIdempotent verifies canonicalize(canonicalize(x)) == canonicalize(x)
// including the awkward whitespace-inside-brackets forms.
func TestCanonicalizeIdempotent(t *testing.T) {
	inputs := []string{
		"John.Doe@Example.COM",
		"< a@b.co >",
		"<A@B.CO>",
		"  <x@y.dev>  ",
		"plain@text.net",
		"",
	}
	for _, in := range inputs {
		once := Canonicalize(in)
		twice := Canonicalize(once)
		if once != twice {
			t.Errorf("not idempotent for %q: first=%q second=%q", in, once, twice)
		}
	}
}
