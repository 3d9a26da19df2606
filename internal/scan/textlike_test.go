package scan

import "testing"

func TestLooksLikeText(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"/data/notes.txt", true},
		{"/data/mail.mbox", true},
		{"/data/noext", true},
		{"/data/photo.PNG", false},
		{"/data/photo.jpeg", false},
		{"/data/report.pdf", false},
		{"/data/archive.zip", false},
		{"/data/lib.so", false},
	}
	for _, c := range cases {
		if got := LooksLikeText(c.path); got != c.want {
			t.Errorf("LooksLikeText(%q) = %v, want %v", c.path, got, c.want)
		}
	}
}
