package utils

import "testing"

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"plain.mkv":           "plain.mkv",
		`a<b>c:d"e/f\g|h?i*j`: "abcdefghij",
		"trailing dots... ":   "trailing dots",
		"  spaced name.mp4":   "  spaced name.mp4",
	}
	for in, want := range cases {
		if got := SanitizeFilename(in); got != want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
