package export

import (
	"strings"
	"testing"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{"control chars dropped", " A\nB\rC\tD\x00 ", 100, "ABCD"},
		{"allowed kept", "Az09 -_.,()", 100, "Az09 -_.,()"},
		{"disallowed replaced", "bad<>|\"name", 100, "bad____name"},
		{"slashes replaced", "dir/clip.mp4", 100, "dir_clip.mp4"},
		{"truncated", "abcdefghijklmnopqrstuvwxyz", 10, "abcdefghij"},
		{"no limit", "abcdefghijklmnopqrstuvwxyz", 0, "abcdefghijklmnopqrstuvwxyz"},
		{"unicode letters", "Café 東京", 100, "Café 東京"},
		{"trailing space after truncation", "abcd efgh", 5, "abcd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeName(tt.input, tt.maxLen)
			if got != tt.want {
				t.Errorf("SanitizeName(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
			if strings.ContainsAny(got, "\n\r\t\x00") {
				t.Errorf("SanitizeName output contains control chars: %q", got)
			}
		})
	}
}
