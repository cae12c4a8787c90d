package escrow

import (
	"strings"
	"testing"
)

func TestNormalizeUsername(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "alice", "alice"},
		{"leading at stripped", "@alice", "alice"},
		{"mixed case preserved", "Alice99", "Alice99"},
		{"punctuation dropped", "ali-ce_!", "alice"},
		{"spaces dropped", " a lice ", "alice"},
		{"unicode dropped", "ალиce", "ce"},
		{"truncated", strings.Repeat("a", 40), strings.Repeat("a", 32)},
		{"only invalid chars", "@!#$", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeUsername(tt.in); got != tt.want {
				t.Errorf("NormalizeUsername(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatUsername(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"alice", "@alice"},
		{"@alice", "@alice"},
		{"", ""},
		{"  ", ""},
	}

	for _, tt := range tests {
		if got := FormatUsername(tt.in); got != tt.want {
			t.Errorf("FormatUsername(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
