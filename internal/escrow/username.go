package escrow

import "strings"

// MaxUsernameLen bounds on-ledger display names.
const MaxUsernameLen = 32

// NormalizeUsername strips a leading @, drops every character outside
// [a-zA-Z0-9] and truncates the result to MaxUsernameLen. An empty result
// means the input held no usable characters.
func NormalizeUsername(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "@")

	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
		if b.Len() >= MaxUsernameLen {
			break
		}
	}
	return b.String()
}

// FormatUsername renders a stored name for display with a single @ prefix.
// Empty names stay empty.
func FormatUsername(name string) string {
	name = strings.TrimPrefix(strings.TrimSpace(name), "@")
	if name == "" {
		return ""
	}
	return "@" + name
}
