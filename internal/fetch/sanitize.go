package fetch

import (
	"fmt"
	"regexp"
	"strings"
)

var unsafeTitleChars = regexp.MustCompile(`[^\p{L}\p{N}_\-. ]`)

const maxTitleRunes = 180

// SanitizeTitle turns a media title into a filesystem-safe filename stem.
// Characters outside letters, digits, underscore, hyphen, period and space
// become underscores; the result is bounded to 180 runes. Trimming happens
// after the cut so applying the function twice changes nothing.
func SanitizeTitle(s string) string {
	s = unsafeTitleChars.ReplaceAllString(s, "_")

	if r := []rune(s); len(r) > maxTitleRunes {
		s = string(r[:maxTitleRunes])
	}

	return strings.TrimSpace(s)
}

// HumanSize renders a byte count for user-facing captions ("4.8 MB").
func HumanSize(n int64) string {
	x := float64(n)
	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if x < 1024 {
			return fmt.Sprintf("%.1f %s", x, unit)
		}

		x /= 1024
	}

	return fmt.Sprintf("%.1f TB", x)
}
