package ingest

import (
	"strings"
	"unicode"
)

// Normalize схлопывает пробелы и управляющие символы (включая NBSP и \x00)
// в одиночные пробелы и обрезает края.
func Normalize(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	space := false
	for _, r := range s {
		if r == ' ' || unicode.IsSpace(r) || unicode.IsControl(r) {
			space = true
			continue
		}
		if space && sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		space = false
		sb.WriteRune(r)
	}
	return sb.String()
}
