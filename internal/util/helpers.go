package util

import "unicode/utf8"

// TruncateRunes — безопасное усечение по рунам
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	rs := []rune(s)
	return string(rs[:n])
}

// FirstNonEmpty возвращает первое непустое значение
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// IntPtr / StringPtr — для необязательных полей чанка
func IntPtr(v int) *int { return &v }

func StringPtr(v string) *string { return &v }
