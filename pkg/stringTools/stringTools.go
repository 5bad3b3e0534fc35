package stringtools

import "strings"

// ParseStringToBoolPtr parses the loose boolean spellings found in stored
// settings ("1", "yes", "on", "true" and their negatives). An empty string
// is false. Anything else yields nil so the caller can keep the raw string.
func ParseStringToBoolPtr(s string) *bool {
	var result bool
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		result = true
	case "", "0", "false", "no", "off":
		result = false
	default:
		return nil
	}
	return &result
}

// IsInteger reports whether s is a canonical base-10 integer: an optional
// minus sign followed by digits without a leading zero ("0" itself is fine).
func IsInteger(s string) bool {
	digits := strings.TrimPrefix(s, "-")
	if digits == "" || !isDigits(digits) {
		return false
	}
	if digits == "0" {
		return s == "0"
	}
	return digits[0] != '0'
}

// IsDecimal reports whether s looks like digits.digits with an optional sign.
func IsDecimal(s string) bool {
	whole, frac, ok := strings.Cut(strings.TrimPrefix(s, "-"), ".")
	return ok && isDigits(whole) && isDigits(frac)
}

// Ellipsis shortens s to at most length runes, marking the cut with "…".
func Ellipsis(s string, length int) string {
	runes := []rune(s)
	if length <= 0 || len(runes) <= length {
		return s
	}
	return string(runes[:length-1]) + "…"
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
