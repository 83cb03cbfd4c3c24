package utils

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// NormalizeName composes the name to NFC, trims it and collapses runs of
// whitespace so that identity keys compare exactly.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(norm.NFC.String(name)), " ")
}

// NormalizeHeader trims a header and composes it to NFC. Case is preserved.
func NormalizeHeader(h string) string {
	return strings.TrimFunc(norm.NFC.String(h), func(r rune) bool {
		return unicode.IsSpace(r) || r == '\ufeff'
	})
}

// NormalizePhone renders 10-digit numbers (or 11 digits with a leading
// country code 1) as "(555) 123-4567". Anything else is returned trimmed.
func NormalizePhone(raw string) string {
	v := strings.TrimSpace(raw)
	var digits strings.Builder
	for _, r := range v {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	if len(d) == 11 && d[0] == '1' {
		d = d[1:]
	}
	if len(d) != 10 {
		return v
	}
	return "(" + d[:3] + ") " + d[3:6] + "-" + d[6:]
}

// NilIfEmpty returns nil for blank strings and a pointer to the trimmed value otherwise.
func NilIfEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// Deref returns the pointed-to string or "".
func Deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
