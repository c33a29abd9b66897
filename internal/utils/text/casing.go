package text

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Normalize composes the text to NFC so precomposed and combining forms of
// the same letter compare and count equally.
func Normalize(content string) string {
	return norm.NFC.String(content)
}

// Length is the rune count of the normalized text.
func Length(content string) int {
	return utf8.RuneCountInString(Normalize(content))
}

// UppercaseRatio divides the number of uppercase letters by the full length
// of the text, punctuation and spaces included.
func UppercaseRatio(content string) float64 {
	normalized := Normalize(content)
	total, upper := 0, 0
	for _, r := range normalized {
		total++
		if unicode.IsUpper(r) {
			upper++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(upper) / float64(total)
}

// IsCommand reports whether the text is a slash command.
func IsCommand(content string) bool {
	return strings.HasPrefix(content, "/")
}
