// Package normalize canonicalizes question and answer text for cache keys and comparisons.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// ImageKeySeparator joins the question part and the image fingerprint of a cache key.
const ImageKeySeparator = "|||IMG:"

// A decimal mark directly before one or two trailing digits survives separator stripping.
var decimalTail = regexp.MustCompile(`[.,](\d{1,2})$`)

func fold(text string) string {
	// cases.Caser is stateful, so every call gets its own.
	return norm.NFC.String(cases.Lower(language.Und).String(text))
}

// Question lowercases text, trims it and collapses whitespace runs into one space.
// Only used to derive cache keys.
func Question(text string) string {
	return strings.Join(strings.Fields(fold(text)), " ")
}

// Answer lowercases and trims text and removes thousands separators (spaces, commas
// and dots), keeping a decimal mark followed by 1-2 trailing digits as ".".
// Answer("1 234,50") and Answer("1234.50") both give "1234.50".
func Answer(text string) string {
	s := strings.TrimSpace(fold(text))
	if s == "" {
		return ""
	}

	decimal := ""
	if m := decimalTail.FindStringSubmatchIndex(s); m != nil {
		decimal = "." + s[m[2]:m[3]]
		s = s[:m[0]]
	}

	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == ',' || r == '.' {
			return -1
		}
		return r
	}, s)

	return s + decimal
}

// CacheKey builds the memory key for a question, optionally bound to an image fingerprint.
func CacheKey(question, imageFingerprint string) string {
	key := Question(question)
	if imageFingerprint != "" {
		key += ImageKeySeparator + strings.ToLower(imageFingerprint)
	}
	return key
}

// QuestionFromKey strips the image part of a cache key for display.
func QuestionFromKey(key string) string {
	if i := strings.Index(key, ImageKeySeparator); i >= 0 {
		return key[:i]
	}
	return key
}
