package utils

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	richText  = bluemonday.UGCPolicy()
	plainText = bluemonday.StrictPolicy()
)

// Sanitize cleans HTML content to prevent XSS attacks.
func Sanitize(input string) string {
	return richText.Sanitize(input)
}

// SanitizeText strips all markup, for names and labels.
func SanitizeText(input string) string {
	return strings.TrimSpace(plainText.Sanitize(input))
}
