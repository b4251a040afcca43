package services

import "strings"

// htmlEscaper neutralises the five HTML-significant characters, using the
// same entities as the web client's template layer.
var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
)

// Sanitize escapes markup in user-supplied message text.
func Sanitize(s string) string {
	return htmlEscaper.Replace(s)
}
