// Package sanitize normalizes externally sourced text before storage.
// Webhook payloads, mail subjects and CSV cells arrive unescaped and
// occasionally carry markup or control characters.
package sanitize

import (
	"html"
	"regexp"
	"strings"
)

var (
	tagPattern = regexp.MustCompile(`<[^>]*>`)
	// whitespace runs plus ASCII control characters, tab/newline included
	spacePattern = regexp.MustCompile(`[\s\x00-\x1f\x7f]+`)
)

// Text strips markup and control characters from a single-line value and
// collapses whitespace runs. Entity-encoded tags are stripped after
// decoding, so "&lt;b&gt;" does not survive as "<b>".
func Text(s string) string {
	out := tagPattern.ReplaceAllString(s, "")
	out = html.UnescapeString(out)
	out = tagPattern.ReplaceAllString(out, "")
	out = spacePattern.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

// TextPtr sanitizes optional strings, mapping nil to nil.
func TextPtr(s *string) *string {
	if s == nil {
		return nil
	}
	out := Text(*s)
	return &out
}
