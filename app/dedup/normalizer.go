package dedup

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

// Normalize strips markup tags and entities from raw item text, collapses all
// whitespace runs to single spaces and trims the result. Case is preserved so
// the output stays usable for display; callers that need case-insensitive
// comparison fold separately. Any input yields a string, empty in for empty out.
func Normalize(raw string) string {
	if raw == "" {
		return ""
	}

	text := norm.NFC.String(raw)

	if strings.ContainsAny(text, "<&") {
		text = stripMarkup(text)
	}

	return strings.Join(strings.Fields(text), " ")
}

// stripMarkup tokenizes the input as HTML and keeps only text nodes. The
// tokenizer decodes entities and tolerates malformed markup, emitting whatever
// text it can recover. Tags are replaced with a space so adjacent words do not
// fuse across element boundaries.
func stripMarkup(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return b.String()
		case html.TextToken:
			b.Write(z.Text())
		default:
			b.WriteByte(' ')
		}
	}
}
