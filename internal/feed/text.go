package feed

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const maxDecodePasses = 3

var cdataRe = regexp.MustCompile(`(?s)<!\[CDATA\[(.*?)\]\]>`)

// CleanText unwraps CDATA, strips markup, decodes entities (repeatedly, for
// double-encoded input) and collapses whitespace. Escaped markup survives as
// literal text.
func CleanText(s string) string {
	s = cdataRe.ReplaceAllString(s, "$1")
	if strings.ContainsRune(s, '<') {
		s = stripTags(s)
	}
	s = DecodeEntities(s)
	return strings.Join(strings.Fields(s), " ")
}

// DecodeEntities resolves named, decimal and hex entities, up to three times.
func DecodeEntities(s string) string {
	for i := 0; i < maxDecodePasses; i++ {
		if !strings.ContainsRune(s, '&') {
			break
		}
		decoded := html.UnescapeString(s)
		if decoded == s {
			break
		}
		s = decoded
	}
	return s
}

func stripTags(s string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	doc.Find("script, style").Remove()
	doc.Find("br, p, div, li").Each(func(_ int, sel *goquery.Selection) {
		sel.AppendHtml(" ")
	})
	return doc.Text()
}
