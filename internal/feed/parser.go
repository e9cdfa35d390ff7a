package feed

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

var (
	itemRe  = regexp.MustCompile(`(?is)<item(?:\s[^>]*)?>(.*?)</item>`)
	entryRe = regexp.MustCompile(`(?is)<entry(?:\s[^>]*)?>(.*?)</entry>`)

	linkTagRe     = regexp.MustCompile(`(?is)<link\b[^>]*>`)
	hrefRe        = regexp.MustCompile(`(?is)\bhref\s*=\s*["']([^"']+)["']`)
	relRe         = regexp.MustCompile(`(?is)\brel\s*=\s*["']([^"']+)["']`)
	bareLinkRe    = regexp.MustCompile(`(?is)<link\s*/>\s*(https?://[^\s<]+)`)
	tagPatterns   = map[string]*regexp.Regexp{}
	htmlSignature = []string{"<!doctype html", "<html"}
)

var (
	descriptionTags = []string{"description", "summary", "content:encoded", "content"}
	dateTags        = []string{"pubDate", "published", "updated", "dc:date"}
)

var dateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339Nano,
	time.RFC3339,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"Mon, 02 Jan 2006 15:04 -0700",
	"2 Jan 2006 15:04:05 -0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func init() {
	for _, name := range append([]string{"title", "link", "guid"}, append(descriptionTags, dateTags...)...) {
		tagPatterns[name] = regexp.MustCompile(`(?is)<` + regexp.QuoteMeta(name) + `(?:\s+|\s[^>]*[^/>])?>(.*?)</` + regexp.QuoteMeta(name) + `>`)
	}
}

// Parse extracts items from an RSS, Atom or JSON Feed document. Documents
// that look like HTML pages fail with a NotXMLError.
func Parse(body []byte) ([]Item, error) {
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(body, []byte("\xef\xbb\xbf")))
	if len(trimmed) == 0 {
		return []Item{}, nil
	}

	if trimmed[0] == '{' {
		return parseJSONFeed(trimmed)
	}

	head := strings.ToLower(string(trimmed[:min(len(trimmed), 512)]))
	for _, sig := range htmlSignature {
		if strings.HasPrefix(head, sig) {
			return nil, &NotXMLError{Snippet: snippet(trimmed)}
		}
	}
	if trimmed[0] != '<' {
		return nil, &NotXMLError{Snippet: snippet(trimmed)}
	}

	doc := string(trimmed)
	if items := scan(doc, itemRe); len(items) > 0 {
		return items, nil
	}
	if items := scan(doc, entryRe); len(items) > 0 {
		return items, nil
	}
	return []Item{}, nil
}

func scan(doc string, re *regexp.Regexp) []Item {
	blocks := re.FindAllStringSubmatch(doc, -1)
	items := make([]Item, 0, len(blocks))
	for _, m := range blocks {
		block := m[1]
		item := Item{
			Title: tagText(block, "title"),
			Link:  extractLink(block),
		}
		for _, name := range descriptionTags {
			if d := tagText(block, name); d != "" {
				item.Description = d
				break
			}
		}
		for _, name := range dateTags {
			if t := parseDate(tagText(block, name)); t != nil {
				item.PublishedAt = t
				break
			}
		}
		items = append(items, item)
	}
	return items
}

func tagText(block, name string) string {
	m := tagPatterns[name].FindStringSubmatch(block)
	if m == nil {
		return ""
	}
	return CleanText(m[1])
}

// extractLink tries <link>url</link>, an href attribute, a bare URL after
// a self-closing <link/> and finally <guid>.
func extractLink(block string) string {
	if link := tagText(block, "link"); link != "" {
		return link
	}

	var fallback string
	for _, tag := range linkTagRe.FindAllString(block, -1) {
		href := hrefRe.FindStringSubmatch(tag)
		if href == nil {
			continue
		}
		rel := relRe.FindStringSubmatch(tag)
		if rel == nil || strings.EqualFold(rel[1], "alternate") {
			return CleanText(href[1])
		}
		if fallback == "" {
			fallback = CleanText(href[1])
		}
	}
	if fallback != "" {
		return fallback
	}

	if m := bareLinkRe.FindStringSubmatch(block); m != nil {
		return m[1]
	}
	return tagText(block, "guid")
}

func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func parseJSONFeed(body []byte) ([]Item, error) {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse json feed: %w", err)
	}

	items := make([]Item, 0, len(parsed.Items))
	for _, it := range parsed.Items {
		item := Item{
			Title:       CleanText(it.Title),
			Link:        strings.TrimSpace(it.Link),
			Description: CleanText(it.Description),
		}
		if item.Description == "" {
			item.Description = CleanText(it.Content)
		}
		if item.Link == "" {
			item.Link = strings.TrimSpace(it.GUID)
		}
		switch {
		case it.PublishedParsed != nil:
			t := it.PublishedParsed.UTC()
			item.PublishedAt = &t
		case it.UpdatedParsed != nil:
			t := it.UpdatedParsed.UTC()
			item.PublishedAt = &t
		}
		items = append(items, item)
	}
	return items, nil
}

func snippet(b []byte) string {
	s := string(b)
	if r := []rune(s); len(r) > 80 {
		return string(r[:80])
	}
	return s
}
