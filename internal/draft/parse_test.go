package draft

import (
	"strings"
	"testing"
	"time"

	"contentflow/pipeline/internal/blocks"
	"contentflow/pipeline/internal/models"
)

const objectResponse = `{"meta":{"title":"חוזר מקצועי חדש","slug":"new-circular","categories":["Tax"]},
"blocks":[{"type":"heading","level":2,"text":"מה השתנה"},{"type":"paragraph","text":"פסקה ראשונה"},{"type":"paragraph","text":"פסקה שנייה"}]}`

func TestParse(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		in         string
		wantNil    bool
		wantBlocks int
		wantTitle  string
	}{
		{name: "object", in: objectResponse, wantBlocks: 3, wantTitle: "חוזר מקצועי חדש"},
		{name: "code fence", in: "```json\n" + objectResponse + "\n```", wantBlocks: 3, wantTitle: "חוזר מקצועי חדש"},
		{name: "fence without language", in: "```\n" + objectResponse + "\n```", wantBlocks: 3},
		{name: "prose around object", in: "Here is the article:\n" + objectResponse + "\nEnjoy.", wantBlocks: 3},
		{name: "bare array", in: `[{"type":"heading","text":"a"},{"type":"paragraph","text":"b"}]`, wantBlocks: 2},
		{name: "invalid blocks dropped", in: `[{"type":"heading","text":"a"},{"type":"marquee","text":"b"}]`, wantBlocks: 1},
		{name: "not json", in: "I cannot write this article.", wantNil: true},
		{name: "empty", in: "   ", wantNil: true},
		{name: "empty array", in: "[]", wantNil: true},
		{name: "object without blocks", in: `{"meta":{"title":"x"}}`, wantNil: true},
		{name: "broken json", in: `{"meta": {"title": "x"}, "blocks": [`, wantNil: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Parse(tc.in)
			if tc.wantNil {
				if got != nil {
					t.Fatalf("Parse = %+v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatal("Parse = nil")
			}
			if len(got.Blocks) != tc.wantBlocks {
				t.Errorf("blocks = %d, want %d", len(got.Blocks), tc.wantBlocks)
			}
			if tc.wantTitle != "" && got.Meta.Title != tc.wantTitle {
				t.Errorf("title = %q", got.Meta.Title)
			}
		})
	}
}

func TestParseReportsDroppedBlocks(t *testing.T) {
	t.Parallel()

	d := Parse(`[{"type":"paragraph","text":"ok"},{"type":"paragraph"}]`)
	if d == nil || len(d.Issues) != 1 || d.Issues[0].Index != 1 {
		t.Fatalf("draft = %+v", d)
	}
}

func TestFallback(t *testing.T) {
	t.Parallel()

	idea := &models.Idea{Title: "כותרת", Description: "תיאור"}
	d := Fallback(idea, "  raw model text ")
	if len(d.Blocks) != 3 {
		t.Fatalf("blocks = %d", len(d.Blocks))
	}
	if h, ok := d.Blocks[0].(blocks.Heading); !ok || h.Text != "כותרת" {
		t.Errorf("first block = %#v", d.Blocks[0])
	}
	if p, ok := d.Blocks[1].(blocks.Paragraph); !ok || p.Text != "raw model text" {
		t.Errorf("second block = %#v", d.Blocks[1])
	}
	if _, ok := d.Blocks[2].(blocks.Callout); !ok {
		t.Errorf("third block = %#v", d.Blocks[2])
	}

	if p := Fallback(idea, "").Blocks[1].(blocks.Paragraph); p.Text != "תיאור" {
		t.Errorf("empty raw uses %q", p.Text)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	good := blocks.Sequence{blocks.Heading{Level: 2, Text: "h"}, blocks.Paragraph{Text: "a"}, blocks.Paragraph{Text: "b"}}
	if w := Validate(good); len(w) != 0 {
		t.Errorf("warnings = %v", w)
	}
	if w := Validate(blocks.Sequence{blocks.Paragraph{Text: "a"}}); len(w) != 2 {
		t.Errorf("warnings = %v, want 2", w)
	}
	if w := Validate(Fallback(&models.Idea{Title: "t"}, "x").Blocks); len(w) != 1 {
		t.Errorf("fallback warnings = %v, want the paragraph warning only", w)
	}
}

func TestBuildPrompts(t *testing.T) {
	t.Parallel()

	url := "https://tax.example/c/1"
	published := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	idea := &models.Idea{
		Title:             "רשות המסים: חוזר מקצועי חדש",
		Description:       "פרטים",
		OriginURL:         &url,
		Tags:              models.StringList{"tax", "circular"},
		OriginPublishedAt: &published,
	}

	system, user, err := BuildPrompts(idea)
	if err != nil {
		t.Fatalf("BuildPrompts: %v", err)
	}
	if !strings.Contains(system, `"blocks"`) {
		t.Error("system prompt does not describe the output shape")
	}
	for _, want := range []string{idea.Title, "Summary: פרטים", "Source link: " + url, "Tags: tax, circular", "Published: 2025-03-10 09:30 UTC"} {
		if !strings.Contains(user, want) {
			t.Errorf("user prompt missing %q:\n%s", want, user)
		}
	}

	_, bare, err := BuildPrompts(&models.Idea{Title: "only a title"})
	if err != nil {
		t.Fatalf("BuildPrompts: %v", err)
	}
	if strings.Contains(bare, "Summary:") || strings.Contains(bare, "Tags:") {
		t.Errorf("empty fields rendered:\n%s", bare)
	}
}
