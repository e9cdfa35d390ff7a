package draft

import (
	"encoding/json"
	"fmt"
	"strings"

	"contentflow/pipeline/internal/blocks"
	"contentflow/pipeline/internal/models"
)

// Meta is the article metadata the model returns next to the blocks.
type Meta struct {
	Title          string   `json:"title"`
	SEOTitle       string   `json:"seoTitle"`
	SEODescription string   `json:"seoDescription"`
	Slug           string   `json:"slug"`
	Categories     []string `json:"categories"`
}

// Draft is a parsed model response.
type Draft struct {
	Meta   Meta
	Blocks blocks.Sequence
	// Issues lists blocks that were dropped because they failed validation.
	Issues []blocks.Issue
}

// Parse reads a {meta, blocks} object from a model response. A markdown code
// fence around the JSON and a bare top-level blocks array are accepted. It
// returns nil when no usable blocks can be recovered.
func Parse(text string) *Draft {
	s := stripFence(strings.TrimSpace(text))
	if s == "" {
		return nil
	}

	if s[0] == '[' {
		seq, issues, err := blocks.ParseLenient([]byte(s))
		if err != nil || len(seq) == 0 {
			return nil
		}
		return &Draft{Blocks: seq, Issues: issues}
	}

	// Models sometimes wrap the object in prose.
	start, end := strings.Index(s, "{"), strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return nil
	}

	var envelope struct {
		Meta   Meta            `json:"meta"`
		Blocks json.RawMessage `json:"blocks"`
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), &envelope); err != nil || len(envelope.Blocks) == 0 {
		return nil
	}
	seq, issues, err := blocks.ParseLenient(envelope.Blocks)
	if err != nil || len(seq) == 0 {
		return nil
	}
	return &Draft{Meta: envelope.Meta, Blocks: seq, Issues: issues}
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	// language tag on the opening line
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		return ""
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

const reviewNotice = "טיוטה זו נוצרה אוטומטית ולא ניתן היה לעבד את תשובת המודל. נדרשת בדיקה ועריכה ידנית לפני פרסום."

// Fallback builds a minimal article from the idea and the raw model output:
// a heading, a paragraph holding the raw text and a review notice.
func Fallback(idea *models.Idea, raw string) *Draft {
	text := strings.TrimSpace(raw)
	if text == "" {
		text = strings.TrimSpace(idea.Description)
	}
	if text == "" {
		text = idea.Title
	}
	return &Draft{
		Meta: Meta{Title: idea.Title},
		Blocks: blocks.Sequence{
			blocks.Heading{Level: 1, Text: idea.Title},
			blocks.Paragraph{Text: text},
			blocks.Callout{Tone: "warning", Text: reviewNotice},
		},
	}
}

// Validate returns warnings for a body that is missing the minimum structure.
func Validate(seq blocks.Sequence) []string {
	var warnings []string
	if n := seq.Count(blocks.KindHeading); n < 1 {
		warnings = append(warnings, "no heading block")
	}
	if n := seq.Count(blocks.KindParagraph); n < 2 {
		warnings = append(warnings, fmt.Sprintf("%d paragraph blocks, want at least 2", n))
	}
	return warnings
}
