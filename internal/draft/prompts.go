package draft

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"contentflow/pipeline/internal/models"
)

const systemTemplate = `You are a senior editor at a Hebrew-language publication for accountants, tax advisers and small business owners.
You write accurate, practical articles in Hebrew. You never invent figures, dates or legal references that are not in the material you are given.

Respond with a single JSON object and nothing else:
{
  "meta": {
    "title": "article title",
    "seoTitle": "title for search results, up to 60 characters",
    "seoDescription": "summary for search results, up to 160 characters",
    "slug": "latin-lowercase-slug",
    "categories": ["category"]
  },
  "blocks": [
    {"type": "heading", "level": 2, "text": "..."},
    {"type": "paragraph", "text": "..."},
    {"type": "list", "ordered": false, "items": ["..."]},
    {"type": "callout", "tone": "info", "text": "..."}
  ]
}
Allowed block types: heading, paragraph, list, quote, callout, divider, table, image.
The article must have at least one heading and at least two paragraphs.`

const userTemplate = `Write an article based on the following item.

Title: {{.Title}}
{{- if .Description}}
Summary: {{.Description}}
{{- end}}
{{- if .OriginURL}}
Source link: {{.OriginURL}}
{{- end}}
{{- if .Tags}}
Tags: {{join .Tags ", "}}
{{- end}}
{{- if .PublishedAt}}
Published: {{.PublishedAt}}
{{- end}}`

// strictSuffix is appended to the user prompt when the first response could not be parsed.
const strictSuffix = `

IMPORTANT: your previous answer was not valid JSON. Return ONLY the JSON object described in the instructions, with no code fences, comments or text before or after it.`

var (
	systemTmpl = template.Must(template.New("system").Parse(systemTemplate))
	userTmpl   = template.Must(template.New("user").Funcs(template.FuncMap{"join": strings.Join}).Parse(userTemplate))
)

type promptData struct {
	Title       string
	Description string
	OriginURL   string
	Tags        []string
	PublishedAt string
}

// BuildPrompts renders the system and user prompts for idea.
func BuildPrompts(idea *models.Idea) (system, user string, err error) {
	data := promptData{
		Title:       idea.Title,
		Description: idea.Description,
		Tags:        []string(idea.Tags),
	}
	if idea.OriginURL != nil {
		data.OriginURL = *idea.OriginURL
	}
	if idea.OriginPublishedAt != nil {
		data.PublishedAt = idea.OriginPublishedAt.UTC().Format("2006-01-02 15:04 MST")
	}

	var sys, usr bytes.Buffer
	if err := systemTmpl.Execute(&sys, data); err != nil {
		return "", "", fmt.Errorf("render system prompt: %w", err)
	}
	if err := userTmpl.Execute(&usr, data); err != nil {
		return "", "", fmt.Errorf("render user prompt: %w", err)
	}
	return sys.String(), usr.String(), nil
}
