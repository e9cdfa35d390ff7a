// Package publisher places approved content in the headless CMS document store.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"contentflow/pipeline/internal/blocks"
	"contentflow/pipeline/internal/cache"
	"contentflow/pipeline/internal/models"
)

const (
	documentPrefix = "cf-"
	draftPrefix    = "drafts."
)

// ErrNotConfigured is returned when the document store has no credentials or target.
var ErrNotConfigured = errors.New("document store not configured")

// UnavailableError wraps failures reaching the document store.
type UnavailableError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *UnavailableError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("document store %s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("document store %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Reference points at another document.
type Reference struct {
	Ref  string `json:"_ref"`
	Type string `json:"_type"`
}

// Document is the CMS representation of an article rendering.
type Document struct {
	ID             string          `json:"_id"`
	Type           string          `json:"_type"`
	Title          string          `json:"title"`
	Slug           string          `json:"slug,omitempty"`
	Body           blocks.Sequence `json:"body"`
	PlainText      string          `json:"plainText"`
	Content        string          `json:"content,omitempty"`
	Platform       models.Platform `json:"platform"`
	AssetVersion   int             `json:"assetVersion"`
	SEOTitle       string          `json:"seoTitle,omitempty"`
	SEODescription string          `json:"seoDescription,omitempty"`
	Categories     []Reference     `json:"categories,omitempty"`
	ArticleID      string          `json:"articleId"`
	PublishedAt    *time.Time      `json:"publishedAt,omitempty"`
}

// DocumentStore is the publishing target.
type DocumentStore interface {
	CreateOrReplace(ctx context.Context, doc Document) error
	Exists(ctx context.Context, id string) (bool, error)
}

// DocumentID derives the CMS id of an article; drafts live under a separate prefix.
func DocumentID(articleID string, draft bool) string {
	id := documentPrefix + articleID
	if draft {
		return draftPrefix + id
	}
	return id
}

// CategoryID derives the CMS id of a category document from its name.
func CategoryID(name string) string {
	slug := strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(name))), "-")
	return "category-" + slug
}

// Result describes where the content ended up.
type Result struct {
	DocumentID string
	URL        string
}

// Publisher renders articles into documents and writes them to a DocumentStore.
type Publisher struct {
	store   DocumentStore
	refs    *cache.TTL[string, bool]
	siteURL string
	now     func() time.Time
}

// New creates a Publisher. refs caches category existence lookups.
func New(store DocumentStore, refs *cache.TTL[string, bool], siteURL string) *Publisher {
	if refs == nil {
		refs = cache.NewTTL[string, bool](10*time.Minute, nil)
	}
	return &Publisher{
		store:   store,
		refs:    refs,
		siteURL: strings.TrimRight(siteURL, "/"),
		now:     time.Now,
	}
}

// Publish writes the article rendering carried by asset. Drafts are written
// under the drafts prefix and get no public URL.
func (p *Publisher) Publish(ctx context.Context, article *models.Article, asset *models.Asset, draft bool) (*Result, error) {
	if p == nil || p.store == nil {
		return nil, ErrNotConfigured
	}

	doc := Document{
		ID:             DocumentID(article.ID, draft),
		Type:           "article",
		Title:          article.Title,
		Slug:           article.Slug,
		Body:           article.Body,
		PlainText:      article.PlainText,
		Content:        asset.Content,
		Platform:       asset.Platform,
		AssetVersion:   asset.Version,
		SEOTitle:       article.SEOTitle,
		SEODescription: article.SEODescription,
		ArticleID:      article.ID,
	}
	if !draft {
		now := p.now().UTC()
		doc.PublishedAt = &now
	}

	refs, err := p.resolveCategories(ctx, categoryNames(asset.Metadata))
	if err != nil {
		return nil, err
	}
	doc.Categories = refs

	if err := p.store.CreateOrReplace(ctx, doc); err != nil {
		return nil, err
	}

	res := &Result{DocumentID: doc.ID}
	if !draft && p.siteURL != "" {
		slug := article.Slug
		if slug == "" {
			slug = article.ID
		}
		res.URL = p.siteURL + "/" + slug
	}
	log.Info().Str("document_id", doc.ID).Str("platform", string(asset.Platform)).Msg("Published document")
	return res, nil
}

func (p *Publisher) resolveCategories(ctx context.Context, names []string) ([]Reference, error) {
	var refs []Reference
	for _, name := range names {
		id := CategoryID(name)
		exists, err := p.refs.GetOrLoad(ctx, id, func(ctx context.Context) (bool, error) {
			return p.store.Exists(ctx, id)
		})
		if err != nil {
			return nil, fmt.Errorf("resolve category %q: %w", name, err)
		}
		if !exists {
			log.Warn().Str("category", name).Msg("Category document not found, skipping reference")
			continue
		}
		refs = append(refs, Reference{Ref: id, Type: "reference"})
	}
	return refs, nil
}

func categoryNames(meta models.JSONMap) []string {
	raw, ok := meta["categories"]
	if !ok {
		return nil
	}
	var names []string
	switch v := raw.(type) {
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				names = append(names, s)
			}
		}
	case []string:
		names = append(names, v...)
	case string:
		if strings.TrimSpace(v) != "" {
			names = append(names, v)
		}
	}
	return names
}
