package server

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"contentflow/pipeline/internal/ai"
	"contentflow/pipeline/internal/database"
	"contentflow/pipeline/internal/draft"
	"contentflow/pipeline/internal/editorial"
	"contentflow/pipeline/internal/models"
	"contentflow/pipeline/internal/process"
	"contentflow/pipeline/internal/scoring"
	"contentflow/pipeline/internal/server/api"
	"contentflow/pipeline/internal/server/storage"
	"contentflow/pipeline/internal/store"
)

type fakePoller struct{}

func (fakePoller) PollSource(ctx context.Context, sourceID string) (*process.PollResult, error) {
	return &process.PollResult{SourceID: sourceID, Err: errors.New("feed returned status 502")}, nil
}

func (fakePoller) PollAll(ctx context.Context) (*process.BatchResult, error) {
	return &process.BatchResult{Created: 3, Skipped: 1}, nil
}

type fakeDrafter struct {
	err error
}

func (f fakeDrafter) Generate(ctx context.Context, ideaID, actor string) (*draft.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &draft.Result{Article: &models.Article{ID: uuid.NewString(), Title: "Draft"}, Generation: &models.Generation{ID: "gen-1"}}, nil
}

type failingSchema struct{}

func (failingSchema) CheckSchema(ctx context.Context) error {
	return &store.Error{Kind: store.KindSchemaMissing, Entity: "schema"}
}

type testServer struct {
	db      *database.DB
	handler http.Handler
}

func newTestServer(t *testing.T, mutate func(*Deps)) *testServer {
	t.Helper()
	db, err := database.NewDB(database.NewConfig(database.DriverSQLite, ":memory:"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	deps := Deps{
		Repo:      storage.NewRepository(db),
		Health:    db,
		Poller:    fakePoller{},
		Drafter:   fakeDrafter{},
		Editorial: editorial.NewService(db, scoring.New(nil), nil, zerolog.Nop()),
	}
	if mutate != nil {
		mutate(&deps)
	}
	return &testServer{db: db, handler: NewHandler(deps, zerolog.Nop())}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-Actor", "editor@example.com")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) seedSource(t *testing.T) *models.Source {
	t.Helper()
	src := models.NewSource()
	src.ID = uuid.NewString()
	src.Name = "Tax authority"
	src.URL = "https://tax.example/rss"
	src.Category = "Tax"
	src.Tags = models.StringList{"vat", "tax"}
	err := s.db.WithinTx(context.Background(), func(tx store.Tx) error {
		return tx.CreateSource(context.Background(), src)
	})
	if err != nil {
		t.Fatalf("seed source: %v", err)
	}
	return src
}

func (s *testServer) seedArticle(t *testing.T) *models.Article {
	t.Helper()
	a := models.NewArticle()
	a.ID = uuid.NewString()
	a.Title = "Quarterly VAT update"
	a.Slug = "quarterly-vat-update"
	err := s.db.WithinTx(context.Background(), func(tx store.Tx) error {
		return tx.CreateArticle(context.Background(), a)
	})
	if err != nil {
		t.Fatalf("seed article: %v", err)
	}
	return a
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	if rec := s.do(t, http.MethodGet, "/health", nil); rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Errorf("health = %d %q, want 200 OK", rec.Code, rec.Body.String())
	}

	broken := newTestServer(t, func(d *Deps) { d.Health = failingSchema{} })
	if rec := broken.do(t, http.MethodGet, "/health", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("health with missing schema = %d, want 503", rec.Code)
	}
}

func TestAPIKey(t *testing.T) {
	s := newTestServer(t, func(d *Deps) { d.APIKey = "secret" })

	tests := []struct {
		name string
		path string
		key  string
		want int
	}{
		{"missing key", "/v1/ideas?since=2025-01-01T00:00:00Z", "", http.StatusUnauthorized},
		{"wrong key", "/v1/ideas?since=2025-01-01T00:00:00Z", "nope", http.StatusUnauthorized},
		{"valid key", "/v1/ideas?since=2025-01-01T00:00:00Z", "secret", http.StatusOK},
		{"health is open", "/health", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			rec := httptest.NewRecorder()
			s.handler.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestCreateIdea(t *testing.T) {
	s := newTestServer(t, nil)
	src := s.seedSource(t)

	body := map[string]any{"title": "VAT rate change", "source_id": src.ID, "origin_url": "https://tax.example/a"}
	rec := s.do(t, http.MethodPost, "/v1/ideas", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", rec.Code, rec.Body.String())
	}
	idea := decode[models.Idea](t, rec)
	if idea.Status != models.IdeaStatusNew || idea.Score <= 0 {
		t.Errorf("idea = %+v, want NEW with a score", idea)
	}

	rec = s.do(t, http.MethodPost, "/v1/ideas", body)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate = %d, want 409", rec.Code)
	}
	if resp := decode[api.ErrorResponse](t, rec); resp.Kind != "precondition" {
		t.Errorf("duplicate kind = %q", resp.Kind)
	}

	rec = s.do(t, http.MethodPost, "/v1/ideas", map[string]any{"title": " ", "source_id": src.ID})
	if resp := decode[api.ErrorResponse](t, rec); rec.Code != http.StatusBadRequest || resp.Field != "title" {
		t.Errorf("blank title = %d %+v, want 400 on title", rec.Code, resp)
	}

	rec = s.do(t, http.MethodPost, "/v1/ideas", map[string]any{"title": "x", "unknown": true})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown field = %d, want 400", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/v1/ideas", map[string]any{"title": "x", "source_id": src.ID, "origin_published_at": "yesterday"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad timestamp = %d, want 400", rec.Code)
	}
}

func TestGetIdeasPagination(t *testing.T) {
	s := newTestServer(t, nil)
	src := s.seedSource(t)
	for i := range 3 {
		body := map[string]any{"title": fmt.Sprintf("Circular %d", i), "source_id": src.ID}
		if rec := s.do(t, http.MethodPost, "/v1/ideas", body); rec.Code != http.StatusCreated {
			t.Fatalf("create %d = %d %s", i, rec.Code, rec.Body.String())
		}
	}

	if rec := s.do(t, http.MethodGet, "/v1/ideas", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("no since or cursor = %d, want 400", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/v1/ideas?since=2000-01-01T00:00:00Z&limit=0", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("limit=0 = %d, want 400", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/v1/ideas?cursor=%25%25", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad cursor = %d, want 400", rec.Code)
	}

	rec := s.do(t, http.MethodGet, "/v1/ideas?since=2000-01-01T00:00:00Z&limit=2", nil)
	first := decode[api.IdeasResponse](t, rec)
	if len(first.Items) != 2 || first.NextCursor == nil {
		t.Fatalf("first page = %d items, cursor %v", len(first.Items), first.NextCursor)
	}

	rec = s.do(t, http.MethodGet, "/v1/ideas?limit=2&cursor="+*first.NextCursor, nil)
	second := decode[api.IdeasResponse](t, rec)
	if len(second.Items) != 1 || second.NextCursor != nil {
		t.Fatalf("second page = %d items, cursor %v", len(second.Items), second.NextCursor)
	}
	for _, idea := range first.Items {
		if idea.ID == second.Items[0].ID {
			t.Errorf("idea %s returned on both pages", idea.ID)
		}
	}

	rec = s.do(t, http.MethodGet, "/v1/ideas?since=2000-01-01T00:00:00Z&status=REJECTED", nil)
	if page := decode[api.IdeasResponse](t, rec); len(page.Items) != 0 {
		t.Errorf("REJECTED filter returned %d ideas", len(page.Items))
	}
}

func TestTransitionIdea(t *testing.T) {
	s := newTestServer(t, nil)
	src := s.seedSource(t)
	idea := decode[models.Idea](t, s.do(t, http.MethodPost, "/v1/ideas", map[string]any{"title": "Payroll", "source_id": src.ID}))

	rec := s.do(t, http.MethodPost, "/v1/ideas/"+idea.ID+"/transition", map[string]any{"status": "REJECTED"})
	if rec.Code != http.StatusOK {
		t.Fatalf("reject = %d %s", rec.Code, rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/v1/ideas/"+idea.ID+"/transition", map[string]any{"status": "SELECTED"})
	resp := decode[api.ErrorResponse](t, rec)
	if rec.Code != http.StatusConflict || resp.From != "REJECTED" || resp.To != "SELECTED" {
		t.Errorf("illegal transition = %d %+v", rec.Code, resp)
	}

	rec = s.do(t, http.MethodPost, "/v1/ideas/"+uuid.NewString()+"/transition", map[string]any{"status": "SELECTED"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown idea = %d, want 404", rec.Code)
	}
}

func TestContentFlow(t *testing.T) {
	s := newTestServer(t, nil)
	article := s.seedArticle(t)

	rec := s.do(t, http.MethodPost, "/v1/articles/"+article.ID+"/assets", map[string]any{"platform": "WEBSITE", "content": "body"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create asset = %d %s", rec.Code, rec.Body.String())
	}
	asset := decode[models.Asset](t, rec)

	if rec := s.do(t, http.MethodPost, "/v1/assets/"+asset.ID+"/transition", map[string]any{"status": "IN_REVIEW"}); rec.Code != http.StatusOK {
		t.Fatalf("asset to review = %d %s", rec.Code, rec.Body.String())
	}

	approval := map[string]any{"entity_type": "ASSET", "entity_id": asset.ID, "decision": "APPROVE", "comment": "ship it"}
	rec = s.do(t, http.MethodPost, "/v1/approvals", approval)
	if rec.Code != http.StatusCreated {
		t.Fatalf("approve = %d %s", rec.Code, rec.Body.String())
	}
	if got := decode[models.Approval](t, rec); got.Actor != "editor@example.com" {
		t.Errorf("approval actor = %q, want the X-Actor header", got.Actor)
	}

	// No publisher is configured.
	rec = s.do(t, http.MethodPost, "/v1/assets/"+asset.ID+"/publish", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("publish without publisher = %d, want 503", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/v1/assets/"+asset.ID+"/manual-publish", map[string]any{"external_url": "https://site.example/vat"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("manual publish = %d %s", rec.Code, rec.Body.String())
	}
	if job := decode[models.PublishJob](t, rec); job.Status != models.JobSucceeded {
		t.Errorf("manual job status = %s", job.Status)
	}

	rec = s.do(t, http.MethodPost, "/v1/articles/"+article.ID+"/transition", map[string]any{"status": "APPROVED"})
	if rec.Code != http.StatusConflict {
		t.Errorf("DRAFT to APPROVED = %d, want 409", rec.Code)
	}
}

func TestDraftErrors(t *testing.T) {
	rateLimited := fmt.Errorf("generate: %w", &ai.RateLimitError{Attempts: 3, RetryAfter: 30 * time.Second})
	s := newTestServer(t, func(d *Deps) { d.Drafter = fakeDrafter{err: rateLimited} })

	rec := s.do(t, http.MethodPost, "/v1/ideas/"+uuid.NewString()+"/draft", nil)
	if rec.Code != http.StatusServiceUnavailable || rec.Header().Get("Retry-After") != "30" {
		t.Errorf("rate limited = %d Retry-After %q", rec.Code, rec.Header().Get("Retry-After"))
	}

	s = newTestServer(t, func(d *Deps) { d.Drafter = fakeDrafter{err: &ai.ProviderError{StatusCode: 500, Body: "boom"}} })
	if rec := s.do(t, http.MethodPost, "/v1/ideas/"+uuid.NewString()+"/draft", nil); rec.Code != http.StatusBadGateway {
		t.Errorf("provider error = %d, want 502", rec.Code)
	}

	s = newTestServer(t, nil)
	rec = s.do(t, http.MethodPost, "/v1/ideas/"+uuid.NewString()+"/draft", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("draft = %d %s", rec.Code, rec.Body.String())
	}
	if resp := decode[api.DraftResponse](t, rec); resp.GenerationID != "gen-1" {
		t.Errorf("generation id = %q", resp.GenerationID)
	}
}

func TestPollRoutes(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/v1/sources/abc/poll", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("poll = %d", rec.Code)
	}
	if resp := decode[api.PollResponse](t, rec); resp.SourceID != "abc" || resp.Error == "" {
		t.Errorf("poll response = %+v", resp)
	}

	rec = s.do(t, http.MethodPost, "/v1/sources/poll", nil)
	if resp := decode[process.BatchResult](t, rec); rec.Code != http.StatusOK || resp.Created != 3 {
		t.Errorf("poll all = %d %+v", rec.Code, resp)
	}
}

func TestExportSources(t *testing.T) {
	s := newTestServer(t, nil)
	src := s.seedSource(t)

	rec := s.do(t, http.MethodGet, "/v1/sources", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export = %d", rec.Code)
	}
	records, err := csv.NewReader(rec.Body).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d rows, want header plus one", len(records))
	}
	row := records[1]
	if row[0] != src.URL || row[2] != "FEED" || row[5] != "vat;tax" || row[6] != "true" {
		t.Errorf("row = %v", row)
	}
}
