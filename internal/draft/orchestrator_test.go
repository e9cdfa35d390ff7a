package draft

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"contentflow/pipeline/internal/ai"
	"contentflow/pipeline/internal/database"
	"contentflow/pipeline/internal/editorial"
	"contentflow/pipeline/internal/models"
	"contentflow/pipeline/internal/scoring"
	"contentflow/pipeline/internal/store"
	"contentflow/pipeline/internal/workflow"
)

type fakeCompleter struct {
	responses []string
	err       error
	requests  []ai.Request
}

func (f *fakeCompleter) Complete(ctx context.Context, req ai.Request) (*ai.Response, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	text := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return &ai.Response{
		Text:         text,
		Model:        "claude-sonnet-4-20250514",
		InputTokens:  1000,
		OutputTokens: 500,
		CostUSD:      ai.Cost("claude-sonnet-4-20250514", 1000, 500),
		DurationMs:   1200,
		Attempts:     1,
	}, nil
}

type fixture struct {
	db     *database.DB
	ideas  *editorial.Service
	source *models.Source
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.NewDB(database.NewConfig(database.DriverSQLite, ":memory:"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	src := models.NewSource()
	src.ID = uuid.NewString()
	src.Name = "Tax authority"
	src.URL = "https://tax.example/rss"
	src.Weight = 1.5
	src.Category = "Tax"
	if err := db.WithinTx(context.Background(), func(tx store.Tx) error {
		return tx.CreateSource(context.Background(), src)
	}); err != nil {
		t.Fatalf("seed source: %v", err)
	}

	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	scorer := scoring.New(nil, scoring.WithClock(func() time.Time { return now }))
	return &fixture{db: db, ideas: editorial.NewService(db, scorer, nil, zerolog.Nop()), source: src}
}

func (f *fixture) idea(t *testing.T, title string) *models.Idea {
	t.Helper()
	published := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	idea, err := f.ideas.CreateIdea(context.Background(), editorial.CreateIdeaInput{
		Title: title, SourceID: f.source.ID, OriginPublishedAt: &published,
	})
	if err != nil {
		t.Fatalf("CreateIdea: %v", err)
	}
	return idea
}

func (f *fixture) reload(t *testing.T, id string) (*models.Idea, []models.EventLog) {
	t.Helper()
	var (
		idea   *models.Idea
		events []models.EventLog
	)
	err := f.db.WithinTx(context.Background(), func(tx store.Tx) error {
		var err error
		if idea, err = tx.GetIdea(context.Background(), id); err != nil {
			return err
		}
		events, err = tx.ListEvents(context.Background(), models.EntityIdea, id)
		return err
	})
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	return idea, events
}

func TestGenerateEndToEnd(t *testing.T) {
	f := newFixture(t)
	idea := f.idea(t, "רשות המסים: חוזר מקצועי חדש")
	if idea.Score < 70 || idea.Status != models.IdeaStatusNew {
		t.Fatalf("idea score %v status %s", idea.Score, idea.Status)
	}

	completer := &fakeCompleter{responses: []string{"```json\n" + objectResponse + "\n```"}}
	res, err := New(f.db, completer, zerolog.Nop()).Generate(context.Background(), idea.ID, "editor")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	a := res.Article
	if a.Status != models.StatusDraft || !a.AIGenerated || a.DistributionStatus != models.DistributionNotPublished {
		t.Errorf("article = %s ai=%v dist=%s", a.Status, a.AIGenerated, a.DistributionStatus)
	}
	if res.Fallback || len(res.Warnings) != 0 {
		t.Errorf("fallback=%v warnings=%v", res.Fallback, res.Warnings)
	}
	if a.Title != "חוזר מקצועי חדש" || a.Slug != "new-circular" || a.PlainText == "" {
		t.Errorf("article meta = %q %q", a.Title, a.Slug)
	}
	if len(completer.requests) != 1 || completer.requests[0].Temperature != defaultTemperature {
		t.Errorf("requests = %+v", completer.requests)
	}
	if g := res.Generation; g.Attempts != 1 || g.InputTokens != 1000 || g.CostUSD <= 0 {
		t.Errorf("generation = %+v", g)
	}

	got, events := f.reload(t, idea.ID)
	if got.Status != models.IdeaStatusEnriched {
		t.Errorf("idea status = %s", got.Status)
	}
	last := events[len(events)-1]
	if last.Action != "idea.transitioned" || last.Metadata["to"] != "ENRICHED" {
		t.Errorf("last idea event = %+v", last)
	}

	var stored *models.Article
	err = f.db.WithinTx(context.Background(), func(tx store.Tx) error {
		var err error
		stored, err = tx.GetArticle(context.Background(), a.ID)
		return err
	})
	if err != nil {
		t.Fatalf("GetArticle: %v", err)
	}
	if len(stored.Body) != 3 || stored.IdeaID == nil || *stored.IdeaID != idea.ID {
		t.Errorf("stored article = %+v", stored)
	}

	// A second draft from the same idea is refused.
	_, err = New(f.db, completer, zerolog.Nop()).Generate(context.Background(), idea.ID, "editor")
	var te *workflow.TransitionError
	if !errors.As(err, &te) || te.From != string(models.IdeaStatusEnriched) {
		t.Errorf("second Generate error = %v", err)
	}
}

func TestGenerateRetriesWithStrictPrompt(t *testing.T) {
	f := newFixture(t)
	idea := f.idea(t, "מע\"מ: עדכון תעריפים")

	completer := &fakeCompleter{responses: []string{"Sure! Here's a great article about VAT.", objectResponse}}
	res, err := New(f.db, completer, zerolog.Nop()).Generate(context.Background(), idea.ID, "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Fallback {
		t.Error("fallback used although retry succeeded")
	}
	if len(completer.requests) != 2 {
		t.Fatalf("requests = %d, want 2", len(completer.requests))
	}
	retry := completer.requests[1]
	if retry.Temperature != retryTemperature || retry.UserPrompt != completer.requests[0].UserPrompt+strictSuffix {
		t.Errorf("retry request = %+v", retry)
	}
	if res.Generation.Attempts != 2 || res.Generation.InputTokens != 2000 {
		t.Errorf("generation = %+v", res.Generation)
	}
}

func TestGenerateFallsBackOnUnparseableAnswer(t *testing.T) {
	f := newFixture(t)
	idea := f.idea(t, "שינויים בדיווח שכר")

	completer := &fakeCompleter{responses: []string{"not json at all"}}
	res, err := New(f.db, completer, zerolog.Nop()).Generate(context.Background(), idea.ID, "editor")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !res.Fallback || !res.Generation.Fallback {
		t.Error("fallback not recorded")
	}
	if len(res.Article.Body) != 3 || len(res.Warnings) == 0 {
		t.Errorf("body = %d blocks, warnings = %v", len(res.Article.Body), res.Warnings)
	}

	got, _ := f.reload(t, idea.ID)
	if got.Status != models.IdeaStatusEnriched {
		t.Errorf("idea status = %s", got.Status)
	}
}

func TestGenerateProviderFailureLeavesIdeaUntouched(t *testing.T) {
	f := newFixture(t)
	idea := f.idea(t, "Accounting standards update")

	completer := &fakeCompleter{err: &ai.RateLimitError{Attempts: 4}}
	_, err := New(f.db, completer, zerolog.Nop()).Generate(context.Background(), idea.ID, "editor")
	var rl *ai.RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("error = %v, want RateLimitError", err)
	}

	got, events := f.reload(t, idea.ID)
	if got.Status != models.IdeaStatusNew || len(events) != 1 {
		t.Errorf("idea status %s with %d events", got.Status, len(events))
	}
}

func TestGeneratePreconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	orch := New(f.db, &fakeCompleter{responses: []string{objectResponse}}, zerolog.Nop())

	if _, err := orch.Generate(ctx, "not-a-uuid", "editor"); !editorial.IsValidation(err) {
		t.Errorf("bad id error = %v", err)
	}
	if _, err := orch.Generate(ctx, uuid.NewString(), "editor"); !store.IsNotFound(err) {
		t.Errorf("missing idea error = %v", err)
	}

	idea := f.idea(t, "Business licensing reform")
	if _, err := f.ideas.TransitionIdea(ctx, idea.ID, models.IdeaStatusRejected, "editor"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	_, err := orch.Generate(ctx, idea.ID, "editor")
	var te *workflow.TransitionError
	if !errors.As(err, &te) {
		t.Errorf("rejected idea error = %v", err)
	}
}

func TestPreviewTruncatesRunes(t *testing.T) {
	t.Parallel()

	long := make([]rune, 600)
	for i := range long {
		long[i] = 'ש'
	}
	if got := []rune(preview(string(long))); len(got) != previewRunes {
		t.Errorf("preview length = %d", len(got))
	}
	if preview("short") != "short" {
		t.Error("short text changed")
	}
}
