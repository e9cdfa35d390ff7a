package process

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"contentflow/pipeline/internal/database"
	"contentflow/pipeline/internal/editorial"
	"contentflow/pipeline/internal/feed"
	"contentflow/pipeline/internal/models"
	"contentflow/pipeline/internal/scoring"
	"contentflow/pipeline/internal/store"
)

const taxFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel><title>Tax</title>
<item><title>רשות המסים: חוזר מקצועי חדש</title><link>https://tax.example/c/1</link>
<pubDate>Mon, 10 Mar 2025 09:00:00 GMT</pubDate></item>
<item><title><![CDATA[ רשות   המסים: חוזר מקצועי חדש! ]]></title><link>https://tax.example/c/1-dup</link></item>
<item><title>   </title><link>https://tax.example/empty</link></item>
<item><title>עדכון תקנות מע"מ</title><link>https://tax.example/c/2</link></item>
</channel></rss>`

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.NewDB(database.NewConfig(database.DriverSQLite, ":memory:"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedSource(t *testing.T, db *database.DB, url string, mutate func(*models.Source)) *models.Source {
	t.Helper()
	src := models.NewSource()
	src.ID = uuid.NewString()
	src.Name = url
	src.URL = url
	src.Weight = 1.5
	src.Category = "Tax"
	src.Tags = models.StringList{"tax"}
	if mutate != nil {
		mutate(src)
	}
	if err := db.WithinTx(context.Background(), func(tx store.Tx) error {
		return tx.CreateSource(context.Background(), src)
	}); err != nil {
		t.Fatalf("seed source: %v", err)
	}
	return src
}

func newProcessor(t *testing.T, db *database.DB) *FeedProcessor {
	t.Helper()
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	scorer := scoring.New(nil, scoring.WithClock(func() time.Time { return now }))
	p, err := NewFeedProcessor(db, feed.NewFetcher(feed.WithTimeout(5*time.Second)), scorer, zerolog.Nop(), 2)
	if err != nil {
		t.Fatalf("NewFeedProcessor: %v", err)
	}
	return p
}

func feedServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/tax.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(taxFeed))
	})
	mux.HandleFunc("/broken.xml", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	})
	mux.HandleFunc("/page.html", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<!DOCTYPE html><html><body>nope</body></html>"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func getSource(t *testing.T, db *database.DB, id string) *models.Source {
	t.Helper()
	var src *models.Source
	if err := db.WithinTx(context.Background(), func(tx store.Tx) error {
		var err error
		src, err = tx.GetSource(context.Background(), id)
		return err
	}); err != nil {
		t.Fatalf("GetSource: %v", err)
	}
	return src
}

func TestPollSourceCreatesAndDedups(t *testing.T) {
	db := newTestDB(t)
	srv := feedServer(t)
	src := seedSource(t, db, srv.URL+"/tax.xml", nil)
	p := newProcessor(t, db)

	res, err := p.PollSource(context.Background(), src.ID)
	if err != nil {
		t.Fatalf("PollSource: %v", err)
	}
	if res.Err != nil {
		t.Fatalf("poll error: %v", res.Err)
	}
	if res.Fetched != 4 || res.Created != 2 || res.Skipped != 1 || res.Failed != 1 {
		t.Errorf("result = %+v, want 4 fetched, 2 created, 1 skipped, 1 failed", res)
	}

	var ideas []models.Idea
	err = db.WithinTx(context.Background(), func(tx store.Tx) error {
		var err error
		ideas, err = tx.ListIdeas(context.Background(), store.IdeaFilter{})
		return err
	})
	if err != nil {
		t.Fatalf("ListIdeas: %v", err)
	}
	if len(ideas) != 2 {
		t.Fatalf("ideas = %d", len(ideas))
	}
	first := ideas[0]
	if first.Origin != models.IdeaOriginFeed || first.SourceID == nil || *first.SourceID != src.ID {
		t.Errorf("idea origin = %+v", first)
	}
	if first.Score < 70 || first.Status != models.IdeaStatusNew {
		t.Errorf("idea score %v status %s", first.Score, first.Status)
	}
	if len(first.Tags) != 1 || first.Tags[0] != "tax" {
		t.Errorf("tags = %v", first.Tags)
	}

	stored := getSource(t, db, src.ID)
	if stored.LastPolledAt == nil || stored.LastItemCount != 4 || stored.LastError != nil {
		t.Errorf("source poll record = %+v", stored)
	}

	// Polling again finds only duplicates.
	again, err := p.PollSource(context.Background(), src.ID)
	if err != nil {
		t.Fatalf("PollSource: %v", err)
	}
	if again.Created != 0 || again.Skipped != 3 {
		t.Errorf("second poll = %+v", again)
	}

	created, dups, failed := p.Stats()
	if created != 2 || dups != 4 || failed != 2 {
		t.Errorf("stats = %d/%d/%d", created, dups, failed)
	}
}

func TestPollSourceRecordsFetchFailure(t *testing.T) {
	db := newTestDB(t)
	srv := feedServer(t)
	src := seedSource(t, db, srv.URL+"/broken.xml", nil)
	p := newProcessor(t, db)

	res, err := p.PollSource(context.Background(), src.ID)
	if err != nil {
		t.Fatalf("PollSource: %v", err)
	}
	var se *feed.StatusError
	if !errors.As(res.Err, &se) || se.StatusCode != http.StatusBadGateway {
		t.Fatalf("poll error = %v", res.Err)
	}

	stored := getSource(t, db, src.ID)
	if stored.LastError == nil || stored.LastPolledAt == nil {
		t.Errorf("failure not recorded: %+v", stored)
	}
}

func TestPollSourcePreconditions(t *testing.T) {
	db := newTestDB(t)
	p := newProcessor(t, db)
	ctx := context.Background()

	if _, err := p.PollSource(ctx, "nope"); !editorial.IsValidation(err) {
		t.Errorf("bad id error = %v", err)
	}
	if _, err := p.PollSource(ctx, uuid.NewString()); !store.IsNotFound(err) {
		t.Errorf("missing source error = %v", err)
	}

	inactive := seedSource(t, db, "https://inactive.example/rss", func(s *models.Source) { s.Active = false })
	if _, err := p.PollSource(ctx, inactive.ID); !editorial.IsPrecondition(err) {
		t.Errorf("inactive source error = %v", err)
	}
	manual := seedSource(t, db, "https://manual.example", func(s *models.Source) { s.Kind = models.SourceKindManual })
	if _, err := p.PollSource(ctx, manual.ID); !editorial.IsPrecondition(err) {
		t.Errorf("manual source error = %v", err)
	}
}

func TestPollAllContinuesPastFailingSources(t *testing.T) {
	db := newTestDB(t)
	srv := feedServer(t)
	good := seedSource(t, db, srv.URL+"/tax.xml", nil)
	broken := seedSource(t, db, srv.URL+"/broken.xml", nil)
	html := seedSource(t, db, srv.URL+"/page.html", nil)
	seedSource(t, db, srv.URL+"/off.xml", func(s *models.Source) { s.Active = false })
	p := newProcessor(t, db)

	batch, err := p.PollAll(context.Background())
	if err != nil {
		t.Fatalf("PollAll: %v", err)
	}
	if len(batch.Sources) != 3 {
		t.Fatalf("sources polled = %d, want 3", len(batch.Sources))
	}
	if batch.Created != 2 || len(batch.Errors) != 2 {
		t.Errorf("batch = %+v", batch)
	}

	failed := map[string]bool{}
	for _, e := range batch.Errors {
		failed[e.SourceID] = true
	}
	if !failed[broken.ID] || !failed[html.ID] || failed[good.ID] {
		t.Errorf("errors = %+v", batch.Errors)
	}
}

func TestPollDueSkipsRecentlyPolled(t *testing.T) {
	db := newTestDB(t)
	srv := feedServer(t)
	recent := time.Date(2025, 3, 10, 11, 30, 0, 0, time.UTC)
	seedSource(t, db, srv.URL+"/tax.xml", func(s *models.Source) {
		s.LastPolledAt = &recent
		s.PollIntervalMinutes = 60
	})
	p := newProcessor(t, db)
	p.now = func() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) }

	batch, err := p.PollDue(context.Background())
	if err != nil {
		t.Fatalf("PollDue: %v", err)
	}
	if len(batch.Sources) != 0 {
		t.Errorf("polled %d sources, want 0", len(batch.Sources))
	}

	p.now = func() time.Time { return time.Date(2025, 3, 10, 12, 31, 0, 0, time.UTC) }
	batch, err = p.PollDue(context.Background())
	if err != nil {
		t.Fatalf("PollDue: %v", err)
	}
	if len(batch.Sources) != 1 {
		t.Errorf("polled %d sources, want 1", len(batch.Sources))
	}
}

func TestNewFeedProcessorDefaultsToSequential(t *testing.T) {
	p, err := NewFeedProcessor(newTestDB(t), nil, nil, zerolog.Nop(), 0)
	if err != nil {
		t.Fatalf("NewFeedProcessor: %v", err)
	}
	if p.WorkerCount != 1 {
		t.Errorf("WorkerCount = %d, want 1", p.WorkerCount)
	}
}

func TestPollAllFileDatabaseParallelWorkers(t *testing.T) {
	const (
		sourceCount = 8
		itemCount   = 40
	)
	db, err := database.NewDB(database.NewConfig(database.DriverSQLite, filepath.Join(t.TempDir(), "pipeline.db")))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	mux := http.NewServeMux()
	mux.HandleFunc("GET /feed/{n}", func(w http.ResponseWriter, r *http.Request) {
		n := r.PathValue("n")
		var b strings.Builder
		b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel><title>Feed</title>`)
		for i := range itemCount {
			fmt.Fprintf(&b, "<item><title>Circular %s number %d</title><link>https://tax.example/%s/%d</link></item>", n, i, n, i)
		}
		b.WriteString(`</channel></rss>`)
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(b.String()))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	for i := range sourceCount {
		seedSource(t, db, fmt.Sprintf("%s/feed/%d", srv.URL, i), nil)
	}

	p, err := NewFeedProcessor(db, feed.NewFetcher(feed.WithTimeout(5*time.Second)), nil, zerolog.Nop(), sourceCount)
	if err != nil {
		t.Fatalf("NewFeedProcessor: %v", err)
	}
	res, err := p.PollAll(context.Background())
	if err != nil {
		t.Fatalf("PollAll: %v", err)
	}
	if res.Created != sourceCount*itemCount || res.Skipped != 0 || res.Failed != 0 || len(res.Errors) != 0 {
		t.Errorf("created=%d skipped=%d failed=%d errors=%v, want created=%d",
			res.Created, res.Skipped, res.Failed, res.Errors, sourceCount*itemCount)
	}
}

func TestTruncateRunes(t *testing.T) {
	msg := strings.Repeat("שגיאה ", 300)
	got := truncateRunes(msg, maxErrorLength)
	if !utf8.ValidString(got) {
		t.Fatalf("truncated message is not valid UTF-8")
	}
	if n := utf8.RuneCountInString(got); n != maxErrorLength {
		t.Errorf("rune count = %d, want %d", n, maxErrorLength)
	}
	if got := truncateRunes("short", maxErrorLength); got != "short" {
		t.Errorf("short message changed to %q", got)
	}
}
