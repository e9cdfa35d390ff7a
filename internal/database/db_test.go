package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"contentflow/pipeline/internal/blocks"
	"contentflow/pipeline/internal/database/migrations"
	"contentflow/pipeline/internal/models"
	"contentflow/pipeline/internal/store"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(NewConfig(DriverSQLite, ":memory:"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newIdea(title, fp string) *models.Idea {
	idea := models.NewIdea()
	idea.ID = uuid.NewString()
	idea.Title = title
	idea.Fingerprint = fp
	return idea
}

func TestMigrationsAreIdempotent(t *testing.T) {
	db := newTestDB(t)

	if err := db.CheckSchema(context.Background()); err != nil {
		t.Fatalf("CheckSchema: %v", err)
	}
	files, err := migrations.Embedded()
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}
	if err := migrations.RunMigrations(db.DB, files); err != nil {
		t.Fatalf("second run: %v", err)
	}
}

func TestRollbackAndReapply(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	files, err := migrations.Embedded()
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}

	if err := migrations.RollbackMigrations(db.DB, files, 1); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if err := db.CheckSchema(ctx); store.KindOf(err) != store.KindSchemaMissing {
		t.Fatalf("after rollback err = %v, want schema missing", err)
	}

	if err := migrations.RunMigrations(db.DB, files); err != nil {
		t.Fatalf("reapply: %v", err)
	}
	if err := db.CheckSchema(ctx); err != nil {
		t.Fatalf("after reapply: %v", err)
	}
}

func TestCheckSchemaMissing(t *testing.T) {
	cfg := NewConfig(DriverSQLite, ":memory:")
	cfg.SkipMigrations = true
	db, err := NewDB(cfg)
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	defer db.Close()

	err = db.CheckSchema(context.Background())
	if store.KindOf(err) != store.KindSchemaMissing {
		t.Fatalf("err = %v, want schema missing", err)
	}
}

func TestSourceRoundTripAndRecordPoll(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	src := models.NewSource()
	src.ID = uuid.NewString()
	src.Name = "Tax news"
	src.URL = "https://tax.example/rss"
	src.Category = "Tax"
	src.Tags = models.StringList{"tax", "il"}
	src.Weight = 1.5

	err := db.WithinTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateSource(ctx, src); err != nil {
			return err
		}
		msg := "boom"
		return tx.RecordPoll(ctx, src.ID, time.Now(), 0, &msg)
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}

	var got *models.Source
	_ = db.WithinTx(ctx, func(tx store.Tx) error {
		got, err = tx.GetSource(ctx, src.ID)
		return err
	})
	if err != nil {
		t.Fatalf("GetSource: %v", err)
	}
	if got.Weight != 1.5 || len(got.Tags) != 2 || !got.Active {
		t.Errorf("source = %+v", got)
	}
	if got.LastError == nil || *got.LastError != "boom" || got.LastPolledAt == nil {
		t.Errorf("poll not recorded: %+v", got)
	}
}

func TestDuplicateSourceURLIsConflict(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	mk := func() *models.Source {
		s := models.NewSource()
		s.ID = uuid.NewString()
		s.Name = "dup"
		s.URL = "https://dup.example/rss"
		return s
	}

	if err := db.WithinTx(ctx, func(tx store.Tx) error { return tx.CreateSource(ctx, mk()) }); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := db.WithinTx(ctx, func(tx store.Tx) error { return tx.CreateSource(ctx, mk()) })
	if !store.IsConflict(err) {
		t.Fatalf("err = %v, want conflict", err)
	}
}

func TestFindIdeaByFingerprintOrURL(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	idea := newIdea("First", "fp-1")
	url := "https://a.example/1"
	idea.OriginURL = &url
	idea.ScoreBreakdown = models.ScoreBreakdown{Total: 42, MatchedKeywords: []string{"מס"}}

	err := db.WithinTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateIdea(ctx, idea); err != nil {
			return err
		}

		byFP, err := tx.FindIdeaByFingerprintOrURL(ctx, "fp-1", "")
		if err != nil || byFP == nil || byFP.ID != idea.ID {
			t.Errorf("by fingerprint = %v, %v", byFP, err)
		}
		if byFP != nil && byFP.ScoreBreakdown.Total != 42 {
			t.Errorf("breakdown not persisted: %+v", byFP.ScoreBreakdown)
		}

		byURL, err := tx.FindIdeaByFingerprintOrURL(ctx, "other", url)
		if err != nil || byURL == nil || byURL.ID != idea.ID {
			t.Errorf("by url = %v, %v", byURL, err)
		}

		none, err := tx.FindIdeaByFingerprintOrURL(ctx, "nope", "https://none.example")
		if err != nil || none != nil {
			t.Errorf("expected no match, got %v, %v", none, err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
}

func TestConditionalStatusUpdate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	idea := newIdea("Status", "fp-status")

	err := db.WithinTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateIdea(ctx, idea); err != nil {
			return err
		}
		return tx.UpdateIdeaStatus(ctx, idea.ID, models.IdeaStatusNew, models.IdeaStatusSelected)
	})
	if err != nil {
		t.Fatalf("first update: %v", err)
	}

	err = db.WithinTx(ctx, func(tx store.Tx) error {
		return tx.UpdateIdeaStatus(ctx, idea.ID, models.IdeaStatusNew, models.IdeaStatusRejected)
	})
	if !store.IsConflict(err) {
		t.Fatalf("stale update err = %v, want conflict", err)
	}

	err = db.WithinTx(ctx, func(tx store.Tx) error {
		return tx.UpdateIdeaStatus(ctx, uuid.NewString(), models.IdeaStatusNew, models.IdeaStatusRejected)
	})
	if !store.IsNotFound(err) {
		t.Fatalf("missing idea err = %v, want not found", err)
	}
}

func TestRollbackOnError(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	idea := newIdea("Rolled back", "fp-rb")
	boom := errors.New("boom")

	err := db.WithinTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateIdea(ctx, idea); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}

	err = db.WithinTx(ctx, func(tx store.Tx) error {
		_, err := tx.GetIdea(ctx, idea.ID)
		return err
	})
	if !store.IsNotFound(err) {
		t.Fatalf("err = %v, want not found after rollback", err)
	}
}

func TestListIdeasCursor(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	err := db.WithinTx(ctx, func(tx store.Tx) error {
		for i := 0; i < 5; i++ {
			idea := newIdea("idea", uuid.NewString())
			idea.CreatedAt = base.Add(time.Duration(i) * time.Minute)
			idea.Score = float64(i * 20)
			if err := tx.CreateIdea(ctx, idea); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	var first, second []models.Idea
	err = db.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		first, err = tx.ListIdeas(ctx, store.IdeaFilter{Limit: 2})
		if err != nil {
			return err
		}
		last := first[len(first)-1]
		second, err = tx.ListIdeas(ctx, store.IdeaFilter{Limit: 10, AfterCreatedAt: &last.CreatedAt, AfterID: last.ID})
		return err
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(first) != 2 || len(second) != 3 {
		t.Fatalf("pages = %d, %d; want 2, 3", len(first), len(second))
	}
	if !second[0].CreatedAt.After(first[1].CreatedAt) {
		t.Fatalf("second page does not continue after first")
	}

	var scored []models.Idea
	_ = db.WithinTx(ctx, func(tx store.Tx) error {
		scored, err = tx.ListIdeas(ctx, store.IdeaFilter{MinScore: 60})
		return err
	})
	if len(scored) != 2 {
		t.Fatalf("min score filter returned %d ideas, want 2", len(scored))
	}
}

func TestArticleAssetJobGraph(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	article := models.NewArticle()
	article.ID = uuid.NewString()
	article.Title = "Article"
	article.Body = blocks.Sequence{blocks.Heading{Level: 2, Text: "H"}, blocks.Paragraph{Text: "P"}}

	err := db.WithinTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateArticle(ctx, article); err != nil {
			return err
		}

		for v := 1; v <= 2; v++ {
			asset := models.NewAsset()
			asset.ID = uuid.NewString()
			asset.ArticleID = article.ID
			asset.Platform = models.PlatformLinkedIn
			asset.Version = v
			if err := tx.CreateAsset(ctx, asset); err != nil {
				return err
			}

			now := time.Now().UTC()
			job := &models.PublishJob{
				ID:           uuid.NewString(),
				AssetID:      asset.ID,
				AssetVersion: v,
				Platform:     asset.Platform,
				Method:       models.PublishMethodAutomated,
				Status:       models.JobQueued,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := tx.CreatePublishJob(ctx, job); err != nil {
				return err
			}
		}

		latest, err := tx.MaxAssetVersion(ctx, article.ID, models.PlatformLinkedIn)
		if err != nil || latest != 2 {
			t.Errorf("max version = %d, %v", latest, err)
		}
		none, err := tx.MaxAssetVersion(ctx, article.ID, models.PlatformX)
		if err != nil || none != 0 {
			t.Errorf("max version for empty platform = %d, %v", none, err)
		}

		jobs, err := tx.ListPublishJobsByArticle(ctx, article.ID)
		if err != nil || len(jobs) != 2 {
			t.Errorf("jobs = %d, %v", len(jobs), err)
		}

		stored, err := tx.GetArticle(ctx, article.ID)
		if err != nil {
			return err
		}
		if len(stored.Body) != 2 || stored.DistributionStatus != models.DistributionNotPublished {
			t.Errorf("article = %+v", stored)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
}

func TestDuplicateAssetVersionIsConflict(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	article := models.NewArticle()
	article.ID = uuid.NewString()
	article.Title = "A"

	mk := func() *models.Asset {
		a := models.NewAsset()
		a.ID = uuid.NewString()
		a.ArticleID = article.ID
		a.Platform = models.PlatformWebsite
		return a
	}

	err := db.WithinTx(ctx, func(tx store.Tx) error {
		if err := tx.CreateArticle(ctx, article); err != nil {
			return err
		}
		return tx.CreateAsset(ctx, mk())
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	err = db.WithinTx(ctx, func(tx store.Tx) error { return tx.CreateAsset(ctx, mk()) })
	if !store.IsConflict(err) {
		t.Fatalf("err = %v, want conflict", err)
	}
}
