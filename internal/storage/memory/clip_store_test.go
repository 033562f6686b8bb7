package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mediaharbor/clipcrawler/internal/ingest"
)

func strPtr(s string) *string { return &s }

func TestFindBySlugNotFound(t *testing.T) {
	s := NewClipStore()
	_, err := s.FindBySlug(context.Background(), "missing")
	require.ErrorIs(t, err, ingest.ErrNotFound)
}

func TestUpsertInsertsThenPartiallyUpdates(t *testing.T) {
	s := NewClipStore()
	ctx := context.Background()

	id, err := s.UpsertClip(ctx, ingest.ClipUpsert{
		Slug:       "sunset-run",
		Title:      strPtr("Sunset Run"),
		PreviewURL: strPtr("https://c.test/m/s.webm"),
		Tags:       []string{"beach"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	// Second upsert carries only enrichment; scrape fields must survive.
	id2, err := s.UpsertClip(ctx, ingest.ClipUpsert{
		Slug:             "sunset-run",
		TitleTranslation: strPtr("Закат"),
		Description:      strPtr("desc"),
		TagsTranslation:  []string{"пляж"},
	})
	require.NoError(t, err)
	require.Equal(t, id, id2)

	clip, err := s.FindBySlug(ctx, "sunset-run")
	require.NoError(t, err)
	require.Equal(t, "Sunset Run", clip.Title)
	require.Equal(t, "https://c.test/m/s.webm", clip.PreviewURL)
	require.Equal(t, []string{"beach"}, clip.Tags)
	require.True(t, clip.Enriched())
	require.NotNil(t, clip.UpdatedAt)
	require.Equal(t, 1, s.Len())
}

func TestUpsertRequiresSlug(t *testing.T) {
	s := NewClipStore()
	_, err := s.UpsertClip(context.Background(), ingest.ClipUpsert{})
	require.Error(t, err)
}

func TestFindReturnsCopy(t *testing.T) {
	s := NewClipStore()
	ctx := context.Background()
	_, err := s.UpsertClip(ctx, ingest.ClipUpsert{Slug: "a", Tags: []string{"x"}})
	require.NoError(t, err)

	clip, err := s.FindBySlug(ctx, "a")
	require.NoError(t, err)
	clip.Tags[0] = "mutated"

	again, err := s.FindBySlug(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, []string{"x"}, again.Tags)
}

func TestCrawlLogLifecycle(t *testing.T) {
	s := NewClipStore()
	ctx := context.Background()
	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	logID, err := s.InsertCrawlLog(ctx, started)
	require.NoError(t, err)

	entry, ok := s.Log(logID)
	require.True(t, ok)
	require.Equal(t, ingest.LogStatusRunning, entry.Status)

	finished := started.Add(time.Minute)
	stats := ingest.CrawlStats{New: 2, Failed: 1}
	require.NoError(t, s.UpdateCrawlLog(ctx, logID, stats, ingest.LogStatusPartial, finished, "one item failed"))

	entry, ok = s.Log(logID)
	require.True(t, ok)
	require.Equal(t, ingest.LogStatusPartial, entry.Status)
	require.Equal(t, stats, entry.Stats)
	require.Equal(t, "one item failed", entry.ErrorText)
	require.NotNil(t, entry.FinishedAt)
	require.Equal(t, finished, *entry.FinishedAt)

	last, ok := s.LastLog()
	require.True(t, ok)
	require.Equal(t, logID, last.ID)
}

func TestUpdateUnknownLog(t *testing.T) {
	s := NewClipStore()
	err := s.UpdateCrawlLog(context.Background(), "nope", ingest.CrawlStats{}, ingest.LogStatusFailed, time.Now(), "")
	require.ErrorIs(t, err, ingest.ErrNotFound)
}
