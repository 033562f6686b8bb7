package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/mediaharbor/clipcrawler/internal/ingest"
)

func newMockStore(t *testing.T) (*ClipStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	store, err := NewClipStoreWithPool(mock)
	require.NoError(t, err)
	return store, mock
}

func clipColumns() []string {
	return []string{
		"id", "slug", "title", "cover_url", "preview_url", "download_url", "tags",
		"title_translation", "description", "tags_translation", "created_at", "updated_at",
	}
}

func TestFindBySlug(t *testing.T) {
	store, mock := newMockStore(t)
	defer mock.Close()

	title := "Sunset Run"
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT id, slug, title").
		WithArgs("sunset-run").
		WillReturnRows(pgxmock.NewRows(clipColumns()).AddRow(
			"11111111-1111-1111-1111-111111111111",
			"sunset-run",
			&title,
			"https://c.test/m/s.jpg",
			"https://c.test/m/s.webm",
			"https://dl.test/get?token=x",
			[]string{"beach"},
			(*string)(nil),
			(*string)(nil),
			[]string(nil),
			created,
			(*time.Time)(nil),
		))

	clip, err := store.FindBySlug(context.Background(), "sunset-run")
	require.NoError(t, err)
	require.Equal(t, "sunset-run", clip.Slug)
	require.Equal(t, "Sunset Run", clip.Title)
	require.Equal(t, []string{"beach"}, clip.Tags)
	require.False(t, clip.Enriched())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindBySlugNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT id, slug, title").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.FindBySlug(context.Background(), "missing")
	require.ErrorIs(t, err, ingest.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertClip(t *testing.T) {
	store, mock := newMockStore(t)
	defer mock.Close()

	title := "Sunset Run"
	desc := "a clip"
	mock.ExpectQuery("INSERT INTO clips").
		WithArgs(
			"sunset-run",
			&title,
			(*string)(nil),
			(*string)(nil),
			(*string)(nil),
			[]string{"beach"},
			(*string)(nil),
			&desc,
			[]string(nil),
		).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("22222222-2222-2222-2222-222222222222"))

	id, err := store.UpsertClip(context.Background(), ingest.ClipUpsert{
		Slug:        "sunset-run",
		Title:       &title,
		Tags:        []string{"beach"},
		Description: &desc,
	})
	require.NoError(t, err)
	require.Equal(t, "22222222-2222-2222-2222-222222222222", id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertClipRequiresSlug(t *testing.T) {
	store, mock := newMockStore(t)
	defer mock.Close()

	_, err := store.UpsertClip(context.Background(), ingest.ClipUpsert{})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertCrawlLog(t *testing.T) {
	store, mock := newMockStore(t)
	defer mock.Close()

	started := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("INSERT INTO crawl_logs").
		WithArgs(started, "running").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("33333333-3333-3333-3333-333333333333"))

	id, err := store.InsertCrawlLog(context.Background(), started)
	require.NoError(t, err)
	require.Equal(t, "33333333-3333-3333-3333-333333333333", id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateCrawlLog(t *testing.T) {
	store, mock := newMockStore(t)
	defer mock.Close()

	finished := time.Date(2025, 6, 1, 12, 5, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE crawl_logs").
		WithArgs("log-id", finished, "partial", 2, 1, 3, 1, "one item failed").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := store.UpdateCrawlLog(context.Background(), "log-id",
		ingest.CrawlStats{New: 2, Updated: 1, Skipped: 3, Failed: 1},
		ingest.LogStatusPartial, finished, "one item failed")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateCrawlLogUnknownID(t *testing.T) {
	store, mock := newMockStore(t)
	defer mock.Close()

	finished := time.Date(2025, 6, 1, 12, 5, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE crawl_logs").
		WithArgs("nope", finished, "failed", 0, 0, 0, 0, "boom").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := store.UpdateCrawlLog(context.Background(), "nope",
		ingest.CrawlStats{}, ingest.LogStatusFailed, finished, "boom")
	require.ErrorIs(t, err, ingest.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
