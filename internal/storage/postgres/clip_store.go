// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mediaharbor/clipcrawler/internal/ingest"
)

// ClipStoreConfig controls the Postgres connection pool.
type ClipStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// ClipStore implements ingest.ClipStore on Postgres.
//
// Expected schema:
//
//	CREATE TABLE clips (
//		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
//		slug TEXT NOT NULL UNIQUE,
//		title TEXT,
//		cover_url TEXT,
//		preview_url TEXT,
//		download_url TEXT,
//		tags TEXT[],
//		title_translation TEXT,
//		description TEXT,
//		tags_translation TEXT[],
//		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
//		updated_at TIMESTAMPTZ
//	);
//
//	CREATE TABLE crawl_logs (
//		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
//		started_at TIMESTAMPTZ NOT NULL,
//		finished_at TIMESTAMPTZ,
//		status TEXT NOT NULL,
//		new_count INT NOT NULL DEFAULT 0,
//		updated_count INT NOT NULL DEFAULT 0,
//		skipped_count INT NOT NULL DEFAULT 0,
//		failed_count INT NOT NULL DEFAULT 0,
//		error_message TEXT
//	);
type ClipStore struct {
	pool querier
}

// NewClipStore creates a Postgres-backed ClipStore using the provided config.
func NewClipStore(ctx context.Context, cfg ClipStoreConfig) (*ClipStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &ClipStore{pool: pool}, nil
}

// NewClipStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewClipStoreWithPool(pool querier) (*ClipStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &ClipStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *ClipStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// FindBySlug returns the clip for slug, or ingest.ErrNotFound.
func (s *ClipStore) FindBySlug(ctx context.Context, slug string) (ingest.Clip, error) {
	query := `
SELECT id, slug, title, cover_url, preview_url, download_url, tags,
	title_translation, description, tags_translation, created_at, updated_at
FROM clips
WHERE slug = $1`

	var (
		clip  ingest.Clip
		title *string
	)
	err := s.pool.QueryRow(ctx, query, slug).Scan(
		&clip.ID,
		&clip.Slug,
		&title,
		&clip.CoverURL,
		&clip.PreviewURL,
		&clip.DownloadURL,
		&clip.Tags,
		&clip.TitleTranslation,
		&clip.Description,
		&clip.TagsTranslation,
		&clip.CreatedAt,
		&clip.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ingest.Clip{}, ingest.ErrNotFound
		}
		return ingest.Clip{}, fmt.Errorf("select clip: %w", err)
	}
	if title != nil {
		clip.Title = *title
	}
	return clip, nil
}

// UpsertClip inserts or partially updates a clip by slug. Nil fields are
// written as NULL and COALESCE keeps the stored value, so absent fields
// never clobber existing data.
func (s *ClipStore) UpsertClip(ctx context.Context, up ingest.ClipUpsert) (string, error) {
	if up.Slug == "" {
		return "", fmt.Errorf("slug is required")
	}
	query := `
INSERT INTO clips (
	slug, title, cover_url, preview_url, download_url, tags,
	title_translation, description, tags_translation, created_at, updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9, now(), now()
)
ON CONFLICT (slug) DO UPDATE SET
	title = COALESCE(EXCLUDED.title, clips.title),
	cover_url = COALESCE(EXCLUDED.cover_url, clips.cover_url),
	preview_url = COALESCE(EXCLUDED.preview_url, clips.preview_url),
	download_url = COALESCE(EXCLUDED.download_url, clips.download_url),
	tags = COALESCE(EXCLUDED.tags, clips.tags),
	title_translation = COALESCE(EXCLUDED.title_translation, clips.title_translation),
	description = COALESCE(EXCLUDED.description, clips.description),
	tags_translation = COALESCE(EXCLUDED.tags_translation, clips.tags_translation),
	updated_at = now()
RETURNING id`

	var id string
	err := s.pool.QueryRow(ctx, query,
		up.Slug,
		up.Title,
		up.CoverURL,
		up.PreviewURL,
		up.DownloadURL,
		up.Tags,
		up.TitleTranslation,
		up.Description,
		up.TagsTranslation,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert clip: %w", err)
	}
	return id, nil
}

// InsertCrawlLog creates the per-session audit row with zero counters.
func (s *ClipStore) InsertCrawlLog(ctx context.Context, startedAt time.Time) (string, error) {
	query := `
INSERT INTO crawl_logs (started_at, status, new_count, updated_count, skipped_count, failed_count)
VALUES ($1, $2, 0, 0, 0, 0)
RETURNING id`

	var id string
	if err := s.pool.QueryRow(ctx, query, startedAt, string(ingest.LogStatusRunning)).Scan(&id); err != nil {
		return "", fmt.Errorf("insert crawl log: %w", err)
	}
	return id, nil
}

// UpdateCrawlLog records the terminal counters and status.
func (s *ClipStore) UpdateCrawlLog(ctx context.Context, logID string, stats ingest.CrawlStats, status ingest.LogStatus, finishedAt time.Time, errText string) error {
	query := `
UPDATE crawl_logs
SET finished_at = $2,
	status = $3,
	new_count = $4,
	updated_count = $5,
	skipped_count = $6,
	failed_count = $7,
	error_message = NULLIF($8, '')
WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		logID,
		finishedAt,
		string(status),
		stats.New,
		stats.Updated,
		stats.Skipped,
		stats.Failed,
		errText,
	)
	if err != nil {
		return fmt.Errorf("update crawl log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ingest.ErrNotFound
	}
	return nil
}
