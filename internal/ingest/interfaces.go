package ingest

import (
	"context"
	"time"
)

// ClipStore persists clips and the per-session crawl log.
type ClipStore interface {
	// FindBySlug returns ErrNotFound when no clip exists; absence is a
	// valid outcome, not a failure.
	FindBySlug(ctx context.Context, slug string) (Clip, error)
	// UpsertClip inserts or partially updates by slug and returns the row id.
	UpsertClip(ctx context.Context, up ClipUpsert) (string, error)
	InsertCrawlLog(ctx context.Context, startedAt time.Time) (string, error)
	UpdateCrawlLog(ctx context.Context, logID string, stats CrawlStats, status LogStatus, finishedAt time.Time, errText string) error
}

// SiteFetcher performs the two scraping operations against the target site.
type SiteFetcher interface {
	FetchListPage(ctx context.Context, page int) ([]WorkItem, error)
	FetchDetailPage(ctx context.Context, url string) (RawRecord, error)
}

// Enricher produces generated text for a clip. Implementations degrade
// to FallbackDescription instead of returning an error.
type Enricher interface {
	Enrich(ctx context.Context, title string, tags []string) EnrichmentResult
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces session IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
