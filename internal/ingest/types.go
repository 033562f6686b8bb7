// Package ingest defines core types shared across subsystems.
package ingest

import (
	"strings"
	"time"
)

// SessionState represents the lifecycle state of a crawl session.
type SessionState string

// Session states traversed by the controller.
const (
	SessionIdle       SessionState = "idle"
	SessionCollecting SessionState = "collecting"
	SessionProcessing SessionState = "processing"
	SessionCompleted  SessionState = "completed"
	SessionAborted    SessionState = "aborted"
	SessionFailed     SessionState = "failed"
)

// LogStatus is the terminal status recorded in the crawl log row.
type LogStatus string

// Log status values persisted per session.
const (
	LogStatusRunning LogStatus = "running"
	LogStatusSuccess LogStatus = "success"
	LogStatusPartial LogStatus = "partial"
	LogStatusFailed  LogStatus = "failed"
)

// CrawlStats tracks per-session item counters.
type CrawlStats struct {
	New     int `json:"new"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Total returns the number of resolved items.
func (s CrawlStats) Total() int {
	return s.New + s.Updated + s.Skipped + s.Failed
}

// WorkItem is one discovered detail-page URL awaiting extraction.
type WorkItem struct {
	URL  string
	Slug string
}

// RawRecord is the parsed output of a detail page.
type RawRecord struct {
	Slug        string
	Title       string
	CoverURL    string
	PreviewURL  string
	DownloadURL string
	Tags        []string
}

// EnrichmentResult holds generated text for a clip. Every field is
// optional; an empty value means the provider did not produce it.
type EnrichmentResult struct {
	TitleTranslation string
	Description      string
	TagsTranslation  []string
}

// Clip is the persisted entity keyed by slug. Enrichment fields are
// pointers so that "absent" and "empty" stay distinguishable.
type Clip struct {
	ID               string     `json:"id"`
	Slug             string     `json:"slug"`
	Title            string     `json:"title"`
	CoverURL         string     `json:"cover_url"`
	PreviewURL       string     `json:"preview_url"`
	DownloadURL      string     `json:"download_url"`
	Tags             []string   `json:"tags"`
	TitleTranslation *string    `json:"title_translation,omitempty"`
	Description      *string    `json:"description,omitempty"`
	TagsTranslation  []string   `json:"tags_translation,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        *time.Time `json:"updated_at,omitempty"`
}

// Enriched reports whether every enrichment field is populated. A clip
// with any field missing is re-enriched on the next session.
func (c Clip) Enriched() bool {
	return c.TitleTranslation != nil && c.Description != nil && c.TagsTranslation != nil
}

// ClipUpsert carries the fields written by an upsert. Nil pointers and
// nil slices leave the stored value untouched.
type ClipUpsert struct {
	Slug             string
	Title            *string
	CoverURL         *string
	PreviewURL       *string
	DownloadURL      *string
	Tags             []string
	TitleTranslation *string
	Description      *string
	TagsTranslation  []string
}

// CrawlLogEntry is the per-session audit row. The engine writes it at
// session start and once more at the terminal transition.
type CrawlLogEntry struct {
	ID         string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     LogStatus
	Stats      CrawlStats
	ErrorText  string
}

// FallbackDescription builds the deterministic description used when
// enrichment is unavailable or fails.
func FallbackDescription(title string, tags []string) string {
	if len(tags) == 0 {
		return title
	}
	return title + ", " + strings.Join(tags, ", ")
}
