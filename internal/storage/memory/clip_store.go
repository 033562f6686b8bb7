// Package memory provides store implementations for local development and
// tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mediaharbor/clipcrawler/internal/ingest"
)

// ClipStore is a thread-safe in-memory ingest.ClipStore.
type ClipStore struct {
	mu       sync.Mutex
	clips    map[string]ingest.Clip
	logs     map[string]ingest.CrawlLogEntry
	logOrder []string
	nextID   int
}

// NewClipStore constructs an empty store.
func NewClipStore() *ClipStore {
	return &ClipStore{
		clips: make(map[string]ingest.Clip),
		logs:  make(map[string]ingest.CrawlLogEntry),
	}
}

// FindBySlug returns the stored clip or ingest.ErrNotFound.
func (s *ClipStore) FindBySlug(_ context.Context, slug string) (ingest.Clip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clip, ok := s.clips[slug]
	if !ok {
		return ingest.Clip{}, ingest.ErrNotFound
	}
	return cloneClip(clip), nil
}

// UpsertClip mirrors the Postgres partial-update semantics: nil fields
// keep the stored value.
func (s *ClipStore) UpsertClip(_ context.Context, up ingest.ClipUpsert) (string, error) {
	if up.Slug == "" {
		return "", fmt.Errorf("slug is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	clip, ok := s.clips[up.Slug]
	if !ok {
		s.nextID++
		clip = ingest.Clip{
			ID:        fmt.Sprintf("clip-%d", s.nextID),
			Slug:      up.Slug,
			CreatedAt: now,
		}
	}
	if up.Title != nil {
		clip.Title = *up.Title
	}
	if up.CoverURL != nil {
		clip.CoverURL = *up.CoverURL
	}
	if up.PreviewURL != nil {
		clip.PreviewURL = *up.PreviewURL
	}
	if up.DownloadURL != nil {
		clip.DownloadURL = *up.DownloadURL
	}
	if up.Tags != nil {
		clip.Tags = append([]string(nil), up.Tags...)
	}
	if up.TitleTranslation != nil {
		v := *up.TitleTranslation
		clip.TitleTranslation = &v
	}
	if up.Description != nil {
		v := *up.Description
		clip.Description = &v
	}
	if up.TagsTranslation != nil {
		clip.TagsTranslation = append([]string(nil), up.TagsTranslation...)
	}
	clip.UpdatedAt = &now
	s.clips[up.Slug] = clip
	return clip.ID, nil
}

// InsertCrawlLog creates the audit row for a session.
func (s *ClipStore) InsertCrawlLog(_ context.Context, startedAt time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := fmt.Sprintf("log-%d", s.nextID)
	s.logs[id] = ingest.CrawlLogEntry{
		ID:        id,
		StartedAt: startedAt,
		Status:    ingest.LogStatusRunning,
	}
	s.logOrder = append(s.logOrder, id)
	return id, nil
}

// UpdateCrawlLog records the terminal counters and status.
func (s *ClipStore) UpdateCrawlLog(_ context.Context, logID string, stats ingest.CrawlStats, status ingest.LogStatus, finishedAt time.Time, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.logs[logID]
	if !ok {
		return ingest.ErrNotFound
	}
	entry.Stats = stats
	entry.Status = status
	entry.FinishedAt = &finishedAt
	entry.ErrorText = errText
	s.logs[logID] = entry
	return nil
}

// Log returns the audit row for a session id (test helper).
func (s *ClipStore) Log(logID string) (ingest.CrawlLogEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.logs[logID]
	return entry, ok
}

// LastLog returns the most recently inserted audit row (test helper).
func (s *ClipStore) LastLog() (ingest.CrawlLogEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.logOrder) == 0 {
		return ingest.CrawlLogEntry{}, false
	}
	return s.logs[s.logOrder[len(s.logOrder)-1]], true
}

// Len returns the number of stored clips.
func (s *ClipStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clips)
}

func cloneClip(c ingest.Clip) ingest.Clip {
	cp := c
	cp.Tags = append([]string(nil), c.Tags...)
	if c.TagsTranslation != nil {
		cp.TagsTranslation = append([]string(nil), c.TagsTranslation...)
	}
	if c.TitleTranslation != nil {
		v := *c.TitleTranslation
		cp.TitleTranslation = &v
	}
	if c.Description != nil {
		v := *c.Description
		cp.Description = &v
	}
	if c.UpdatedAt != nil {
		t := *c.UpdatedAt
		cp.UpdatedAt = &t
	}
	return cp
}
