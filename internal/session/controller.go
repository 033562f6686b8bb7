// Package session orchestrates a crawl run: discovery, dispatch,
// persistence, statistics, cancellation and logging.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mediaharbor/clipcrawler/internal/ingest"
	"github.com/mediaharbor/clipcrawler/internal/ratelimit"
	"github.com/mediaharbor/clipcrawler/internal/retry"
	"github.com/mediaharbor/clipcrawler/internal/telemetry"
)

// ErrSessionRunning is returned by Start while a session is active.
var ErrSessionRunning = errors.New("session already running")

// Config controls discovery and dispatch behavior.
type Config struct {
	// PageDelay is applied between list-page fetches regardless of outcome.
	PageDelay time.Duration
	// EmptyPageStreak is the number of consecutive empty pages that ends
	// discovery.
	EmptyPageStreak int
}

// Status is the externally observable session state.
type Status struct {
	Active    bool                `json:"active"`
	SessionID string              `json:"session_id,omitempty"`
	State     ingest.SessionState `json:"state"`
	Stats     ingest.CrawlStats   `json:"stats"`
	StartedAt *time.Time          `json:"started_at,omitempty"`
}

// Controller runs at most one crawl session at a time.
type Controller struct {
	fetcher    ingest.SiteFetcher
	enricher   ingest.Enricher
	store      ingest.ClipStore
	clock      ingest.Clock
	idGen      ingest.IDGenerator
	retrier    *retry.Executor
	fetchLimit *ratelimit.Limiter
	cfg        Config
	logger     *zap.Logger

	// active is the sole mutual-exclusion gate for Start.
	active atomic.Bool
	mu     sync.Mutex
	cur    *session
}

// New constructs a Controller.
func New(
	fetcher ingest.SiteFetcher,
	enricher ingest.Enricher,
	store ingest.ClipStore,
	clock ingest.Clock,
	idGen ingest.IDGenerator,
	retrier *retry.Executor,
	fetchLimit *ratelimit.Limiter,
	cfg Config,
	logger *zap.Logger,
) *Controller {
	if cfg.PageDelay <= 0 {
		cfg.PageDelay = 500 * time.Millisecond
	}
	if cfg.EmptyPageStreak <= 0 {
		cfg.EmptyPageStreak = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		fetcher:    fetcher,
		enricher:   enricher,
		store:      store,
		clock:      clock,
		idGen:      idGen,
		retrier:    retrier,
		fetchLimit: fetchLimit,
		cfg:        cfg,
		logger:     logger,
	}
}

// Start begins a new session and returns its id. The crawl itself runs in
// the background; Start only blocks for the crawl-log insert, whose
// failure is session-fatal and propagated to the caller.
func (c *Controller) Start(ctx context.Context) (string, error) {
	if !c.active.CompareAndSwap(false, true) {
		return "", ErrSessionRunning
	}
	id, err := c.idGen.NewID()
	if err != nil {
		c.active.Store(false)
		return "", fmt.Errorf("generate session id: %w", err)
	}
	now := c.clock.Now()
	logID, err := c.store.InsertCrawlLog(ctx, now)
	if err != nil {
		c.active.Store(false)
		return "", fmt.Errorf("insert crawl log: %w", err)
	}
	s := &session{
		id:        id,
		logID:     logID,
		startedAt: now,
		abort:     make(chan struct{}),
		state:     ingest.SessionCollecting,
	}
	c.mu.Lock()
	c.cur = s
	c.mu.Unlock()
	c.logger.Info("session started", zap.String("session_id", id))

	go c.run(context.WithoutCancel(ctx), s)
	return id, nil
}

// Abort raises the cooperative abort signal. It returns false when no
// session is active and never blocks for completion.
func (c *Controller) Abort() bool {
	c.mu.Lock()
	s := c.cur
	c.mu.Unlock()
	if s == nil {
		return false
	}
	s.abortOnce.Do(func() { close(s.abort) })
	c.logger.Info("session abort requested", zap.String("session_id", s.id))
	return true
}

// Status reports whether a session is active along with live counters.
func (c *Controller) Status() Status {
	c.mu.Lock()
	s := c.cur
	c.mu.Unlock()
	if s == nil {
		return Status{State: ingest.SessionIdle}
	}
	state, stats := s.snapshot()
	started := s.startedAt
	return Status{
		Active:    true,
		SessionID: s.id,
		State:     state,
		Stats:     stats,
		StartedAt: &started,
	}
}

func (c *Controller) run(ctx context.Context, s *session) {
	defer func() {
		c.mu.Lock()
		c.cur = nil
		c.mu.Unlock()
		c.active.Store(false)
	}()

	func() {
		defer func() {
			if r := recover(); r != nil {
				s.setFatal(fmt.Errorf("session panic: %v", r))
				c.logger.Error("session panicked", zap.String("session_id", s.id), zap.Any("panic", r))
			}
		}()
		items := c.collect(ctx, s)
		if s.aborted() || ctx.Err() != nil {
			return
		}
		s.setState(ingest.SessionProcessing)
		c.process(ctx, s, items)
	}()

	c.finish(ctx, s)
}

// collect runs the discovery loop: pages in increasing order until the
// configured streak of consecutive empty pages. A page that fails after
// retries counts toward the streak so an unreachable page cannot stall
// discovery forever.
func (c *Controller) collect(ctx context.Context, s *session) []ingest.WorkItem {
	var items []ingest.WorkItem
	seen := make(map[string]struct{})
	page, empty := 1, 0
	for empty < c.cfg.EmptyPageStreak {
		if s.aborted() || ctx.Err() != nil {
			break
		}
		pageItems, err := retry.Do(ctx, c.retrier, fmt.Sprintf("list page %d", page),
			func(ctx context.Context) ([]ingest.WorkItem, error) {
				return c.fetcher.FetchListPage(ctx, page)
			})
		switch {
		case err != nil:
			telemetry.ListPagesFetched.WithLabelValues("error").Inc()
			c.logger.Warn("list page failed", zap.Int("page", page), zap.Error(err))
			empty++
		case len(pageItems) == 0:
			telemetry.ListPagesFetched.WithLabelValues("empty").Inc()
			empty++
		default:
			telemetry.ListPagesFetched.WithLabelValues("items").Inc()
			empty = 0
			for _, item := range pageItems {
				if _, dup := seen[item.Slug]; dup {
					continue
				}
				seen[item.Slug] = struct{}{}
				items = append(items, item)
			}
		}
		page++
		c.pause(ctx, s, c.cfg.PageDelay)
	}
	c.logger.Info("discovery finished",
		zap.String("session_id", s.id),
		zap.Int("pages", page-1),
		zap.Int("items", len(items)),
	)
	return items
}

// process dispatches items into the fetch-bounded pool. Counter mutation
// happens only here, on each item's resolution, so the workers never race
// on stats.
func (c *Controller) process(ctx context.Context, s *session, items []ingest.WorkItem) {
	results := make(chan outcome)
	go func() {
		defer close(results)
		var wg sync.WaitGroup
		for _, item := range items {
			if s.aborted() || ctx.Err() != nil {
				break
			}
			if err := c.fetchLimit.Acquire(ctx); err != nil {
				break
			}
			// An abort raised while waiting for a slot still stops the
			// dispatch of this item.
			if s.aborted() || ctx.Err() != nil {
				c.fetchLimit.Release()
				break
			}
			s.addDispatched()
			wg.Add(1)
			go func(item ingest.WorkItem) {
				defer wg.Done()
				defer c.fetchLimit.Release()
				results <- c.processItem(ctx, item)
			}(item)
		}
		wg.Wait()
	}()

	for out := range results {
		s.record(out)
		telemetry.ItemsProcessed.WithLabelValues(string(out)).Inc()
	}
}

func (c *Controller) processItem(ctx context.Context, item ingest.WorkItem) outcome {
	existing, err := c.store.FindBySlug(ctx, item.Slug)
	found := err == nil
	if err != nil && !errors.Is(err, ingest.ErrNotFound) {
		c.logger.Error("clip lookup failed", zap.String("slug", item.Slug), zap.Error(err))
		return outcomeFailed
	}
	if found && existing.Enriched() {
		return outcomeSkipped
	}

	raw, err := retry.Do(ctx, c.retrier, "detail "+item.Slug,
		func(ctx context.Context) (ingest.RawRecord, error) {
			return c.fetcher.FetchDetailPage(ctx, item.URL)
		})
	if err != nil {
		c.logger.Warn("item abandoned", zap.String("slug", item.Slug), zap.Error(err))
		return outcomeFailed
	}

	up := ingest.ClipUpsert{
		Slug:        raw.Slug,
		Title:       optional(raw.Title),
		CoverURL:    optional(raw.CoverURL),
		PreviewURL:  optional(raw.PreviewURL),
		DownloadURL: optional(raw.DownloadURL),
		Tags:        raw.Tags,
	}
	if !found || !existing.Enriched() {
		enriched := c.enricher.Enrich(ctx, raw.Title, raw.Tags)
		up.TitleTranslation = optional(enriched.TitleTranslation)
		up.Description = optional(enriched.Description)
		up.TagsTranslation = enriched.TagsTranslation
	}

	if _, err := c.store.UpsertClip(ctx, up); err != nil {
		c.logger.Error("clip upsert failed", zap.String("slug", item.Slug), zap.Error(err))
		return outcomeFailed
	}
	if found {
		return outcomeUpdated
	}
	return outcomeNew
}

func (c *Controller) finish(ctx context.Context, s *session) {
	state, stats := s.snapshot()
	fatal := s.fatalErr()

	var status ingest.LogStatus
	switch {
	case fatal != nil:
		state = ingest.SessionFailed
		status = ingest.LogStatusFailed
	case s.aborted() || ctx.Err() != nil:
		state = ingest.SessionAborted
		status = ingest.LogStatusPartial
	case stats.Failed > 0:
		state = ingest.SessionCompleted
		status = ingest.LogStatusPartial
	default:
		state = ingest.SessionCompleted
		status = ingest.LogStatusSuccess
	}
	s.setState(state)

	errText := ""
	if fatal != nil {
		errText = fatal.Error()
	}
	if err := c.store.UpdateCrawlLog(ctx, s.logID, stats, status, c.clock.Now(), errText); err != nil {
		c.logger.Error("crawl log update failed", zap.String("session_id", s.id), zap.Error(err))
	}
	telemetry.SessionsTotal.WithLabelValues(string(status)).Inc()
	c.logger.Info("session finished",
		zap.String("session_id", s.id),
		zap.String("state", string(state)),
		zap.String("status", string(status)),
		zap.Int("new", stats.New),
		zap.Int("updated", stats.Updated),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
		zap.Int("dispatched", s.dispatchedCount()),
	)
}

// pause waits out the inter-page delay, returning early on abort or
// context end.
func (c *Controller) pause(ctx context.Context, s *session, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-s.abort:
	case <-timer.C:
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
