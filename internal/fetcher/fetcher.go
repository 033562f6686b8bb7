// Package fetcher implements the list/detail scraping operations against
// the target site using gocolly.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/mediaharbor/clipcrawler/internal/ingest"
)

// ErrTimeout marks a request that exceeded the fetch timeout. Timeouts
// are retryable.
var ErrTimeout = errors.New("fetch timed out")

// StatusError reports a non-2xx response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Code)
}

// Config controls site access.
type Config struct {
	// BaseURL is the site root, e.g. https://clips.example.com.
	BaseURL string
	// RedirectURL is the external endpoint download tokens resolve through.
	RedirectURL string
	// UserAgent must stay fixed; the site serves different markup per
	// client class.
	UserAgent string
	Timeout   time.Duration
}

// SiteFetcher implements ingest.SiteFetcher with one-shot colly requests.
type SiteFetcher struct {
	cfg    Config
	base   *url.URL
	parent *colly.Collector
	logger *zap.Logger
}

// New builds a SiteFetcher.
func New(cfg Config, logger *zap.Logger) (*SiteFetcher, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid site base url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false))
	// Retries re-visit the same URL; the visit dedupe store is shared
	// across clones and would reject the second attempt.
	c.AllowURLRevisit = true
	c.WithTransport(newHTTPTransport())
	return &SiteFetcher{
		cfg:    cfg,
		base:   base,
		parent: c,
		logger: logger,
	}, nil
}

// FetchListPage retrieves one list page and extracts detail links.
// Zero items is a valid outcome.
func (f *SiteFetcher) FetchListPage(ctx context.Context, page int) ([]ingest.WorkItem, error) {
	pageURL := fmt.Sprintf("%s/page/%d", strings.TrimRight(f.cfg.BaseURL, "/"), page)
	body, err := f.get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	items, err := parseListPage(f.base, body)
	if err != nil {
		return nil, fmt.Errorf("parse list page %d: %w", page, err)
	}
	f.logger.Debug("list page fetched", zap.Int("page", page), zap.Int("items", len(items)))
	return items, nil
}

// FetchDetailPage retrieves one detail page and parses the raw record.
func (f *SiteFetcher) FetchDetailPage(ctx context.Context, rawURL string) (ingest.RawRecord, error) {
	body, err := f.get(ctx, rawURL)
	if err != nil {
		return ingest.RawRecord{}, err
	}
	record, err := parseDetailPage(f.base, f.cfg.RedirectURL, rawURL, body)
	if err != nil {
		return ingest.RawRecord{}, err
	}
	f.logger.Debug("detail page fetched", zap.String("slug", record.Slug))
	return record, nil
}

func (f *SiteFetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	collector := f.parent.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)

	var (
		body     []byte
		status   int
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(rawURL)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("fetch %s canceled: %w", rawURL, ctx.Err())
	case visitErr := <-done:
		if visitErr == nil && fetchErr == nil {
			return body, nil
		}
		err := fetchErr
		if err == nil {
			err = visitErr
		}
		return nil, classify(rawURL, status, err)
	}
}

// classify maps transport failures onto the engine's error taxonomy:
// timeouts and 5xx/429 stay retryable, other non-2xx statuses are
// permanent for the record being fetched.
func classify(rawURL string, status int, err error) error {
	if isTimeout(err) {
		return fmt.Errorf("fetch %s: %w", rawURL, ErrTimeout)
	}
	if status > 0 && (status < 200 || status > 299) {
		se := &StatusError{URL: rawURL, Code: status}
		if status >= 500 || status == http.StatusTooManyRequests {
			return se
		}
		return ingest.PermanentWrap(se)
	}
	return fmt.Errorf("fetch %s: %w", rawURL, err)
}

func isTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "Client.Timeout")
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
