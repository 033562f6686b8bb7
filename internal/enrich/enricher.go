package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mediaharbor/clipcrawler/internal/ingest"
	"github.com/mediaharbor/clipcrawler/internal/keyring"
	"github.com/mediaharbor/clipcrawler/internal/ratelimit"
	"github.com/mediaharbor/clipcrawler/internal/retry"
	"github.com/mediaharbor/clipcrawler/internal/telemetry"
)

// Config controls Enricher behavior.
type Config struct {
	// Language is the target language for title and tag translations.
	Language string
	// Timeout bounds each provider call, independent of session abort.
	Timeout time.Duration
	// MaxRetries caps provider attempts per item; the effective bound is
	// min(MaxRetries, configured key count) so each retry can rotate to
	// a different credential.
	MaxRetries int
}

// Enricher implements ingest.Enricher on top of a Provider, the key
// rotation breaker and the enrichment limiter. Failure never escalates
// past the deterministic fallback.
type Enricher struct {
	provider Provider
	keys     *keyring.Keyring
	limiter  *ratelimit.Limiter
	retrier  *retry.Executor
	cfg      Config
	logger   *zap.Logger
}

// New builds an Enricher.
func New(provider Provider, keys *keyring.Keyring, limiter *ratelimit.Limiter, retrier *retry.Executor, cfg Config, logger *zap.Logger) *Enricher {
	if cfg.Language == "" {
		cfg.Language = "English"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	attempts := cfg.MaxRetries
	if n := keys.Len(); n > 0 && n < attempts {
		attempts = n
	}
	return &Enricher{
		provider: provider,
		keys:     keys,
		limiter:  limiter,
		retrier:  retrier.WithMaxAttempts(attempts),
		cfg:      cfg,
		logger:   logger,
	}
}

// Enrich generates translated title, description and translated tags for
// a clip. Without configured credentials it returns the fallback without
// any network call.
func (e *Enricher) Enrich(ctx context.Context, title string, tags []string) ingest.EnrichmentResult {
	if e.keys.Len() == 0 {
		return e.fallback(title, tags)
	}
	if err := e.limiter.Acquire(ctx); err != nil {
		e.logger.Warn("enrichment limiter acquire failed", zap.Error(err))
		return e.fallback(title, tags)
	}
	defer e.limiter.Release()

	prompt := buildPrompt(e.cfg.Language, title, tags)
	result, err := retry.Do(ctx, e.retrier, "enrichment", func(ctx context.Context) (ingest.EnrichmentResult, error) {
		return e.callProvider(ctx, prompt)
	})
	if err != nil {
		e.logger.Warn("enrichment degraded to fallback",
			zap.String("title", title),
			zap.Error(err),
		)
		return e.fallback(title, tags)
	}
	if result.Description == "" {
		result.Description = ingest.FallbackDescription(title, tags)
	}
	return result
}

func (e *Enricher) callProvider(ctx context.Context, prompt string) (ingest.EnrichmentResult, error) {
	key, err := e.keys.Next()
	if err != nil {
		// All credentials cooling down: fail fast into the fallback
		// instead of blocking the pool.
		return ingest.EnrichmentResult{}, ingest.PermanentWrap(err)
	}
	// The spacing gap binds every provider call, so retried calls wait
	// it out too, not just the first call of the item.
	if err := e.limiter.Pace(ctx); err != nil {
		return ingest.EnrichmentResult{}, err
	}
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	out, err := e.provider.Generate(callCtx, key, prompt)
	if err != nil {
		e.keys.MarkFailed(key, Classify(err))
		return ingest.EnrichmentResult{}, err
	}
	result, err := parseResponse(out)
	if err != nil {
		return ingest.EnrichmentResult{}, err
	}
	return result, nil
}

func (e *Enricher) fallback(title string, tags []string) ingest.EnrichmentResult {
	telemetry.EnrichmentFallbacks.Inc()
	return ingest.EnrichmentResult{
		Description: ingest.FallbackDescription(title, tags),
	}
}

func buildPrompt(language, title string, tags []string) string {
	var b strings.Builder
	b.WriteString("You are cataloguing short video clips.\n")
	fmt.Fprintf(&b, "Clip title: %s\n", title)
	fmt.Fprintf(&b, "Clip tags: %s\n", strings.Join(tags, ", "))
	fmt.Fprintf(&b, "Respond with a single JSON object with these keys:\n")
	fmt.Fprintf(&b, "  \"title_translation\": the title translated into %s\n", language)
	b.WriteString("  \"description\": one or two neutral sentences describing the clip\n")
	fmt.Fprintf(&b, "  \"tags_translation\": the tags translated into %s, as a JSON array\n", language)
	b.WriteString("Return only the JSON object, no markdown.\n")
	return b.String()
}

type providerPayload struct {
	TitleTranslation string   `json:"title_translation"`
	Description      string   `json:"description"`
	TagsTranslation  []string `json:"tags_translation"`
}

// parseResponse extracts the JSON object from the provider output,
// tolerating fenced code blocks and surrounding prose. Missing fields
// are valid; an unparseable payload is not.
func parseResponse(out string) (ingest.EnrichmentResult, error) {
	start := strings.Index(out, "{")
	end := strings.LastIndex(out, "}")
	if start < 0 || end <= start {
		return ingest.EnrichmentResult{}, fmt.Errorf("no JSON object in provider response")
	}
	var payload providerPayload
	if err := json.Unmarshal([]byte(out[start:end+1]), &payload); err != nil {
		return ingest.EnrichmentResult{}, fmt.Errorf("decode provider response: %w", err)
	}
	return ingest.EnrichmentResult{
		TitleTranslation: strings.TrimSpace(payload.TitleTranslation),
		Description:      strings.TrimSpace(payload.Description),
		TagsTranslation:  payload.TagsTranslation,
	}, nil
}
