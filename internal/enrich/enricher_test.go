package enrich

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mediaharbor/clipcrawler/internal/ingest"
	"github.com/mediaharbor/clipcrawler/internal/keyring"
	"github.com/mediaharbor/clipcrawler/internal/ratelimit"
	"github.com/mediaharbor/clipcrawler/internal/retry"
)

// fakeProvider scripts per-key responses and records calls.
type fakeProvider struct {
	mu        sync.Mutex
	byKey     map[string]func() (string, error)
	keysUsed  []string
	callTimes []time.Time
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{byKey: make(map[string]func() (string, error))}
}

func (p *fakeProvider) respond(key, out string) {
	p.byKey[key] = func() (string, error) { return out, nil }
}

func (p *fakeProvider) fail(key string, err error) {
	p.byKey[key] = func() (string, error) { return "", err }
}

func (p *fakeProvider) Generate(_ context.Context, apiKey, _ string) (string, error) {
	p.mu.Lock()
	p.keysUsed = append(p.keysUsed, apiKey)
	p.callTimes = append(p.callTimes, time.Now())
	fn := p.byKey[apiKey]
	p.mu.Unlock()
	if fn == nil {
		return "", errors.New("unexpected key")
	}
	return fn()
}

func (p *fakeProvider) calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keysUsed...)
}

func (p *fakeProvider) timestamps() []time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Time(nil), p.callTimes...)
}

type fixedClock struct{}

func (fixedClock) Now() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

func newTestEnricher(provider Provider, apiKeys []string) *Enricher {
	keys := keyring.New(apiKeys, time.Minute, fixedClock{}, nil)
	limiter := ratelimit.New(2, 0)
	retrier := retry.New(retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}, nil)
	return New(provider, keys, limiter, retrier, Config{Language: "English", Timeout: time.Second, MaxRetries: 3}, nil)
}

func TestEnrichParsesProviderJSON(t *testing.T) {
	provider := newFakeProvider()
	provider.respond("k1", "```json\n{\"title_translation\": \"Sunset Run\", \"description\": \"A run at dusk.\", \"tags_translation\": [\"beach\", \"evening\"]}\n```")

	e := newTestEnricher(provider, []string{"k1"})
	got := e.Enrich(context.Background(), "Закат", []string{"пляж"})

	require.Equal(t, "Sunset Run", got.TitleTranslation)
	require.Equal(t, "A run at dusk.", got.Description)
	require.Equal(t, []string{"beach", "evening"}, got.TagsTranslation)
}

func TestEnrichBackfillsEmptyDescription(t *testing.T) {
	provider := newFakeProvider()
	provider.respond("k1", `{"title_translation": "Sunset", "tags_translation": ["beach"]}`)

	e := newTestEnricher(provider, []string{"k1"})
	got := e.Enrich(context.Background(), "Sunset", []string{"beach"})

	require.Equal(t, "Sunset", got.TitleTranslation)
	require.Equal(t, ingest.FallbackDescription("Sunset", []string{"beach"}), got.Description)
}

func TestEnrichRotatesKeyOnQuotaError(t *testing.T) {
	provider := newFakeProvider()
	provider.fail("k1", &ProviderError{Class: ingest.ClassQuotaExhausted, Err: errors.New("429")})
	provider.respond("k2", `{"description": "ok"}`)

	e := newTestEnricher(provider, []string{"k1", "k2"})
	got := e.Enrich(context.Background(), "t", nil)

	require.Equal(t, "ok", got.Description)
	require.Equal(t, []string{"k1", "k2"}, provider.calls())
}

func TestEnrichFallsBackWhenAllKeysTripped(t *testing.T) {
	provider := newFakeProvider()
	provider.fail("k1", &ProviderError{Class: ingest.ClassInvalidCredential, Err: errors.New("401")})

	e := newTestEnricher(provider, []string{"k1"})
	got := e.Enrich(context.Background(), "Sunset", []string{"beach"})

	require.Equal(t, ingest.EnrichmentResult{
		Description: "Sunset, beach",
	}, got)
	require.Equal(t, []string{"k1"}, provider.calls(), "single key means a single attempt")
}

func TestEnrichRetriesMalformedResponse(t *testing.T) {
	provider := newFakeProvider()
	first := true
	provider.byKey["k1"] = func() (string, error) {
		if first {
			first = false
			return "no json here", nil
		}
		return `{"description": "second try"}`, nil
	}

	e := newTestEnricher(provider, []string{"k1", "k1b"})
	provider.byKey["k1b"] = provider.byKey["k1"]
	got := e.Enrich(context.Background(), "t", nil)

	require.Equal(t, "second try", got.Description)
	require.Len(t, provider.calls(), 2)
}

func TestEnrichPacesRetriedProviderCalls(t *testing.T) {
	provider := newFakeProvider()
	provider.fail("k1", errors.New("transient hiccup"))
	provider.respond("k2", `{"description": "ok"}`)

	gap := 150 * time.Millisecond
	keys := keyring.New([]string{"k1", "k2"}, time.Minute, fixedClock{}, nil)
	limiter := ratelimit.New(1, gap)
	retrier := retry.New(retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}, nil)
	e := New(provider, keys, limiter, retrier, Config{Timeout: time.Second, MaxRetries: 3}, nil)

	got := e.Enrich(context.Background(), "t", nil)
	require.Equal(t, "ok", got.Description)

	ts := provider.timestamps()
	require.Len(t, ts, 2)
	require.GreaterOrEqual(t, ts[1].Sub(ts[0]), gap-20*time.Millisecond,
		"the retried call waits out the spacing gap")
}

func TestEnrichWithoutKeysSkipsProvider(t *testing.T) {
	provider := newFakeProvider()
	e := newTestEnricher(provider, nil)

	got := e.Enrich(context.Background(), "Sunset", []string{"beach", "evening"})
	require.Equal(t, "Sunset, beach, evening", got.Description)
	require.Empty(t, got.TitleTranslation)
	require.Empty(t, provider.calls())
}

func TestParseResponse(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    ingest.EnrichmentResult
		wantErr bool
	}{
		{
			name: "plain object",
			in:   `{"title_translation":"a","description":"b","tags_translation":["c"]}`,
			want: ingest.EnrichmentResult{TitleTranslation: "a", Description: "b", TagsTranslation: []string{"c"}},
		},
		{
			name: "fenced with prose",
			in:   "Sure! Here you go:\n```json\n{\"description\":\"b\"}\n```\nHope that helps.",
			want: ingest.EnrichmentResult{Description: "b"},
		},
		{
			name:    "no object",
			in:      "cannot comply",
			wantErr: true,
		},
		{
			name:    "broken json",
			in:      `{"description": `,
			wantErr: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseResponse(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestClassifyDefaultsToTransient(t *testing.T) {
	require.Equal(t, ingest.ClassTransient, Classify(errors.New("network hiccup")))
	require.Equal(t, ingest.ClassQuotaExhausted, Classify(&ProviderError{Class: ingest.ClassQuotaExhausted, Err: errors.New("x")}))
}
