package enrich

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/mediaharbor/clipcrawler/internal/ingest"
)

// LangchainProvider implements Provider over langchaingo's OpenAI client.
// Clients are cached per credential so key rotation reuses connections.
type LangchainProvider struct {
	model string

	mu      sync.Mutex
	clients map[string]llms.LLM
}

// NewLangchainProvider builds a LangchainProvider for the given model.
func NewLangchainProvider(model string) *LangchainProvider {
	return &LangchainProvider{
		model:   model,
		clients: make(map[string]llms.LLM),
	}
}

// Generate runs a single completion using the given credential.
func (p *LangchainProvider) Generate(ctx context.Context, apiKey, prompt string) (string, error) {
	client, err := p.client(apiKey)
	if err != nil {
		return "", &ProviderError{Class: ingest.ClassInvalidCredential, Err: err}
	}
	out, err := client.Call(ctx, prompt,
		llms.WithTemperature(0.2),
		llms.WithMaxTokens(512),
	)
	if err != nil {
		return "", &ProviderError{Class: classifyCallError(err), Err: err}
	}
	if strings.TrimSpace(out) == "" {
		return "", &ProviderError{
			Class: ingest.ClassMalformedResponse,
			Err:   fmt.Errorf("empty completion"),
		}
	}
	return out, nil
}

func (p *LangchainProvider) client(apiKey string) (llms.LLM, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if client, ok := p.clients[apiKey]; ok {
		return client, nil
	}
	opts := []openai.Option{openai.WithToken(apiKey)}
	if p.model != "" {
		opts = append(opts, openai.WithModel(p.model))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("initialize provider client: %w", err)
	}
	p.clients[apiKey] = client
	return client, nil
}

// classifyCallError maps provider transport errors onto the breaker's
// taxonomy using status markers in the error text; the SDK does not
// expose structured status codes.
func classifyCallError(err error) ingest.ErrorClass {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "quota"):
		return ingest.ClassQuotaExhausted
	case strings.Contains(msg, "401"),
		strings.Contains(msg, "invalid api key"),
		strings.Contains(msg, "incorrect api key"),
		strings.Contains(msg, "unauthorized"):
		return ingest.ClassInvalidCredential
	case strings.Contains(msg, "unmarshal"),
		strings.Contains(msg, "unexpected end of json"):
		return ingest.ClassMalformedResponse
	default:
		return ingest.ClassTransient
	}
}
