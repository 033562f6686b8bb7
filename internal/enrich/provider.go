// Package enrich calls the text-generation provider with key rotation,
// pacing and a deterministic fallback path.
package enrich

import (
	"context"
	"errors"
	"fmt"

	"github.com/mediaharbor/clipcrawler/internal/ingest"
)

// Provider is the text-generation port. The wire format of the chosen
// provider is irrelevant here; only the error classification matters.
type Provider interface {
	Generate(ctx context.Context, apiKey, prompt string) (string, error)
}

// ProviderError wraps a provider failure with its classification.
type ProviderError struct {
	Class ingest.ErrorClass
	Err   error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Class, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Classify extracts the failure class from an error chain, defaulting to
// transient.
func Classify(err error) ingest.ErrorClass {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Class
	}
	return ingest.ClassTransient
}
