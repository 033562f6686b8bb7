// Package keyring rotates enrichment credentials and temporarily removes
// failing ones from rotation.
package keyring

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mediaharbor/clipcrawler/internal/ingest"
	"github.com/mediaharbor/clipcrawler/internal/telemetry"
)

// ErrNoKeysAvailable signals that every credential is cooling down.
var ErrNoKeysAvailable = errors.New("no api keys available")

// DefaultCooldown is applied when no cooldown is configured.
const DefaultCooldown = 60 * time.Second

type keyState struct {
	key string
	// zero means available; a future timestamp excludes the key from
	// rotation until it elapses.
	unavailableUntil time.Time
}

// Keyring round-robins across a fixed credential list. The cursor and
// per-key cooldown timestamps are the only shared mutable state and are
// guarded by a single mutex.
type Keyring struct {
	mu       sync.Mutex
	keys     []keyState
	cursor   int
	cooldown time.Duration
	clock    ingest.Clock
	logger   *zap.Logger
}

// New builds a Keyring over the given credentials.
func New(keys []string, cooldown time.Duration, clock ingest.Clock, logger *zap.Logger) *Keyring {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	states := make([]keyState, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		states = append(states, keyState{key: k})
	}
	return &Keyring{
		keys:     states,
		cooldown: cooldown,
		clock:    clock,
		logger:   logger,
	}
}

// Len returns the number of configured credentials.
func (r *Keyring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}

// Next returns the next credential whose cooldown has elapsed, advancing
// the cursor past every inspected position. It never blocks; when all
// credentials are cooling down it returns ErrNoKeysAvailable.
func (r *Keyring) Next() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.keys) == 0 {
		return "", ErrNoKeysAvailable
	}
	now := r.clock.Now()
	for i := 0; i < len(r.keys); i++ {
		idx := r.cursor
		r.cursor = (r.cursor + 1) % len(r.keys)
		st := &r.keys[idx]
		if st.unavailableUntil.IsZero() || !st.unavailableUntil.After(now) {
			st.unavailableUntil = time.Time{}
			return st.key, nil
		}
	}
	return "", ErrNoKeysAvailable
}

// MarkFailed starts the cooldown for the given credential when the
// failure class indicates quota exhaustion or an invalid key. Other
// classes leave the key in rotation.
func (r *Keyring) MarkFailed(key string, class ingest.ErrorClass) {
	if class != ingest.ClassQuotaExhausted && class != ingest.ClassInvalidCredential {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.keys {
		if r.keys[i].key != key {
			continue
		}
		r.keys[i].unavailableUntil = r.clock.Now().Add(r.cooldown)
		telemetry.KeyCooldowns.WithLabelValues(class.String()).Inc()
		r.logger.Warn("api key placed on cooldown",
			zap.Int("key_index", i),
			zap.String("class", class.String()),
			zap.Duration("cooldown", r.cooldown),
		)
		return
	}
}
