package session

import (
	"sync"
	"time"

	"github.com/mediaharbor/clipcrawler/internal/ingest"
)

// outcome is the resolution of one dispatched work item.
type outcome string

const (
	outcomeNew     outcome = "new"
	outcomeUpdated outcome = "updated"
	outcomeSkipped outcome = "skipped"
	outcomeFailed  outcome = "failed"
)

// session holds the mutable state of one run. Stats and state are guarded
// by mu; the abort channel is closed at most once.
type session struct {
	id        string
	logID     string
	startedAt time.Time

	abort     chan struct{}
	abortOnce sync.Once

	mu         sync.Mutex
	state      ingest.SessionState
	stats      ingest.CrawlStats
	dispatched int
	fatal      error
}

func (s *session) aborted() bool {
	select {
	case <-s.abort:
		return true
	default:
		return false
	}
}

func (s *session) setState(state ingest.SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *session) setFatal(err error) {
	s.mu.Lock()
	s.fatal = err
	s.mu.Unlock()
}

func (s *session) fatalErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatal
}

func (s *session) addDispatched() {
	s.mu.Lock()
	s.dispatched++
	s.mu.Unlock()
}

func (s *session) dispatchedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatched
}

func (s *session) record(out outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch out {
	case outcomeNew:
		s.stats.New++
	case outcomeUpdated:
		s.stats.Updated++
	case outcomeSkipped:
		s.stats.Skipped++
	case outcomeFailed:
		s.stats.Failed++
	}
}

func (s *session) snapshot() (ingest.SessionState, ingest.CrawlStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.stats
}
