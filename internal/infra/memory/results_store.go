package memory

import (
	"context"
	"sync"

	"quiz-session-service/internal/domain"
)

// ResultsStore keeps completed-session records in memory. Used when no
// Postgres is configured and by tests asserting the archival hand-off.
type ResultsStore struct {
	mu      sync.Mutex
	results map[string]domain.FinalResult
}

func NewResultsStore() *ResultsStore {
	return &ResultsStore{results: make(map[string]domain.FinalResult)}
}

func (s *ResultsStore) SaveResult(_ context.Context, result domain.FinalResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.SessionID] = result
	return nil
}

// Result returns the archived record for a session, if any.
func (s *ResultsStore) Result(sessionID string) (domain.FinalResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result, ok := s.results[sessionID]
	return result, ok
}
