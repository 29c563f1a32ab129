package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-session-service/internal/domain"
)

// ResultsStore archives completed sessions. Each session writes one row:
// identifying columns for reporting queries plus the full standings and
// submissions as JSONB, since the reporting schema lives outside this service.
type ResultsStore struct {
	pool *pgxpool.Pool
}

func NewResultsStore(pool *pgxpool.Pool) *ResultsStore {
	return &ResultsStore{pool: pool}
}

func (s *ResultsStore) SaveResult(ctx context.Context, result domain.FinalResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal session result: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO session_results (session_id, quiz_id, host_id, started_at, ended_at, data)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id) DO NOTHING`,
		result.SessionID, result.QuizID, result.HostID, result.StartedAt, result.EndedAt, data)
	if err != nil {
		return fmt.Errorf("save session result: %w", err)
	}
	return nil
}
