// Package db persists final analysis records for later analytics. Writes are
// fire-and-forget from the orchestrator's point of view: a failed insert is
// logged and never blocks or fails the primary request.
package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mailsage/mailsage/logger"
)

// AnalysisRecord is one completed analysis, flattened for storage.
type AnalysisRecord struct {
	Sender         string
	Subject        string
	Classification string
	ImageCount     int
	DocumentCount  int
	FeedbackLength int
	PromptTokens   int
	TotalTokens    int
	Duration       time.Duration
	MessageID      string
}

// Store wraps a pgx connection pool.
type Store struct {
	pool         *pgxpool.Pool
	writeTimeout time.Duration
}

// New connects to the analytics database. The pool is verified with a ping
// so a bad URL surfaces at startup rather than on the first webhook.
func New(ctx context.Context, url string, writeTimeout time.Duration) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool, writeTimeout: writeTimeout}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// SaveAnalysis inserts one record under its own timeout. Errors are logged
// and swallowed; the caller runs this in a goroutine and never waits on it.
func (s *Store) SaveAnalysis(rec AnalysisRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO analysis_records
			(sender, subject, classification, image_count, document_count,
			 feedback_length, prompt_tokens, total_tokens, duration_ms, message_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())`,
		rec.Sender, rec.Subject, rec.Classification, rec.ImageCount, rec.DocumentCount,
		rec.FeedbackLength, rec.PromptTokens, rec.TotalTokens, rec.Duration.Milliseconds(), rec.MessageID)
	if err != nil {
		logger.Warn("Failed to persist analysis record", "error", err)
		return
	}

	logger.Debug("Analysis record persisted", "classification", rec.Classification)
}
