package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CallLog is the audit row written once per session when it reaches a
// terminal status.
type CallLog struct {
	SessionID      uuid.UUID      `db:"session_id"`
	CampaignID     sql.NullString `db:"campaign_id"`
	Phone          string         `db:"phone"`
	ExternalCallID sql.NullString `db:"external_call_id"`
	Status         string         `db:"status"`
	TurnCount      int            `db:"turn_count"`
	ErrorMessage   sql.NullString `db:"error_message"`
	CreatedAt      time.Time      `db:"created_at"`
	CompletedAt    *time.Time     `db:"completed_at"`
}

const sqlInsertCallLog = `
INSERT INTO call_logs (session_id, campaign_id, phone, external_call_id, status, turn_count, error_message, created_at, completed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (session_id) DO NOTHING`

func (s *Store) InsertCallLog(ctx context.Context, entry CallLog) error {
	_, err := s.db.ExecContext(ctx, sqlInsertCallLog,
		entry.SessionID,
		entry.CampaignID,
		entry.Phone,
		entry.ExternalCallID,
		entry.Status,
		entry.TurnCount,
		entry.ErrorMessage,
		entry.CreatedAt,
		entry.CompletedAt,
	)
	if err != nil {
		s.logger.Error(ctx, "failed to insert call log", err)
		return fmt.Errorf("failed to insert call log: %w", err)
	}
	return nil
}
