package archive

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/live-polling/backend/internal/rooms"
)

// Repository persists completed polls to PostgreSQL. Rooms and their
// live state stay in memory; the archive is write-only from the
// engine's point of view and survives room teardown.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an archive repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SavePoll inserts one completed poll. It implements rooms.Archiver.
func (r *Repository) SavePoll(ctx context.Context, roomID string, rec *rooms.PollRecord) error {
	options, err := json.Marshal(rec.Options)
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}
	tally, err := json.Marshal(rec.Tally)
	if err != nil {
		return fmt.Errorf("encode tally: %w", err)
	}

	const query = `INSERT INTO poll_archive
		(id, room_id, question, options, correct_option_index, tally, total_votes, completion_reason, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err = r.pool.Exec(ctx, query,
		uuid.New(), roomID, rec.Question, options, rec.CorrectOptionIndex,
		tally, rec.TotalVotes, string(rec.CompletionReason), rec.StartTime, rec.EndTime)
	return err
}
