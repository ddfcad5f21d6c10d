package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL attendance repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const attendanceColumns = "id, session_id, student_id, device_fingerprint, event_at, accepted, score, reason, breakdown, recorded_at"

// Insert stores a record idempotently. The unique index on
// (session_id, student_id, event_at) makes resubmission a no-op.
func (r *PostgresRepository) Insert(ctx context.Context, record *Record) (*Record, bool, error) {
	if record.ID == "" {
		record.ID = "att_" + uuid.New().String()[:22]
	}

	breakdown, err := json.Marshal(record.Breakdown)
	if err != nil {
		return nil, false, fmt.Errorf("marshal breakdown: %w", err)
	}

	query := `
		INSERT INTO attendance_records (id, session_id, student_id, device_fingerprint, event_at, accepted, score, reason, breakdown, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (session_id, student_id, event_at) DO NOTHING
	`

	tag, err := r.pool.Exec(ctx, query,
		record.ID,
		record.SessionID,
		record.StudentID,
		record.DeviceFingerprint,
		record.At,
		record.Accepted,
		record.Score,
		record.Reason,
		breakdown,
		record.RecordedAt,
	)
	if err != nil {
		return nil, false, err
	}

	if tag.RowsAffected() == 0 {
		existing, err := r.Get(ctx, record.SessionID, record.StudentID, record.At)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	return record, true, nil
}

// Get retrieves a record by its idempotency key.
func (r *PostgresRepository) Get(ctx context.Context, sessionID, studentID string, at time.Time) (*Record, error) {
	query := `
		SELECT ` + attendanceColumns + `
		FROM attendance_records
		WHERE session_id = $1 AND student_id = $2 AND event_at = $3
	`

	record, err := scanRecord(r.pool.QueryRow(ctx, query, sessionID, studentID, at))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return record, err
}

// ListBySession retrieves a session's records, oldest first.
func (r *PostgresRepository) ListBySession(ctx context.Context, sessionID string) ([]*Record, error) {
	query := `
		SELECT ` + attendanceColumns + `
		FROM attendance_records
		WHERE session_id = $1
		ORDER BY event_at ASC
	`

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var (
		rec       Record
		breakdown []byte
	)
	err := row.Scan(
		&rec.ID,
		&rec.SessionID,
		&rec.StudentID,
		&rec.DeviceFingerprint,
		&rec.At,
		&rec.Accepted,
		&rec.Score,
		&rec.Reason,
		&breakdown,
		&rec.RecordedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(breakdown) > 0 {
		if err := json.Unmarshal(breakdown, &rec.Breakdown); err != nil {
			return nil, fmt.Errorf("unmarshal breakdown: %w", err)
		}
	}

	return &rec, nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
