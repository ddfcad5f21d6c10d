package activity

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL activity repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Append adds an entry to the log.
func (r *PostgresRepository) Append(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = "act_" + uuid.New().String()[:22]
	}

	query := `
		INSERT INTO activity_log (id, student_id, device_fingerprint, activity_type, actor, reason, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		entry.ID,
		entry.StudentID,
		entry.DeviceFingerprint,
		entry.Type,
		entry.Actor,
		entry.Reason,
		entry.At,
	)
	return err
}

// List retrieves entries matching the filter, newest first.
func (r *PostgresRepository) List(ctx context.Context, filter Filter) ([]Entry, error) {
	var (
		conds []string
		args  []interface{}
	)

	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.StudentID != "" {
		add("student_id = $%d", filter.StudentID)
	}
	if filter.DeviceFingerprint != "" {
		add("device_fingerprint = $%d", filter.DeviceFingerprint)
	}
	if filter.Type != "" {
		add("activity_type = $%d", filter.Type)
	}
	if !filter.From.IsZero() {
		add("occurred_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("occurred_at <= $%d", filter.To)
	}

	query := `
		SELECT id, student_id, device_fingerprint, activity_type, actor, reason, occurred_at
		FROM activity_log
	`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY occurred_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.StudentID, &e.DeviceFingerprint, &e.Type, &e.Actor, &e.Reason, &e.At); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
