package session

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL session repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// GetSession retrieves the session context by ID.
func (r *PostgresRepository) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	query := `
		SELECT id, class_id, faculty_id, token, starts_at, ends_at, latitude, longitude, geofence_radius_meters
		FROM sessions
		WHERE id = $1
	`

	var s Session
	err := r.pool.QueryRow(ctx, query, sessionID).Scan(
		&s.ID,
		&s.ClassID,
		&s.FacultyID,
		&s.Token,
		&s.StartsAt,
		&s.EndsAt,
		&s.Location.Lat,
		&s.Location.Lon,
		&s.GeofenceRadiusMeters,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	networks, err := r.loadNetworks(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	s.Networks = networks

	return &s, nil
}

func (r *PostgresRepository) loadNetworks(ctx context.Context, sessionID string) ([]Network, error) {
	query := `
		SELECT ssid, bssid
		FROM session_networks
		WHERE session_id = $1
		ORDER BY ssid
	`

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var networks []Network
	for rows.Next() {
		var n Network
		if err := rows.Scan(&n.SSID, &n.BSSID); err != nil {
			return nil, err
		}
		networks = append(networks, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return networks, nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
