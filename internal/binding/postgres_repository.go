package binding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL binding repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const deviceColumns = "id, student_id, fingerprint, bound, activated_at, deactivated_at, binding_expires_at"

const switchRequestColumns = "id, student_id, old_fingerprint, new_fingerprint, requested_at, cooldown_complete_at, admin_approved, approved_by, approved_at, status, rejected_reason"

// GetBoundDevice retrieves the student's currently bound device.
func (r *PostgresRepository) GetBoundDevice(ctx context.Context, studentID string) (*Device, error) {
	query := `
		SELECT ` + deviceColumns + `
		FROM devices
		WHERE student_id = $1 AND bound = TRUE
	`

	device, err := scanDevice(r.pool.QueryRow(ctx, query, studentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDeviceNotBound
	}
	return device, err
}

// GetDeviceByFingerprint retrieves a student's device record for a
// fingerprint, bound or not.
func (r *PostgresRepository) GetDeviceByFingerprint(ctx context.Context, studentID, fingerprint string) (*Device, error) {
	query := `
		SELECT ` + deviceColumns + `
		FROM devices
		WHERE student_id = $1 AND fingerprint = $2
	`

	device, err := scanDevice(r.pool.QueryRow(ctx, query, studentID, fingerprint))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDeviceNotFound
	}
	return device, err
}

// SaveDevice creates or updates a device record.
func (r *PostgresRepository) SaveDevice(ctx context.Context, device *Device) error {
	_, err := r.pool.Exec(ctx, upsertDeviceQuery, deviceArgs(device)...)
	return err
}

// GetPendingSwitchRequest retrieves the student's pending switch request.
func (r *PostgresRepository) GetPendingSwitchRequest(ctx context.Context, studentID string) (*SwitchRequest, error) {
	query := `
		SELECT ` + switchRequestColumns + `
		FROM switch_requests
		WHERE student_id = $1 AND status = $2
	`

	request, err := scanSwitchRequest(r.pool.QueryRow(ctx, query, studentID, SwitchPending))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRequestNotFound
	}
	return request, err
}

// GetSwitchRequest retrieves a switch request by ID.
func (r *PostgresRepository) GetSwitchRequest(ctx context.Context, requestID string) (*SwitchRequest, error) {
	query := `
		SELECT ` + switchRequestColumns + `
		FROM switch_requests
		WHERE id = $1
	`

	request, err := scanSwitchRequest(r.pool.QueryRow(ctx, query, requestID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRequestNotFound
	}
	return request, err
}

// SaveSwitchRequest creates or updates a switch request.
func (r *PostgresRepository) SaveSwitchRequest(ctx context.Context, request *SwitchRequest) error {
	_, err := r.pool.Exec(ctx, upsertSwitchRequestQuery, switchRequestArgs(request)...)
	return err
}

// ListSwitchRequests retrieves requests matching the filter, newest first.
func (r *PostgresRepository) ListSwitchRequests(ctx context.Context, filter SwitchRequestFilter) ([]*SwitchRequest, error) {
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
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if !filter.CooldownCompleteBefore.IsZero() {
		add("cooldown_complete_at < $%d", filter.CooldownCompleteBefore)
	}

	query := `
		SELECT ` + switchRequestColumns + `
		FROM switch_requests
	`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY requested_at DESC"

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

	return collectSwitchRequests(rows)
}

// ListStalePending retrieves pending requests requested before the given
// instant.
func (r *PostgresRepository) ListStalePending(ctx context.Context, requestedBefore time.Time) ([]*SwitchRequest, error) {
	query := `
		SELECT ` + switchRequestColumns + `
		FROM switch_requests
		WHERE status = $1 AND requested_at < $2
	`

	rows, err := r.pool.Query(ctx, query, SwitchPending, requestedBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSwitchRequests(rows)
}

// CompleteSwitch applies the three writes of a switch completion in one
// transaction so no reader observes a student with zero or two bound
// devices.
func (r *PostgresRepository) CompleteSwitch(ctx context.Context, request *SwitchRequest, oldDevice, newDevice *Device) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin switch completion: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, upsertDeviceQuery, deviceArgs(oldDevice)...); err != nil {
		return fmt.Errorf("deactivate old device: %w", err)
	}
	if _, err := tx.Exec(ctx, upsertDeviceQuery, deviceArgs(newDevice)...); err != nil {
		return fmt.Errorf("bind new device: %w", err)
	}
	if _, err := tx.Exec(ctx, upsertSwitchRequestQuery, switchRequestArgs(request)...); err != nil {
		return fmt.Errorf("close switch request: %w", err)
	}

	return tx.Commit(ctx)
}

const upsertDeviceQuery = `
	INSERT INTO devices (id, student_id, fingerprint, bound, activated_at, deactivated_at, binding_expires_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (student_id, fingerprint) DO UPDATE SET
		bound = EXCLUDED.bound,
		activated_at = EXCLUDED.activated_at,
		deactivated_at = EXCLUDED.deactivated_at,
		binding_expires_at = EXCLUDED.binding_expires_at
`

func deviceArgs(d *Device) []interface{} {
	return []interface{}{
		d.ID,
		d.StudentID,
		d.Fingerprint,
		d.Bound,
		d.ActivatedAt,
		d.DeactivatedAt,
		d.BindingExpiresAt,
	}
}

const upsertSwitchRequestQuery = `
	INSERT INTO switch_requests (id, student_id, old_fingerprint, new_fingerprint, requested_at, cooldown_complete_at, admin_approved, approved_by, approved_at, status, rejected_reason)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (id) DO UPDATE SET
		admin_approved = EXCLUDED.admin_approved,
		approved_by = EXCLUDED.approved_by,
		approved_at = EXCLUDED.approved_at,
		status = EXCLUDED.status,
		rejected_reason = EXCLUDED.rejected_reason
`

func switchRequestArgs(req *SwitchRequest) []interface{} {
	return []interface{}{
		req.ID,
		req.StudentID,
		req.OldFingerprint,
		req.NewFingerprint,
		req.RequestedAt,
		req.CooldownCompleteAt,
		req.AdminApproved,
		req.ApprovedBy,
		req.ApprovedAt,
		req.Status,
		req.RejectedReason,
	}
}

func scanDevice(row pgx.Row) (*Device, error) {
	var d Device
	err := row.Scan(
		&d.ID,
		&d.StudentID,
		&d.Fingerprint,
		&d.Bound,
		&d.ActivatedAt,
		&d.DeactivatedAt,
		&d.BindingExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func scanSwitchRequest(row pgx.Row) (*SwitchRequest, error) {
	var req SwitchRequest
	err := row.Scan(
		&req.ID,
		&req.StudentID,
		&req.OldFingerprint,
		&req.NewFingerprint,
		&req.RequestedAt,
		&req.CooldownCompleteAt,
		&req.AdminApproved,
		&req.ApprovedBy,
		&req.ApprovedAt,
		&req.Status,
		&req.RejectedReason,
	)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func collectSwitchRequests(rows pgx.Rows) ([]*SwitchRequest, error) {
	var out []*SwitchRequest
	for rows.Next() {
		req, err := scanSwitchRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
