package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jakechorley/teamclean/pkg/core/model"
	"github.com/jakechorley/teamclean/pkg/db"
)

const joinRequestColumns = `
	r.id, r.job_id, r.candidate_id, r.proposed_units, r.status, r.decline_reason,
	r.decided_by, r.decided_at, r.created_at, r.expires_at`

func scanJoinRequest(row pgx.Row) (*model.JoinRequest, error) {
	var r model.JoinRequest
	var units []byte
	err := row.Scan(&r.ID, &r.JobID, &r.CandidateID, &units, &r.Status, &r.DeclineReason,
		&r.DecidedBy, &r.DecidedAt, &r.CreatedAt, &r.ExpiresAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(units, &r.ProposedUnits); err != nil {
		return nil, fmt.Errorf("failed to decode proposed units of request %d: %w", r.ID, err)
	}
	return &r, nil
}

func encodeUnits(units []model.Unit) ([]byte, error) {
	if units == nil {
		units = []model.Unit{}
	}
	return json.Marshal(units)
}

func collectJoinRequests(rows pgx.Rows) ([]model.JoinRequest, error) {
	defer rows.Close()
	var reqs []model.JoinRequest
	for rows.Next() {
		r, err := scanJoinRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan join request: %w", err)
		}
		reqs = append(reqs, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating join requests: %w", err)
	}
	return reqs, nil
}

func (r reader) GetJoinRequest(ctx context.Context, id int64) (*model.JoinRequest, error) {
	req, err := scanJoinRequest(r.q.QueryRow(ctx, `SELECT `+joinRequestColumns+` FROM join_requests r WHERE r.id = $1`+r.lockClause, id))
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("join request %d", id))
	}
	return req, nil
}

func (r reader) ListJoinRequestsForJob(ctx context.Context, jobID int64) ([]model.JoinRequest, error) {
	rows, err := r.q.Query(ctx, `SELECT `+joinRequestColumns+` FROM join_requests r WHERE r.job_id = $1 ORDER BY r.id`+r.lockClause, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query join requests: %w", err)
	}
	return collectJoinRequests(rows)
}

func (t *Tx) InsertJoinRequest(ctx context.Context, req *model.JoinRequest) error {
	units, err := encodeUnits(req.ProposedUnits)
	if err != nil {
		return fmt.Errorf("failed to encode proposed units: %w", err)
	}
	err = t.tx.QueryRow(ctx, `
		INSERT INTO join_requests (job_id, candidate_id, proposed_units, status, decline_reason,
			decided_by, decided_at, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, req.JobID, req.CandidateID, units, req.Status, req.DeclineReason,
		req.DecidedBy, req.DecidedAt, req.CreatedAt, req.ExpiresAt).Scan(&req.ID)
	if err != nil {
		return mapError(err, "failed to insert join request")
	}
	return nil
}

func (t *Tx) UpdateJoinRequest(ctx context.Context, req *model.JoinRequest) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE join_requests SET status = $2, decline_reason = $3, decided_by = $4, decided_at = $5
		WHERE id = $1
	`, req.ID, req.Status, req.DeclineReason, req.DecidedBy, req.DecidedAt)
	if err != nil {
		return mapError(err, "failed to update join request")
	}
	if tag.RowsAffected() == 0 {
		return mapError(pgx.ErrNoRows, fmt.Sprintf("join request %d", req.ID))
	}
	return nil
}

func (d *DB) ListJoinRequests(ctx context.Context, filter db.JoinRequestFilter) ([]model.JoinRequest, error) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.CandidateID != 0 {
		add("r.candidate_id = $%d", filter.CandidateID)
	}
	if filter.Status != "" {
		add("r.status = $%d", filter.Status)
	}
	if filter.AppointmentID != 0 {
		add("j.appointment_id = $%d", filter.AppointmentID)
	}
	if filter.OwnerID != 0 {
		args = append(args, filter.OwnerID)
		n := len(args)
		conds = append(conds, fmt.Sprintf("(j.coordinator_id = $%d OR (j.coordinator_id = 0 AND a.requester_id = $%d))", n, n))
	}

	query := `SELECT ` + joinRequestColumns + `
		FROM join_requests r
		JOIN jobs j ON j.id = r.job_id
		JOIN appointments a ON a.id = j.appointment_id`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY r.id"

	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query join requests: %w", err)
	}
	return collectJoinRequests(rows)
}

func (d *DB) FindExpiredJoinRequests(ctx context.Context, now time.Time) ([]model.JoinRequest, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT `+joinRequestColumns+` FROM join_requests r
		WHERE r.status = 'pending' AND r.expires_at < $1
		ORDER BY r.id
	`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired join requests: %w", err)
	}
	return collectJoinRequests(rows)
}
