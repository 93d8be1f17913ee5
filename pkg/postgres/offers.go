package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jakechorley/teamclean/pkg/core/model"
)

const offerColumns = `
	id, job_id, candidate_id, offer_type, compensation_cents, offered_units, status, created_at, expires_at`

func scanOffer(row pgx.Row) (*model.Offer, error) {
	var o model.Offer
	var units []byte
	err := row.Scan(&o.ID, &o.JobID, &o.CandidateID, &o.OfferType, &o.CompensationCents, &units, &o.Status,
		&o.CreatedAt, &o.ExpiresAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(units, &o.OfferedUnits); err != nil {
		return nil, fmt.Errorf("failed to decode offered units of offer %d: %w", o.ID, err)
	}
	return &o, nil
}

func (r reader) queryOffers(ctx context.Context, where string, args ...any) ([]model.Offer, error) {
	rows, err := r.q.Query(ctx, `SELECT `+offerColumns+` FROM offers WHERE `+where+` ORDER BY id`+r.lockClause, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query offers: %w", err)
	}
	defer rows.Close()

	var offers []model.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan offer: %w", err)
		}
		offers = append(offers, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating offers: %w", err)
	}
	return offers, nil
}

func (r reader) GetOffer(ctx context.Context, id int64) (*model.Offer, error) {
	offer, err := scanOffer(r.q.QueryRow(ctx, `SELECT `+offerColumns+` FROM offers WHERE id = $1`+r.lockClause, id))
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("offer %d", id))
	}
	return offer, nil
}

func (r reader) ListOffersForJob(ctx context.Context, jobID int64) ([]model.Offer, error) {
	return r.queryOffers(ctx, `job_id = $1`, jobID)
}

func (t *Tx) InsertOffer(ctx context.Context, offer *model.Offer) error {
	units, err := encodeUnits(offer.OfferedUnits)
	if err != nil {
		return fmt.Errorf("failed to encode offered units: %w", err)
	}
	err = t.tx.QueryRow(ctx, `
		INSERT INTO offers (job_id, candidate_id, offer_type, compensation_cents, offered_units, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, offer.JobID, offer.CandidateID, offer.OfferType, offer.CompensationCents, units, offer.Status,
		offer.CreatedAt, offer.ExpiresAt).Scan(&offer.ID)
	if err != nil {
		return mapError(err, "failed to insert offer")
	}
	return nil
}

func (t *Tx) UpdateOffer(ctx context.Context, offer *model.Offer) error {
	tag, err := t.tx.Exec(ctx, `UPDATE offers SET status = $2 WHERE id = $1`, offer.ID, offer.Status)
	if err != nil {
		return mapError(err, "failed to update offer")
	}
	if tag.RowsAffected() == 0 {
		return mapError(pgx.ErrNoRows, fmt.Sprintf("offer %d", offer.ID))
	}
	return nil
}

func (d *DB) ListOffersForCandidate(ctx context.Context, candidateID int64, status model.OfferStatus) ([]model.Offer, error) {
	if status == "" {
		return d.queryOffers(ctx, `candidate_id = $1`, candidateID)
	}
	return d.queryOffers(ctx, `candidate_id = $1 AND status = $2`, candidateID, status)
}

func (d *DB) FindExpiredOffers(ctx context.Context, now time.Time) ([]model.Offer, error) {
	return d.queryOffers(ctx, `status = 'pending' AND expires_at < $1`, now)
}
