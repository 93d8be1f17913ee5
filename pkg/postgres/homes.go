package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jakechorley/teamclean/pkg/core/model"
)

const homeColumns = `id, owner_id, name, address, postal_code, city, state, access_code, access_notes,
	contact_phone, has_gate, beds, baths, area_sq_ft, has_pets, pet_notes,
	preferred_worker_id, time_to_clean_mins, scheduling_notes, address_hash`

func scanHome(row pgx.Row) (*model.Home, error) {
	var h model.Home
	err := row.Scan(&h.ID, &h.OwnerID, &h.Name, &h.Address, &h.PostalCode, &h.City, &h.State, &h.AccessCode, &h.AccessNotes,
		&h.ContactPhone, &h.HasGate, &h.Beds, &h.Baths, &h.AreaSqFt, &h.HasPets, &h.PetNotes,
		&h.PreferredWorkerID, &h.TimeToCleanMins, &h.SchedulingNotes, &h.AddressHash)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// GetHome returns the home with its sensitive fields still encrypted
func (r reader) GetHome(ctx context.Context, id int64) (*model.Home, error) {
	h, err := scanHome(r.q.QueryRow(ctx, `SELECT `+homeColumns+` FROM homes WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("home %d", id))
	}
	return h, nil
}

func (r reader) FindHomeByAddressHash(ctx context.Context, ownerID int64, hash string) (*model.Home, error) {
	h, err := scanHome(r.q.QueryRow(ctx, `
		SELECT `+homeColumns+` FROM homes
		WHERE owner_id = $1 AND address_hash = $2 AND address_hash <> ''
		LIMIT 1
	`, ownerID, hash))
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("home with address hash for owner %d", ownerID))
	}
	return h, nil
}

// InsertHome stores a home whose sensitive fields the caller already encrypted
func (t *Tx) InsertHome(ctx context.Context, home *model.Home) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO homes (owner_id, name, address, postal_code, city, state, access_code, access_notes,
			contact_phone, has_gate, beds, baths, area_sq_ft, has_pets, pet_notes,
			preferred_worker_id, time_to_clean_mins, scheduling_notes, address_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING id
	`, home.OwnerID, home.Name, home.Address, home.PostalCode, home.City, home.State, home.AccessCode, home.AccessNotes,
		home.ContactPhone, home.HasGate, home.Beds, home.Baths, home.AreaSqFt, home.HasPets, home.PetNotes,
		home.PreferredWorkerID, home.TimeToCleanMins, home.SchedulingNotes, home.AddressHash).Scan(&home.ID)
	if err != nil {
		return mapError(err, "failed to insert home")
	}
	return nil
}

// EmailFor resolves a user's email address for the email notification channel
func (d *DB) EmailFor(ctx context.Context, userID int64) (string, error) {
	var email string
	err := d.pool.QueryRow(ctx, `SELECT email FROM users WHERE id = $1`, userID).Scan(&email)
	if err != nil {
		return "", mapError(err, fmt.Sprintf("user %d", userID))
	}
	return email, nil
}
