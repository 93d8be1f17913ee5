package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/jakechorley/teamclean/pkg/core/model"
	"github.com/jakechorley/teamclean/pkg/db"
	"github.com/jakechorley/teamclean/pkg/pii"
	"github.com/jakechorley/teamclean/pkg/utils/tracing"
)

// RegisterHomeInput describes a new home in plaintext
type RegisterHomeInput struct {
	OwnerID         int64 // admins register on behalf of an owner; clients register their own
	Name            string
	Address         string
	PostalCode      string
	City            string
	State           string
	AccessCode      string
	AccessNotes     string
	ContactPhone    string
	HasGate         bool
	Beds            int
	Baths           int
	AreaSqFt        int
	HasPets         bool
	PetNotes        string
	TimeToCleanMins int
}

// AddressHash is the lookup digest of a home's plaintext address and postal code
func AddressHash(address, postalCode string) string {
	if strings.TrimSpace(address) == "" {
		return ""
	}
	return pii.Hash(strings.TrimSpace(address) + "|" + strings.TrimSpace(postalCode))
}

// RegisterHome stores a home with its sensitive fields encrypted.
// An owner cannot register the same address twice.
func (s *Service) RegisterHome(ctx context.Context, actor model.Actor, in RegisterHomeInput) (home *model.Home, err error) {
	ctx, span := tracing.StartSpan(ctx, "services.RegisterHome", attribute.Int64("owner_id", in.OwnerID))
	defer func() { tracing.EndSpan(span, err) }()

	switch actor.Role {
	case model.RoleAdmin:
		if in.OwnerID <= 0 {
			return nil, fmt.Errorf("%w: an owner is required", ErrInvalidInput)
		}
	case model.RoleClient:
		if in.OwnerID != 0 && in.OwnerID != actor.ID {
			return nil, fmt.Errorf("clients can only register their own homes: %w", ErrForbidden)
		}
		in.OwnerID = actor.ID
	default:
		return nil, fmt.Errorf("only clients can register homes: %w", ErrForbidden)
	}
	if strings.TrimSpace(in.Address) == "" {
		return nil, fmt.Errorf("%w: an address is required", ErrInvalidInput)
	}
	if in.Beds < 0 || in.Baths < 0 || in.AreaSqFt < 0 || in.TimeToCleanMins < 0 {
		return nil, fmt.Errorf("%w: room counts and sizes must not be negative", ErrInvalidInput)
	}

	home = &model.Home{
		OwnerID:         in.OwnerID,
		Name:            in.Name,
		City:            in.City,
		State:           in.State,
		HasGate:         in.HasGate,
		Beds:            in.Beds,
		Baths:           in.Baths,
		AreaSqFt:        in.AreaSqFt,
		HasPets:         in.HasPets,
		PetNotes:        in.PetNotes,
		TimeToCleanMins: in.TimeToCleanMins,
		AddressHash:     AddressHash(in.Address, in.PostalCode),
	}
	sealed := []struct {
		dst   *string
		value string
	}{
		{&home.Address, in.Address},
		{&home.PostalCode, in.PostalCode},
		{&home.AccessCode, in.AccessCode},
		{&home.AccessNotes, in.AccessNotes},
		{&home.ContactPhone, in.ContactPhone},
	}
	for _, f := range sealed {
		*f.dst = f.value
		if s.encrypter == nil {
			continue
		}
		if *f.dst, err = s.encrypter.Encrypt(f.value); err != nil {
			return nil, fmt.Errorf("failed to encrypt home fields: %w", err)
		}
	}

	err = s.db.InTx(ctx, func(tx db.Tx) error {
		existing, err := tx.FindHomeByAddressHash(ctx, home.OwnerID, home.AddressHash)
		switch {
		case err == nil:
			return fmt.Errorf("owner %d, home %d: %w", home.OwnerID, existing.ID, ErrHomeExists)
		case !errors.Is(err, db.ErrNotFound):
			return fmt.Errorf("failed to look up home: %w", err)
		}
		if err := tx.InsertHome(ctx, home); err != nil {
			if errors.Is(err, db.ErrConflict) {
				return fmt.Errorf("owner %d: %w", home.OwnerID, ErrHomeExists)
			}
			return fmt.Errorf("failed to insert home: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Home registered",
		zap.Int64("home_id", home.ID),
		zap.Int64("owner_id", home.OwnerID),
		zap.Int("beds", home.Beds),
		zap.Int("baths", home.Baths))
	return home, nil
}
