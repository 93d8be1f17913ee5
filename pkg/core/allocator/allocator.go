package allocator

import (
	"context"
	"errors"
	"fmt"

	"github.com/jakechorley/teamclean/pkg/core/model"
	"github.com/jakechorley/teamclean/pkg/db"
)

var (
	// ErrInvalidUnit is returned when a requested unit does not exist in the home
	ErrInvalidUnit = errors.New("invalid unit")

	// ErrUnitTaken is returned when a unit is already assigned within the job
	ErrUnitTaken = errors.New("unit already assigned")
)

// Store defines the database operations needed for allocating rooms.
// It is always called inside a transaction.
type Store interface {
	ListRoomAssignments(ctx context.Context, jobID int64) ([]model.RoomAssignment, error)
	InsertRoomAssignments(ctx context.Context, assignments []model.RoomAssignment) error
}

// Validate checks that every unit exists in the home and that none is repeated
func Validate(home *model.Home, units []model.Unit) error {
	seen := make(map[model.Unit]bool, len(units))
	for _, u := range units {
		if !u.Type.IsValid() {
			return fmt.Errorf("%w: unknown unit type %q", ErrInvalidUnit, u.Type)
		}
		if u.Number < 1 {
			return fmt.Errorf("%w: %s number must be positive, got %d", ErrInvalidUnit, u.Type, u.Number)
		}
		if home != nil {
			switch u.Type {
			case model.UnitBedroom:
				if u.Number > home.Beds {
					return fmt.Errorf("%w: bedroom %d but home has %d", ErrInvalidUnit, u.Number, home.Beds)
				}
			case model.UnitBathroom:
				if u.Number > home.Baths {
					return fmt.Errorf("%w: bathroom %d but home has %d", ErrInvalidUnit, u.Number, home.Baths)
				}
			}
		}

		key := model.Unit{Type: u.Type, Number: u.Number}
		if seen[key] {
			return fmt.Errorf("%w: %s %d requested twice", ErrInvalidUnit, u.Type, u.Number)
		}
		seen[key] = true
	}
	return nil
}

// Allocate binds units to a worker within a job.
// Units already held by anyone in the job are rejected, and the unique
// (job, type, number) rule in the store rejects any concurrent writer that
// slipped past the read.
func Allocate(ctx context.Context, store Store, job *model.Job, home *model.Home, workerID int64, units []model.Unit) ([]model.RoomAssignment, error) {
	if len(units) == 0 {
		return []model.RoomAssignment{}, nil
	}
	if err := Validate(home, units); err != nil {
		return nil, err
	}

	existing, err := store.ListRoomAssignments(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list room assignments: %w", err)
	}

	taken := make(map[model.Unit]int64, len(existing))
	for _, a := range existing {
		taken[model.Unit{Type: a.Unit.Type, Number: a.Unit.Number}] = a.WorkerID
	}

	assignments := make([]model.RoomAssignment, 0, len(units))
	for _, u := range units {
		if holder, ok := taken[model.Unit{Type: u.Type, Number: u.Number}]; ok {
			return nil, fmt.Errorf("%w: %s %d is held by worker %d", ErrUnitTaken, u.Type, u.Number, holder)
		}
		label := u.Label
		if label == "" {
			label = DefaultLabel(u)
		}
		assignments = append(assignments, model.RoomAssignment{
			JobID:    job.ID,
			WorkerID: workerID,
			Unit:     model.Unit{Type: u.Type, Number: u.Number, Label: label},
		})
	}

	if err := store.InsertRoomAssignments(ctx, assignments); err != nil {
		if errors.Is(err, db.ErrConflict) {
			return nil, fmt.Errorf("%w: %v", ErrUnitTaken, err)
		}
		return nil, fmt.Errorf("failed to insert room assignments: %w", err)
	}

	return assignments, nil
}

// DefaultLabel names a unit for display, e.g. "Bedroom 2"
func DefaultLabel(u model.Unit) string {
	var name string
	switch u.Type {
	case model.UnitBedroom:
		name = "Bedroom"
	case model.UnitBathroom:
		name = "Bathroom"
	case model.UnitKitchen:
		name = "Kitchen"
	case model.UnitLiving:
		name = "Living area"
	default:
		name = "Room"
	}
	return fmt.Sprintf("%s %d", name, u.Number)
}
