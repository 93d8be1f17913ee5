package allocator

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakechorley/teamclean/pkg/core/model"
	"github.com/jakechorley/teamclean/pkg/db"
)

// mockStore implements Store for testing
type mockStore struct {
	existing  []model.RoomAssignment
	inserted  []model.RoomAssignment
	insertErr error
}

func (m *mockStore) ListRoomAssignments(ctx context.Context, jobID int64) ([]model.RoomAssignment, error) {
	return m.existing, nil
}

func (m *mockStore) InsertRoomAssignments(ctx context.Context, assignments []model.RoomAssignment) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.inserted = append(m.inserted, assignments...)
	return nil
}

func testHome() *model.Home {
	return &model.Home{ID: 1, Beds: 3, Baths: 2}
}

func TestAllocate_PersistsUnits(t *testing.T) {
	store := &mockStore{}
	job := &model.Job{ID: 10}

	units := []model.Unit{
		{Type: model.UnitBedroom, Number: 1},
		{Type: model.UnitBathroom, Number: 2, Label: "Ensuite"},
	}

	assignments, err := Allocate(context.Background(), store, job, testHome(), 7, units)
	require.NoError(t, err)
	require.Len(t, assignments, 2)

	assert.Equal(t, int64(10), assignments[0].JobID)
	assert.Equal(t, int64(7), assignments[0].WorkerID)
	assert.Equal(t, "Bedroom 1", assignments[0].Unit.Label)
	assert.Equal(t, "Ensuite", assignments[1].Unit.Label)
	assert.Len(t, store.inserted, 2)
}

func TestAllocate_RejectsUnitHeldInJob(t *testing.T) {
	store := &mockStore{
		existing: []model.RoomAssignment{
			{ID: 1, JobID: 10, WorkerID: 3, Unit: model.Unit{Type: model.UnitBedroom, Number: 2}},
		},
	}

	_, err := Allocate(context.Background(), store, &model.Job{ID: 10}, testHome(), 7, []model.Unit{
		{Type: model.UnitBedroom, Number: 1},
		{Type: model.UnitBedroom, Number: 2},
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnitTaken)
	assert.Empty(t, store.inserted, "no partial allocation")
}

func TestAllocate_ConflictAtWriteTime(t *testing.T) {
	store := &mockStore{insertErr: fmt.Errorf("bedroom 1: %w", db.ErrConflict)}

	_, err := Allocate(context.Background(), store, &model.Job{ID: 10}, testHome(), 7, []model.Unit{
		{Type: model.UnitBedroom, Number: 1},
	})

	assert.ErrorIs(t, err, ErrUnitTaken)
}

func TestAllocate_NoUnits(t *testing.T) {
	store := &mockStore{}
	assignments, err := Allocate(context.Background(), store, &model.Job{ID: 10}, testHome(), 7, nil)
	require.NoError(t, err)
	assert.Empty(t, assignments)
	assert.Empty(t, store.inserted)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		units   []model.Unit
		wantErr bool
	}{
		{"valid mix", []model.Unit{{Type: model.UnitBedroom, Number: 3}, {Type: model.UnitKitchen, Number: 1}}, false},
		{"unknown type", []model.Unit{{Type: "garage", Number: 1}}, true},
		{"zero number", []model.Unit{{Type: model.UnitKitchen, Number: 0}}, true},
		{"bedroom beyond capacity", []model.Unit{{Type: model.UnitBedroom, Number: 4}}, true},
		{"bathroom beyond capacity", []model.Unit{{Type: model.UnitBathroom, Number: 3}}, true},
		{"duplicate in request", []model.Unit{{Type: model.UnitBathroom, Number: 1}, {Type: model.UnitBathroom, Number: 1, Label: "Main"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(testHome(), tt.units)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidUnit)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCountByTypeAndSupplies(t *testing.T) {
	assignments := []model.RoomAssignment{
		{WorkerID: 1, Unit: model.Unit{Type: model.UnitBedroom, Number: 1}},
		{WorkerID: 1, Unit: model.Unit{Type: model.UnitBedroom, Number: 2}},
		{WorkerID: 2, Unit: model.Unit{Type: model.UnitBathroom, Number: 1}},
		{WorkerID: 2, Unit: model.Unit{Type: model.UnitKitchen, Number: 1}},
	}

	counts := CountByType(assignments)
	assert.Equal(t, 2, counts[model.UnitBedroom])
	assert.Equal(t, 1, counts[model.UnitBathroom])
	assert.Equal(t, 1, counts[model.UnitKitchen])
	assert.Equal(t, 0, counts[model.UnitLiving])

	worker2 := ForWorker(assignments, 2)
	assert.Len(t, worker2, 2)

	kit := SuppliesFor(CountByType(worker2))
	assert.Equal(t, 4, kit.Cloths)
	assert.Equal(t, 1, kit.BathroomCleaner)
	assert.Equal(t, 1, kit.Degreaser)
	assert.Equal(t, 2, kit.BinBags)
	assert.False(t, kit.VacuumRequired)
}
