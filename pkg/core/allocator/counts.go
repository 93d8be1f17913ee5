package allocator

import "github.com/jakechorley/teamclean/pkg/core/model"

// CountByType tallies assignments per unit type
func CountByType(assignments []model.RoomAssignment) map[model.UnitType]int {
	counts := make(map[model.UnitType]int)
	for _, a := range assignments {
		counts[a.Unit.Type]++
	}
	return counts
}

// ForWorker filters assignments down to one worker
func ForWorker(assignments []model.RoomAssignment, workerID int64) []model.RoomAssignment {
	filtered := make([]model.RoomAssignment, 0)
	for _, a := range assignments {
		if a.WorkerID == workerID {
			filtered = append(filtered, a)
		}
	}
	return filtered
}

// SupplyKit is the consumables a worker should bring for their rooms
type SupplyKit struct {
	Cloths          int  `json:"cloths"`
	BathroomCleaner int  `json:"bathroomCleaner"`
	Degreaser       int  `json:"degreaser"`
	BinBags         int  `json:"binBags"`
	VacuumRequired  bool `json:"vacuumRequired"`
}

// SuppliesFor estimates the supply kit from per-type room counts
func SuppliesFor(counts map[model.UnitType]int) SupplyKit {
	var kit SupplyKit
	total := 0
	for unitType, n := range counts {
		total += n
		switch unitType {
		case model.UnitBathroom:
			kit.Cloths += 2 * n
			kit.BathroomCleaner += n
		case model.UnitKitchen:
			kit.Cloths += 2 * n
			kit.Degreaser += n
		case model.UnitBedroom, model.UnitLiving:
			kit.Cloths += n
			kit.VacuumRequired = true
		default:
			kit.Cloths += n
		}
	}
	kit.BinBags = total
	return kit
}
