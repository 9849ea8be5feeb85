package queue

import (
	"strings"

	"github.com/google/uuid"

	"github.com/clinicflow/clinicflow/internal/domain/identity"
)

// PickDoctor selects the least-loaded available doctor for a new admission.
// load maps doctor ID to the count of active queue entries assigned to them.
// When department is non-empty, doctors whose department contains it
// (case-insensitive) are preferred; if none match, selection repeats over all
// available doctors. Ties break on the smaller UUID string so the choice is
// deterministic for any given input.
//
// Returns nil when no doctor is available at all; the entry then waits
// unassigned.
func PickDoctor(doctors []*identity.Doctor, load map[uuid.UUID]int, department string) *identity.Doctor {
	department = strings.ToLower(strings.TrimSpace(department))

	if best := pickDoctorFiltered(doctors, load, department); best != nil {
		return best
	}
	if department == "" {
		return nil
	}
	return pickDoctorFiltered(doctors, load, "")
}

func pickDoctorFiltered(doctors []*identity.Doctor, load map[uuid.UUID]int, department string) *identity.Doctor {
	var best *identity.Doctor
	for _, d := range doctors {
		if !d.Active || !d.IsAvailable {
			continue
		}
		if department != "" && !strings.Contains(strings.ToLower(d.Department), department) {
			continue
		}
		if best == nil {
			best = d
			continue
		}
		switch {
		case load[d.ID] < load[best.ID]:
			best = d
		case load[d.ID] == load[best.ID] && d.ID.String() < best.ID.String():
			best = d
		}
	}
	return best
}
