package world

import "math"

// InClassThreshold is the per-axis tolerance, in degrees, for being at a department.
const InClassThreshold = 0.0002

// Classify derives a status from the agent's position and its active schedule entry.
// No entry means Free. An entry whose department can't be resolved is compared
// against the origin, which always reads as Absent for a campus location.
func Classify(pos LatLng, entry *ScheduleEntry, ref *ReferenceData) Status {
	if entry == nil {
		return StatusFree
	}
	expected, err := ref.Zone(entry.Department)
	if err != nil {
		expected = LatLng{}
	}
	if math.Abs(expected.Lat-pos.Lat) < InClassThreshold && math.Abs(expected.Lng-pos.Lng) < InClassThreshold {
		return StatusInClass
	}
	return StatusAbsent
}
