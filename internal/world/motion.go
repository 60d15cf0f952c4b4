package world

const (
	// ApproachFactor is the share of the remaining distance covered per tick.
	ApproachFactor = 0.1
	// JitterMagnitude is the width of the idle perturbation interval, centred on zero.
	JitterMagnitude = 0.00001
)

// RandSource yields uniform values in [0, 1).
type RandSource interface {
	Float64() float64
}

// Target resolves where an agent should be heading for the given schedule entry.
// It returns nil when there is no entry; an entry naming an unknown department
// returns nil together with ErrUnknownZone.
func Target(ref *ReferenceData, entry *ScheduleEntry) (*LatLng, error) {
	if entry == nil {
		return nil, nil
	}
	loc, err := ref.Zone(entry.Department)
	if err != nil {
		return nil, err
	}
	return &loc, nil
}

// Step computes the next position. With a target the agent closes ApproachFactor
// of the gap on each axis, so it converges without ever landing exactly on it.
// Without one it drifts by an independent jitter on each axis.
func Step(pos LatLng, target *LatLng, rng RandSource) LatLng {
	if target != nil {
		return LatLng{
			Lat: pos.Lat + (target.Lat-pos.Lat)*ApproachFactor,
			Lng: pos.Lng + (target.Lng-pos.Lng)*ApproachFactor,
		}
	}
	return LatLng{
		Lat: pos.Lat + jitter(rng),
		Lng: pos.Lng + jitter(rng),
	}
}

func jitter(rng RandSource) float64 {
	return (rng.Float64() - 0.5) * JitterMagnitude
}
