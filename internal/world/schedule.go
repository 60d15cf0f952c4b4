package world

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnknownZone is returned when a schedule entry names a department with no coordinates.
var ErrUnknownZone = errors.New("unknown zone")

// ScheduleEntry says where a teacher is expected to be during one hour of one weekday.
type ScheduleEntry struct {
	AgentID    string       `json:"agent_id" yaml:"agent_id"`
	Day        time.Weekday `json:"day" yaml:"-"`
	Hour       int          `json:"hour" yaml:"hour"`
	Department string       `json:"department" yaml:"department"`
}

// Zone is a department reference point.
type Zone struct {
	Name     string `json:"name"`
	Location LatLng `json:"location"`
}

// ReferenceData holds the immutable lookup tables the engine reads each tick.
// Slices are ordered; every lookup returns the first match.
type ReferenceData struct {
	Agents   []Agent
	Schedule []ScheduleEntry
	Zones    []Zone
}

// Validate checks entries for obviously broken values. Unknown departments are
// allowed here; the engine falls back for them at tick time.
func (d *ReferenceData) Validate() error {
	for i, e := range d.Schedule {
		if e.AgentID == "" {
			return fmt.Errorf("schedule entry %d: missing agent id", i)
		}
		if e.Hour < 0 || e.Hour > 23 {
			return fmt.Errorf("schedule entry %d (%s): hour %d out of range", i, e.AgentID, e.Hour)
		}
		if e.Day < time.Sunday || e.Day > time.Saturday {
			return fmt.Errorf("schedule entry %d (%s): bad weekday %d", i, e.AgentID, e.Day)
		}
	}
	seen := make(map[string]struct{}, len(d.Zones))
	for _, z := range d.Zones {
		if z.Name == "" {
			return errors.New("zone with empty name")
		}
		if _, dup := seen[z.Name]; dup {
			return fmt.Errorf("duplicate zone %q", z.Name)
		}
		seen[z.Name] = struct{}{}
	}
	return nil
}

// ActiveEntry returns the first schedule entry for agentID matching the weekday and hour of now.
func (d *ReferenceData) ActiveEntry(agentID string, now time.Time) *ScheduleEntry {
	day, hour := now.Weekday(), now.Hour()
	for i := range d.Schedule {
		e := &d.Schedule[i]
		if e.AgentID == agentID && e.Day == day && e.Hour == hour {
			return e
		}
	}
	return nil
}

// Zone resolves a department name to its coordinates.
func (d *ReferenceData) Zone(name string) (LatLng, error) {
	for _, z := range d.Zones {
		if z.Name == name {
			return z.Location, nil
		}
	}
	return LatLng{}, fmt.Errorf("department %q: %w", name, ErrUnknownZone)
}
