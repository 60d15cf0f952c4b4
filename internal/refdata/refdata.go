// Package refdata loads the campus reference tables: seed teachers, department
// coordinates and weekly class schedules.
package refdata

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/samber/lo"
	"gopkg.in/yaml.v2"

	"github.com/nidhogg/faculty-map/internal/world"
)

//go:embed default.yaml
var defaultYAML []byte

type file struct {
	Agents      []agentDoc      `yaml:"agents"`
	Departments []departmentDoc `yaml:"departments"`
	Schedules   []scheduleDoc   `yaml:"schedules"`
}

type agentDoc struct {
	ID       string    `yaml:"id"`
	Name     string    `yaml:"name"`
	Location []float64 `yaml:"location"`
}

type departmentDoc struct {
	Name     string    `yaml:"name"`
	Location []float64 `yaml:"location"`
}

type scheduleDoc struct {
	ID      string     `yaml:"id"`
	Classes []classDoc `yaml:"classes"`
}

type classDoc struct {
	Day  string `yaml:"day"`
	Hour int    `yaml:"hour"`
	Dept string `yaml:"dept"`
}

// Default returns the reference tables bundled with the binary.
func Default() (*world.ReferenceData, error) {
	return Parse(defaultYAML)
}

// Load reads reference tables from a YAML file. An empty path yields Default.
func Load(path string) (*world.ReferenceData, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reference data %s: %w", path, err)
	}
	ref, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("reference data %s: %w", path, err)
	}
	return ref, nil
}

// Parse decodes and validates YAML reference tables.
func Parse(data []byte) (*world.ReferenceData, error) {
	var f file
	if err := yaml.UnmarshalStrict(data, &f); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	ref := &world.ReferenceData{}
	for _, a := range f.Agents {
		loc, err := toLatLng(a.Location)
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", a.ID, err)
		}
		ref.Agents = append(ref.Agents, world.Agent{ID: a.ID, Name: a.Name, Location: loc})
	}
	for _, d := range f.Departments {
		loc, err := toLatLng(d.Location)
		if err != nil {
			return nil, fmt.Errorf("department %s: %w", d.Name, err)
		}
		ref.Zones = append(ref.Zones, world.Zone{Name: d.Name, Location: loc})
	}
	for _, s := range f.Schedules {
		for _, c := range s.Classes {
			day, err := ParseWeekday(c.Day)
			if err != nil {
				return nil, fmt.Errorf("schedule %s: %w", s.ID, err)
			}
			ref.Schedule = append(ref.Schedule, world.ScheduleEntry{
				AgentID:    s.ID,
				Day:        day,
				Hour:       c.Hour,
				Department: c.Dept,
			})
		}
	}

	if err := ref.Validate(); err != nil {
		return nil, err
	}
	return ref, nil
}

var weekdays = lo.SliceToMap([]time.Weekday{
	time.Sunday, time.Monday, time.Tuesday, time.Wednesday,
	time.Thursday, time.Friday, time.Saturday,
}, func(d time.Weekday) (string, time.Weekday) {
	return strings.ToLower(d.String()), d
})

// ParseWeekday accepts full English weekday names in any case.
func ParseWeekday(s string) (time.Weekday, error) {
	d, ok := weekdays[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("unknown weekday %q", s)
	}
	return d, nil
}

func toLatLng(v []float64) (world.LatLng, error) {
	if len(v) != 2 {
		return world.LatLng{}, fmt.Errorf("location needs [lat, lng], got %d values", len(v))
	}
	p := world.LatLng{Lat: v[0], Lng: v[1]}
	if !p.Valid() {
		return world.LatLng{}, fmt.Errorf("location %s out of range", p)
	}
	return p, nil
}
