// Package query serves read views over the agent registry and accepts manual overrides.
package query

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/nidhogg/faculty-map/internal/world"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrMalformedInput = errors.New("malformed input")
)

// LocationUpdated is the acknowledgement returned for every accepted update.
const LocationUpdated = "Location updated"

// Match is a search hit together with a readable description of where the agent is.
type Match struct {
	world.Agent
	DepartmentDescription string `json:"departmentDescription"`
}

// UpdateRequest is a manual position/status override.
type UpdateRequest struct {
	ID       string        `json:"id"`
	Location *world.LatLng `json:"location"`
	Status   world.Status  `json:"status"`
}

// Ack acknowledges an update. Applied is false when the ID was unknown.
type Ack struct {
	Message string `json:"message"`
	Applied bool   `json:"-"`
}

// Service is the read side of the tracker.
type Service struct {
	registry *world.Registry
	zones    []world.Zone
	now      func() time.Time
	logger   *zap.Logger
}

// NewService creates a query service. now supplies LastUpdated for manual updates.
func NewService(registry *world.Registry, zones []world.Zone, now func() time.Time, logger *zap.Logger) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		registry: registry,
		zones:    zones,
		now:      now,
		logger:   logger,
	}
}

// ListAll returns every agent in registry order.
func (s *Service) ListAll() []world.Agent {
	return s.registry.List()
}

// Get returns a single agent.
func (s *Service) Get(id string) (world.Agent, error) {
	a, ok := s.registry.Get(id)
	if !ok {
		return world.Agent{}, fmt.Errorf("agent %s: %w", id, ErrNotFound)
	}
	return a, nil
}

// FindByName returns the first agent whose name contains q, ignoring case.
// Only an empty q is rejected; whitespace is matched as given.
func (s *Service) FindByName(q string) (Match, error) {
	if q == "" {
		return Match{}, fmt.Errorf("missing search query: %w", ErrMalformedInput)
	}
	q = strings.ToLower(q)

	a, ok := lo.Find(s.registry.List(), func(a world.Agent) bool {
		return strings.Contains(strings.ToLower(a.Name), q)
	})
	if !ok {
		return Match{}, fmt.Errorf("no agent matching %q: %w", q, ErrNotFound)
	}
	return Match{
		Agent:                 a,
		DepartmentDescription: world.DescribeLocation(a.Location, s.zones),
	}, nil
}

// ApplyExternalUpdate validates and applies a manual override. A well-formed
// request for an unknown ID is acknowledged without touching the registry.
func (s *Service) ApplyExternalUpdate(req UpdateRequest) (Ack, error) {
	if err := validate(req); err != nil {
		return Ack{}, err
	}
	applied := s.registry.ApplyExternalUpdate(req.ID, *req.Location, req.Status, s.now())
	if applied {
		s.logger.Info("manual location update",
			zap.String("agent", req.ID),
			zap.Stringer("location", *req.Location),
			zap.String("status", string(req.Status)))
	}
	return Ack{Message: LocationUpdated, Applied: applied}, nil
}

func validate(req UpdateRequest) error {
	switch {
	case strings.TrimSpace(req.ID) == "":
		return fmt.Errorf("id is required: %w", ErrMalformedInput)
	case req.Location == nil:
		return fmt.Errorf("location is required: %w", ErrMalformedInput)
	case !req.Location.Valid():
		return fmt.Errorf("location %s out of range: %w", *req.Location, ErrMalformedInput)
	case !req.Status.Valid():
		return fmt.Errorf("unknown status %q: %w", req.Status, ErrMalformedInput)
	}
	return nil
}
