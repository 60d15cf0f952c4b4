package world

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StatusChange records one agent moving from one status to another during a tick.
type StatusChange struct {
	ID       string    `json:"id"`
	AgentID  string    `json:"agent_id"`
	Name     string    `json:"name"`
	From     Status    `json:"from"`
	To       Status    `json:"to"`
	Location LatLng    `json:"location"`
	At       time.Time `json:"at"`
}

// TickReport summarises one tick.
type TickReport struct {
	WorldTime time.Time
	Processed int
	Failed    int
	Changes   []StatusChange
	Duration  time.Duration
}

// TickObserver is notified after every completed tick.
type TickObserver interface {
	AfterTick(ctx context.Context, report TickReport)
}

const (
	// observerQueueSize bounds the reports waiting for one observer; further reports are dropped.
	observerQueueSize = 16
	observerTimeout   = 5 * time.Second
)

// observerQueue feeds one observer from its own goroutine so that slow
// observers (network publishers) never hold up a tick.
type observerQueue struct {
	observer TickObserver
	reports  chan TickReport
}

// Tracker is the ClockListener that moves and classifies every agent each tick.
type Tracker struct {
	registry *Registry
	ref      *ReferenceData
	rng      RandSource
	loc      *time.Location
	queues   []*observerQueue
	wg       sync.WaitGroup
	closed   bool
	fatal    func(error)
	halted   bool
	tickMu   sync.Mutex // serialises clock ticks with forced ticks
	logger   *zap.Logger
}

// NewTracker wires the tracker to its registry and reference tables.
// Schedule lookups use loc to derive the weekday and hour; nil means time.Local.
func NewTracker(registry *Registry, ref *ReferenceData, rng RandSource, loc *time.Location, logger *zap.Logger) *Tracker {
	if loc == nil {
		loc = time.Local
	}
	return &Tracker{
		registry: registry,
		ref:      ref,
		rng:      rng,
		loc:      loc,
		logger:   logger,
		fatal: func(err error) {
			logger.Error("tracker halted", zap.Error(err))
		},
	}
}

// AddObserver registers a post-tick observer. Reports are delivered in tick
// order on a goroutine owned by the observer; Close stops it.
func (t *Tracker) AddObserver(o TickObserver) {
	t.tickMu.Lock()
	defer t.tickMu.Unlock()
	if t.closed {
		return
	}
	q := &observerQueue{observer: o, reports: make(chan TickReport, observerQueueSize)}
	t.queues = append(t.queues, q)
	t.wg.Add(1)
	go t.drain(q)
}

// Close stops accepting reports and waits for queued ones to be delivered.
func (t *Tracker) Close() {
	t.tickMu.Lock()
	if t.closed {
		t.tickMu.Unlock()
		return
	}
	t.closed = true
	for _, q := range t.queues {
		close(q.reports)
	}
	t.tickMu.Unlock()
	t.wg.Wait()
}

func (t *Tracker) drain(q *observerQueue) {
	defer t.wg.Done()
	for report := range q.reports {
		t.notify(q.observer, report)
	}
}

func (t *Tracker) notify(o TickObserver, report TickReport) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("tick observer panicked",
				zap.String("observer", fmt.Sprintf("%T", o)),
				zap.Any("panic", r))
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), observerTimeout)
	defer cancel()
	o.AfterTick(ctx, report)
}

// dispatch hands report to every observer without waiting. Caller holds tickMu.
func (t *Tracker) dispatch(report TickReport) {
	if t.closed {
		return
	}
	for _, q := range t.queues {
		select {
		case q.reports <- report:
		default:
			t.logger.Warn("tick observer falling behind, report dropped",
				zap.String("observer", fmt.Sprintf("%T", q.observer)),
				zap.Time("world_time", report.WorldTime))
		}
	}
}

// SetFatalHandler sets the callback invoked when the registry is found corrupt.
func (t *Tracker) SetFatalHandler(fn func(error)) {
	t.tickMu.Lock()
	defer t.tickMu.Unlock()
	t.fatal = fn
}

// OnTick implements ClockListener.
func (t *Tracker) OnTick(worldTime time.Time) {
	t.Tick(worldTime)
}

// Tick runs motion and classification for every agent at worldTime.
// A failure for one agent is logged and does not stop the others.
// Observers receive the report asynchronously.
func (t *Tracker) Tick(worldTime time.Time) TickReport {
	t.tickMu.Lock()
	defer t.tickMu.Unlock()

	report := TickReport{WorldTime: worldTime}
	if t.halted {
		return report
	}
	if err := t.registry.Verify(); err != nil {
		t.halted = true
		t.fatal(err)
		return report
	}

	start := time.Now()
	for _, id := range t.registry.IDs() {
		change, err := t.stepAgent(id, worldTime)
		if err != nil {
			report.Failed++
			t.logger.Warn("agent tick failed",
				zap.String("agent", id),
				zap.Error(err))
			continue
		}
		report.Processed++
		if change != nil {
			report.Changes = append(report.Changes, *change)
			t.logger.Debug("agent status changed",
				zap.String("agent", id),
				zap.String("from", string(change.From)),
				zap.String("to", string(change.To)))
		}
	}
	report.Duration = time.Since(start)

	t.dispatch(report)
	return report
}

func (t *Tracker) stepAgent(id string, worldTime time.Time) (change *StatusChange, err error) {
	defer func() {
		if r := recover(); r != nil {
			change = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	local := worldTime.In(t.loc)
	found, err := t.registry.Mutate(id, func(a *Agent) error {
		entry := t.ref.ActiveEntry(a.ID, local)
		target, zerr := Target(t.ref, entry)
		if zerr != nil {
			if !errors.Is(zerr, ErrUnknownZone) {
				return zerr
			}
			t.logger.Debug("scheduled department has no coordinates, idling",
				zap.String("agent", a.ID),
				zap.String("department", entry.Department))
		}

		a.Location = Step(a.Location, target, t.rng)
		prev := a.Status
		a.Status = Classify(a.Location, entry, t.ref)
		a.LastUpdated = worldTime

		if prev != a.Status {
			change = &StatusChange{
				ID:       uuid.New().String(),
				AgentID:  a.ID,
				Name:     a.Name,
				From:     prev,
				To:       a.Status,
				Location: a.Location,
				At:       worldTime,
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("agent %s vanished mid-tick: %w", id, ErrRegistryCorrupt)
	}
	return change, nil
}
