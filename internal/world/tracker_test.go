package world

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingObserver struct {
	mu      sync.Mutex
	reports []TickReport
}

func (o *recordingObserver) AfterTick(_ context.Context, r TickReport) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reports = append(o.reports, r)
}

func (o *recordingObserver) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.reports)
}

// panicOnce panics on its first draw and behaves afterwards.
type panicOnce struct{ fired bool }

func (p *panicOnce) Float64() float64 {
	if !p.fired {
		p.fired = true
		panic("rng exploded")
	}
	return 0.5
}

func newTestTracker(t *testing.T, ref *ReferenceData, rng RandSource) (*Tracker, *Registry) {
	t.Helper()
	reg := newTestRegistry(t, ref)
	tr := NewTracker(reg, ref, rng, time.UTC, zap.NewNop())
	t.Cleanup(tr.Close)
	return tr, reg
}

func TestTrackerTickMovesAndClassifies(t *testing.T) {
	ref := testRef()
	tr, reg := newTestTracker(t, ref, fixedRand(0.5))
	obs := &recordingObserver{}
	tr.AddObserver(obs)

	report := tr.Tick(monday10)
	assert.Equal(t, 3, report.Processed)
	assert.Zero(t, report.Failed)
	tr.Close()
	assert.Equal(t, 1, obs.count())

	// T001 is scheduled in Applied Science, 0.0008/0.0006 away: moves 10% and is Absent.
	a, _ := reg.Get("T001")
	assert.InDelta(t, 29.7542+0.00008, a.Location.Lat, 1e-10)
	assert.InDelta(t, 79.4274+0.00006, a.Location.Lng, 1e-10)
	assert.Equal(t, StatusAbsent, a.Status)
	assert.Equal(t, monday10, a.LastUpdated)

	// T002 starts on Chemical, its first matching entry.
	b, _ := reg.Get("T002")
	assert.Equal(t, StatusInClass, b.Status)

	// T003 has no class: centred jitter leaves it in place and Free.
	c, _ := reg.Get("T003")
	assert.Equal(t, LatLng{29.7545, 79.4269}, c.Location)
	assert.Equal(t, StatusFree, c.Status)

	require.Len(t, report.Changes, 2)
	assert.Equal(t, "T001", report.Changes[0].AgentID)
	assert.Equal(t, StatusFree, report.Changes[0].From)
	assert.Equal(t, StatusAbsent, report.Changes[0].To)
	assert.NotEmpty(t, report.Changes[0].ID)
	assert.Equal(t, "T002", report.Changes[1].AgentID)
}

func TestTrackerAgentArrivesOverTicks(t *testing.T) {
	tr, reg := newTestTracker(t, testRef(), fixedRand(0.5))

	var status Status
	for i := 0; i < 60; i++ {
		tr.Tick(monday10.Add(time.Duration(i) * time.Second))
		a, _ := reg.Get("T001")
		status = a.Status
		if status == StatusInClass {
			break
		}
	}
	assert.Equal(t, StatusInClass, status)
}

func TestTrackerUsesLocationForScheduleLookup(t *testing.T) {
	ref := testRef()
	reg := newTestRegistry(t, ref)
	// 10:00 UTC is 15:30 in Kolkata, outside every scheduled hour.
	kolkata := time.FixedZone("IST", 5*3600+1800)
	tr := NewTracker(reg, ref, fixedRand(0.5), kolkata, zap.NewNop())

	tr.Tick(monday10)
	for _, a := range reg.List() {
		assert.Equal(t, StatusFree, a.Status, a.ID)
	}
}

func TestTrackerUnknownZoneDoesNotBlockOthers(t *testing.T) {
	ref := testRef()
	ref.Schedule = append([]ScheduleEntry{
		{AgentID: "T003", Day: time.Monday, Hour: 10, Department: "Mechanical"},
	}, ref.Schedule...)
	tr, reg := newTestTracker(t, ref, fixedRand(1))

	report := tr.Tick(monday10)
	assert.Equal(t, 3, report.Processed)
	assert.Zero(t, report.Failed)

	// T003 idles (jitter) and is Absent against the origin fallback.
	c, _ := reg.Get("T003")
	assert.Equal(t, StatusAbsent, c.Status)
	assert.NotEqual(t, LatLng{29.7545, 79.4269}, c.Location)

	a, _ := reg.Get("T001")
	assert.Equal(t, StatusAbsent, a.Status)
	assert.NotEqual(t, LatLng{29.7542, 79.4274}, a.Location)
	b, _ := reg.Get("T002")
	assert.Equal(t, StatusInClass, b.Status)
}

func TestTrackerIsolatesPanickingAgent(t *testing.T) {
	ref := testRef()
	ref.Schedule = nil // everyone idles, so everyone draws from the rng
	tr, reg := newTestTracker(t, ref, &panicOnce{})
	before, _ := reg.Get("T001")

	report := tr.Tick(monday10.Add(time.Minute))
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 2, report.Processed)

	after, _ := reg.Get("T001")
	assert.Equal(t, before, after, "failed agent must be left as it was")

	for _, id := range []string{"T002", "T003"} {
		a, _ := reg.Get(id)
		assert.Equal(t, monday10.Add(time.Minute), a.LastUpdated, id)
	}
}

func TestTrackerHaltsOnCorruptRegistry(t *testing.T) {
	tr, reg := newTestTracker(t, testRef(), fixedRand(0.5))
	var fatalErr error
	tr.SetFatalHandler(func(err error) { fatalErr = err })
	obs := &recordingObserver{}
	tr.AddObserver(obs)

	delete(reg.index, "T001")
	report := tr.Tick(monday10)
	assert.ErrorIs(t, fatalErr, ErrRegistryCorrupt)
	assert.Zero(t, report.Processed)

	fatalErr = nil
	tr.Tick(monday10)
	assert.NoError(t, fatalErr, "halted tracker should not report again")
	tr.Close()
	assert.Zero(t, obs.count())
}

// blockingObserver holds every report until release is closed.
type blockingObserver struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	recordingObserver
}

func newBlockingObserver() *blockingObserver {
	return &blockingObserver{started: make(chan struct{}), release: make(chan struct{})}
}

func (o *blockingObserver) AfterTick(ctx context.Context, r TickReport) {
	o.once.Do(func() { close(o.started) })
	select {
	case <-o.release:
	case <-ctx.Done():
	}
	o.recordingObserver.AfterTick(ctx, r)
}

func TestTrackerSlowObserverDoesNotDelayTicks(t *testing.T) {
	tr, _ := newTestTracker(t, testRef(), fixedRand(0.5))
	slow := newBlockingObserver()
	fast := &recordingObserver{}
	tr.AddObserver(slow)
	tr.AddObserver(fast)

	tr.Tick(monday10)
	<-slow.started

	begin := time.Now()
	report := tr.Tick(monday10.Add(time.Second))
	assert.Less(t, time.Since(begin), 500*time.Millisecond, "tick waited on an observer")
	assert.Equal(t, 3, report.Processed)
	require.Eventually(t, func() bool { return fast.count() == 2 }, time.Second, 5*time.Millisecond)

	close(slow.release)
	tr.Close()
	assert.Equal(t, 2, slow.count())
}

func TestTrackerDropsReportsForStalledObserver(t *testing.T) {
	tr, _ := newTestTracker(t, testRef(), fixedRand(0.5))
	slow := newBlockingObserver()
	tr.AddObserver(slow)

	tr.Tick(monday10)
	<-slow.started
	for i := 1; i <= observerQueueSize+5; i++ {
		tr.Tick(monday10.Add(time.Duration(i) * time.Second))
	}

	close(slow.release)
	tr.Close()
	// One report in flight plus a full queue; the rest were dropped.
	assert.Equal(t, observerQueueSize+1, slow.count())

	// Ticks after Close still run but notify nobody.
	report := tr.Tick(monday10.Add(time.Hour))
	assert.Equal(t, 3, report.Processed)
	assert.Equal(t, observerQueueSize+1, slow.count())
}

func TestWorldClockDrivesListeners(t *testing.T) {
	clock := NewWorldClock(5*time.Millisecond, 60, zap.NewNop())
	start := clock.WorldTime()
	obs := &recordingObserver{}
	tr, _ := newTestTracker(t, testRef(), fixedRand(0.5))
	tr.AddObserver(obs)
	clock.AddListener(tr)

	clock.Start(context.Background())
	require.Eventually(t, func() bool { return obs.count() >= 3 }, 2*time.Second, 5*time.Millisecond)
	clock.Stop()

	ticks := clock.Ticks()
	assert.GreaterOrEqual(t, ticks, uint64(3))
	assert.Equal(t, start.Add(time.Duration(ticks)*300*time.Millisecond), clock.WorldTime())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, ticks, clock.Ticks(), "no ticks after Stop")
	clock.Stop()
}

func TestWorldClockStopsWithContext(t *testing.T) {
	clock := NewWorldClock(time.Millisecond, 1, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	clock.Start(ctx)
	cancel()
	clock.Stop()
	n := clock.Ticks()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, n, clock.Ticks())
}

func TestWorldClockSpeedAndTime(t *testing.T) {
	clock := NewWorldClock(time.Second, 1, zap.NewNop())
	clock.SetSpeed(2.5)
	assert.Equal(t, 2.5, clock.Speed())
	clock.SetWorldTime(monday10)
	assert.Equal(t, monday10, clock.WorldTime())
	assert.Equal(t, time.Second, clock.Interval())
}
