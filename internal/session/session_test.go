package session

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/yonda-yonda/tle-with-mapbox/internal/render"
	"github.com/yonda-yonda/tle-with-mapbox/internal/tle"
	"github.com/yonda-yonda/tle-with-mapbox/internal/transform"
)

var testStart = time.Date(2025, 5, 18, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock fires every After immediately, or never when blocked.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	delays []time.Duration
	block  bool
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delays = append(c.delays, d)
	c.now = c.now.Add(d)
	ch := make(chan time.Time, 1)
	if !c.block {
		ch <- c.now
	}
	return ch
}

func (c *fakeClock) total() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var sum time.Duration
	for _, d := range c.delays {
		sum += d
	}
	return sum
}

// equatorPropagator drifts east along the equator at 4°/min with a 90 minute period.
type equatorPropagator struct {
	start     time.Time
	lon0      float64
	failAfter time.Duration
}

func (p equatorPropagator) Propagate(t time.Time) (transform.PositionTEME, error) {
	d := t.Sub(p.start)
	if p.failAfter > 0 && d >= p.failAfter {
		return transform.PositionTEME{}, errors.New("decayed")
	}
	theta := (p.lon0+4*d.Minutes())*math.Pi/180 + transform.GMST(t)
	return transform.PositionTEME{
		X: 7000 * math.Cos(theta), Y: 7000 * math.Sin(theta),
		VX: -7.5 * math.Sin(theta), VY: 7.5 * math.Cos(theta),
	}, nil
}

func (p equatorPropagator) MeanMotion() float64 { return 2 * math.Pi / 90 }

// reversingPropagator drifts east at 4°/min for the first 90 minutes, then
// turns around and drifts west.
type reversingPropagator struct {
	start time.Time
	lon0  float64
}

func (p reversingPropagator) Propagate(t time.Time) (transform.PositionTEME, error) {
	m := t.Sub(p.start).Minutes()
	lon, dir := p.lon0+4*m, 1.0
	if m >= 90 {
		lon, dir = p.lon0+360-4*(m-90), -1.0
	}
	theta := lon*math.Pi/180 + transform.GMST(t)
	return transform.PositionTEME{
		X: 7000 * math.Cos(theta), Y: 7000 * math.Sin(theta),
		VX: -7.5 * dir * math.Sin(theta), VY: 7.5 * dir * math.Cos(theta),
	}, nil
}

func (p reversingPropagator) MeanMotion() float64 { return 2 * math.Pi / 90 }

// recordingSurface captures every render call.
type recordingSurface struct {
	mu      sync.Mutex
	added   []string
	removed []string
	lines   []*geojson.FeatureCollection
	points  []orb.Point
}

func (r *recordingSurface) AddOverlay(id string, kind render.Kind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.added = append(r.added, id)
	return nil
}

func (r *recordingSurface) SetLine(id string, fc *geojson.FeatureCollection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, fc)
	return nil
}

func (r *recordingSurface) SetPoint(id string, p orb.Point) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.points = append(r.points, p)
	return nil
}

func (r *recordingSurface) RemoveOverlay(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, id)
}

func newTestSession(t *testing.T, prop equatorPropagator, surface render.Surface, clock Clock, cycles int) *Session {
	t.Helper()
	cfg := DefaultConfig()
	cfg.MaxCycles = cycles
	s, err := New("test", tle.Elements{CatalogNumber: 99999}, prop, surface, cfg, clock, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish")
	}
}

func TestSessionRunsCycles(t *testing.T) {
	clock := newFakeClock(testStart)
	surface := &recordingSurface{}
	s := newTestSession(t, equatorPropagator{start: testStart, lon0: 170}, surface, clock, 2)

	if s.Rotation().String() != "counterclockwise" {
		t.Errorf("Rotation = %v, want counterclockwise", s.Rotation())
	}
	if want := []string{"line_test", "point_test"}; len(surface.added) != 2 || surface.added[0] != want[0] || surface.added[1] != want[1] {
		t.Errorf("overlays added = %v, want %v", surface.added, want)
	}

	s.Start(t.Context())
	waitDone(t, s)

	if st := s.State(); st != StateStopped {
		t.Errorf("State = %v, want stopped", st)
	}
	info := s.Info()
	if info.Cycles != 2 {
		t.Errorf("Cycles = %d, want 2", info.Cycles)
	}
	if want := testStart.Add(90 * time.Minute); !info.PassStart.Equal(want) {
		t.Errorf("second pass start = %v, want %v", info.PassStart, want)
	}

	if len(surface.lines) != 2 {
		t.Fatalf("SetLine calls = %d, want 2", len(surface.lines))
	}
	// Starting at 170° heading east, every pass crosses the anti-meridian once.
	for i, fc := range surface.lines {
		if len(fc.Features) != 2 {
			t.Errorf("pass %d features = %d, want 2", i, len(fc.Features))
		}
	}

	// Markers cover offsets 0..44 minutes of each 90 minute pass.
	if len(surface.points) != 90 {
		t.Errorf("SetPoint calls = %d, want 90", len(surface.points))
	}

	// Each cycle waits FrameDelay × 90 steps / 2 in total.
	if got, want := clock.total(), 2*2250*time.Millisecond; got != want {
		t.Errorf("total wall delay = %v, want %v", got, want)
	}
}

func TestSessionMarkerDelays(t *testing.T) {
	clock := newFakeClock(testStart)
	s := newTestSession(t, equatorPropagator{start: testStart}, &recordingSurface{}, clock, 1)
	s.Start(t.Context())
	waitDone(t, s)

	// Sample 0 is drawn immediately, then one FrameDelay per step, then the
	// remainder of the half-pass wait.
	if len(clock.delays) != 45 {
		t.Fatalf("delays = %d, want 45", len(clock.delays))
	}
	for i, d := range clock.delays {
		if d != 50*time.Millisecond {
			t.Errorf("delay %d = %v, want 50ms", i, d)
		}
	}
}

func TestSessionFailsOnPropagationError(t *testing.T) {
	clock := newFakeClock(testStart)
	surface := &recordingSurface{}
	s := newTestSession(t, equatorPropagator{start: testStart, failAfter: 100 * time.Minute}, surface, clock, 0)

	s.Start(t.Context())
	waitDone(t, s)

	if st := s.State(); st != StateFailed {
		t.Fatalf("State = %v, want failed", st)
	}
	if s.Err() == nil || s.Info().Error == "" {
		t.Error("failed session has no error")
	}
	if s.Info().Cycles != 1 {
		t.Errorf("Cycles = %d, want 1", s.Info().Cycles)
	}
	if len(surface.removed) != 0 {
		t.Errorf("overlays removed on failure: %v", surface.removed)
	}
	if s.Track() == nil {
		t.Error("last track discarded on failure")
	}
}

func TestSessionStop(t *testing.T) {
	clock := newFakeClock(testStart)
	clock.block = true
	s := newTestSession(t, equatorPropagator{start: testStart}, &recordingSurface{}, clock, 0)

	s.Start(t.Context())
	s.Stop()

	if st := s.State(); st != StateStopped {
		t.Errorf("State = %v, want stopped", st)
	}
	if !s.State().Terminal() {
		t.Error("stopped state not terminal")
	}
}

// TestSessionKeepsRotation verifies the rotation sense detected at creation
// drives the split direction of every later pass, even after the motion reverses.
func TestSessionKeepsRotation(t *testing.T) {
	clock := newFakeClock(testStart)
	surface := &recordingSurface{}
	cfg := DefaultConfig()
	cfg.MaxCycles = 2
	s, err := New("test", tle.Elements{CatalogNumber: 99999}, reversingPropagator{start: testStart, lon0: 170}, surface, cfg, clock, testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Start(t.Context())
	waitDone(t, s)

	if s.Rotation().String() != "counterclockwise" {
		t.Errorf("Rotation = %v, want counterclockwise", s.Rotation())
	}
	if len(surface.lines) != 2 {
		t.Fatalf("SetLine calls = %d, want 2", len(surface.lines))
	}
	// A counterclockwise split closes the first segment at +180°, a clockwise
	// one at -180°.
	for i, fc := range surface.lines {
		if len(fc.Features) < 2 {
			t.Fatalf("pass %d features = %d, want a split", i, len(fc.Features))
		}
		ls, ok := fc.Features[0].Geometry.(orb.LineString)
		if !ok || len(ls) == 0 {
			t.Fatalf("pass %d first feature is %T", i, fc.Features[0].Geometry)
		}
		if end := ls[len(ls)-1].Lon(); end != 180 {
			t.Errorf("pass %d first segment ends at lon %v, want 180", i, end)
		}
	}
	if s.Info().Rotation != "counterclockwise" {
		t.Errorf("Info.Rotation = %q after reversal", s.Info().Rotation)
	}
}

func TestSessionStopBeforeStart(t *testing.T) {
	clock := newFakeClock(testStart)
	surface := &recordingSurface{}
	s := newTestSession(t, equatorPropagator{start: testStart}, surface, clock, 1)

	s.Stop()
	s.Start(t.Context())
	waitDone(t, s)

	if st := s.State(); st != StateStopped {
		t.Errorf("State = %v, want stopped", st)
	}
	if len(surface.lines) != 0 {
		t.Errorf("SetLine calls = %d after Stop, want 0", len(surface.lines))
	}
	s.Stop()
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateIdle:      "idle",
		StateSampling:  "sampling",
		StateRendering: "rendering",
		StateScheduled: "scheduled",
		StateStopped:   "stopped",
		StateFailed:    "failed",
		State(42):      "state(42)",
	}
	for st, want := range tests {
		if got := st.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(st), got, want)
		}
	}
}
