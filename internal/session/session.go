// Package session runs the looping ground-track animation for each added
// satellite: sample a pass, draw it, walk the marker along the first half and
// start the next pass where the previous one ended.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yonda-yonda/tle-with-mapbox/internal/groundtrack"
	"github.com/yonda-yonda/tle-with-mapbox/internal/metrics"
	"github.com/yonda-yonda/tle-with-mapbox/internal/render"
	"github.com/yonda-yonda/tle-with-mapbox/internal/tle"
)

var tracer = otel.Tracer("github.com/yonda-yonda/tle-with-mapbox/internal/session")

// State is a session's position in its animation cycle.
type State int

const (
	StateIdle State = iota
	StateSampling
	StateRendering
	StateScheduled
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSampling:
		return "sampling"
	case StateRendering:
		return "rendering"
	case StateScheduled:
		return "scheduled"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether the session loop has exited.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateFailed
}

// Config controls sampling and animation pacing.
type Config struct {
	Track groundtrack.Config

	// FrameDelay is the wall time per sample step. A marker for the sample at
	// offset o is drawn FrameDelay × o/Step after the pass is rendered, and the
	// next pass starts FrameDelay × (Elapsed/Step)/2 after that.
	FrameDelay time.Duration

	// MaxCycles stops the loop after that many passes; 0 runs until cancelled.
	MaxCycles int
}

// DefaultConfig returns the standard one-revolution, 50ms-per-step animation.
func DefaultConfig() Config {
	return Config{
		Track:      groundtrack.DefaultConfig(),
		FrameDelay: 50 * time.Millisecond,
	}
}

// Info is a point-in-time view of a session.
type Info struct {
	ID            string    `json:"id"`
	Name          string    `json:"name,omitempty"`
	CatalogNumber int       `json:"catalog_number"`
	State         string    `json:"state"`
	Rotation      string    `json:"rotation"`
	PeriodSeconds float64   `json:"period_seconds"`
	LimitSeconds  float64   `json:"limit_seconds"`
	Cycles        int       `json:"cycles"`
	CreatedAt     time.Time `json:"created_at"`
	PassStart     time.Time `json:"pass_start,omitzero"`
	LineLayer     string    `json:"line_layer"`
	PointLayer    string    `json:"point_layer"`
	Error         string    `json:"error,omitempty"`
}

// Session animates one satellite's ground track on a render.Surface.
type Session struct {
	id         string
	elements   tle.Elements
	sampler    *groundtrack.Sampler
	rotation   groundtrack.Rotation
	surface    render.Surface
	cfg        Config
	clock      Clock
	logger     *slog.Logger
	createdAt  time.Time
	lineLayer  string
	pointLayer string

	mu        sync.RWMutex
	state     State
	cycles    int
	passStart time.Time
	track     *geojson.FeatureCollection
	err       error

	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// LineLayerID is the overlay id of a session's track line.
func LineLayerID(id string) string { return "line_" + id }

// PointLayerID is the overlay id of a session's marker.
func PointLayerID(id string) string { return "point_" + id }

// New prepares a session and registers its two overlays. The rotation sense is
// detected once from the state at the clock's current time.
func New(id string, elements tle.Elements, prop groundtrack.Propagator, surface render.Surface, cfg Config, clock Clock, logger *slog.Logger) (*Session, error) {
	sampler, err := groundtrack.NewSampler(prop, cfg.Track)
	if err != nil {
		return nil, err
	}

	createdAt := clock.Now().UTC()
	state, err := sampler.State(createdAt.Truncate(time.Second))
	if err != nil {
		return nil, fmt.Errorf("initial state: %w", err)
	}

	s := &Session{
		id:         id,
		elements:   elements,
		sampler:    sampler,
		rotation:   groundtrack.DetectRotation(state),
		surface:    surface,
		cfg:        cfg,
		clock:      clock,
		logger:     logger.With("session_id", id),
		createdAt:  createdAt,
		lineLayer:  LineLayerID(id),
		pointLayer: PointLayerID(id),
		done:       make(chan struct{}),
	}

	if err := surface.AddOverlay(s.lineLayer, render.KindLine); err != nil {
		return nil, err
	}
	if err := surface.AddOverlay(s.pointLayer, render.KindPoint); err != nil {
		surface.RemoveOverlay(s.lineLayer)
		return nil, err
	}
	return s, nil
}

func (s *Session) ID() string                     { return s.id }
func (s *Session) Elements() tle.Elements         { return s.elements }
func (s *Session) Rotation() groundtrack.Rotation { return s.rotation }
func (s *Session) LineLayer() string              { return s.lineLayer }
func (s *Session) PointLayer() string             { return s.pointLayer }
func (s *Session) Period() time.Duration          { return s.sampler.Period() }
func (s *Session) Limit() time.Duration           { return s.sampler.Limit() }

// Done is closed when the animation loop exits.
func (s *Session) Done() <-chan struct{} { return s.done }

// State returns the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Err returns the error that failed the session, if any.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Track returns the most recently rendered line data, nil before the first pass.
func (s *Session) Track() *geojson.FeatureCollection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.track
}

// Info returns a snapshot for API responses.
func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info := Info{
		ID:            s.id,
		Name:          s.elements.Name,
		CatalogNumber: s.elements.CatalogNumber,
		State:         s.state.String(),
		Rotation:      s.rotation.String(),
		PeriodSeconds: s.sampler.Period().Seconds(),
		LimitSeconds:  s.sampler.Limit().Seconds(),
		Cycles:        s.cycles,
		CreatedAt:     s.createdAt,
		PassStart:     s.passStart,
		LineLayer:     s.lineLayer,
		PointLayer:    s.pointLayer,
	}
	if s.err != nil {
		info.Error = s.err.Error()
	}
	return info
}

// Start launches the animation loop. Later calls, and calls after Stop, do
// nothing.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	go s.run(ctx)
}

// Stop cancels the loop and waits for it to exit. A session stopped before
// Start never runs and ends in StateStopped.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.started {
		s.started = true
		s.state = StateStopped
		close(s.done)
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	<-s.done
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	s.state = StateFailed
	s.err = err
	s.mu.Unlock()
	s.logger.Error("session failed", "error", err)
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	metrics.IncSessionsActive()
	defer metrics.DecSessionsActive()

	s.logger.Info("session started",
		"catalog_number", s.elements.CatalogNumber,
		"rotation", s.rotation.String(),
		"period_s", s.sampler.Period().Seconds(),
		"limit_s", s.sampler.Limit().Seconds(),
	)

	start := s.createdAt
	for cycle := 0; s.cfg.MaxCycles == 0 || cycle < s.cfg.MaxCycles; cycle++ {
		if ctx.Err() != nil {
			s.stopped()
			return
		}

		s.setState(StateSampling)
		pass, lines, err := s.samplePass(ctx, start)
		if err != nil {
			s.fail(err)
			return
		}

		s.setState(StateRendering)
		fc := render.TrackCollection(lines)
		if err := s.surface.SetLine(s.lineLayer, fc); err != nil {
			s.fail(fmt.Errorf("render track: %w", err))
			return
		}
		s.mu.Lock()
		s.track = fc
		s.passStart = pass.Start
		s.cycles++
		s.mu.Unlock()

		if !s.animate(ctx, pass) {
			s.stopped()
			return
		}
		start = pass.End
	}

	s.stopped()
}

func (s *Session) stopped() {
	s.setState(StateStopped)
	s.logger.Info("session stopped", "cycles", s.cycleCount())
}

func (s *Session) cycleCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cycles
}

// samplePass computes and segments one pass under a tracing span.
func (s *Session) samplePass(ctx context.Context, start time.Time) (*groundtrack.Pass, orb.MultiLineString, error) {
	_, span := tracer.Start(ctx, "session.pass")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", s.id),
		attribute.Int("satellite.catalog_number", s.elements.CatalogNumber),
		attribute.String("pass.start", start.UTC().Format(time.RFC3339)),
	)

	began := time.Now()
	pass, err := s.sampler.Pass(start)
	if err != nil {
		metrics.IncPasses("error")
		span.RecordError(err)
		span.SetStatus(codes.Error, "propagation failed")
		return nil, nil, err
	}
	lines := groundtrack.Segment(s.rotation, pass.Points())
	crossings := groundtrack.Crossings(lines)

	metrics.IncPasses("ok")
	metrics.ObservePassDuration(time.Since(began))
	metrics.AddCrossings(crossings)
	span.SetAttributes(
		attribute.Int("pass.samples", len(pass.Samples)),
		attribute.Int("pass.crossings", crossings),
	)

	s.logger.Debug("pass sampled",
		"pass_start", start.UTC().Format(time.RFC3339),
		"samples", len(pass.Samples),
		"crossings", crossings,
		"duration_ms", time.Since(began).Milliseconds(),
	)
	return pass, lines, nil
}

// animate walks the marker over the first half of the pass and then waits
// until the next pass is due. Returns false if cancelled.
func (s *Session) animate(ctx context.Context, pass *groundtrack.Pass) bool {
	step := s.sampler.Step()
	half := s.sampler.Limit() / 2

	var waited time.Duration
	for _, sample := range pass.Samples {
		if sample.Offset >= half {
			break
		}
		at := s.scale(sample.Offset, step)
		if !s.sleep(ctx, at-waited) {
			return false
		}
		waited = at
		if err := s.surface.SetPoint(s.pointLayer, sample.Point); err != nil {
			s.logger.Warn("marker update failed", "error", err)
		}
	}

	s.setState(StateScheduled)
	next := s.scale(pass.Elapsed, step) / 2
	return s.sleep(ctx, next-waited)
}

// scale converts simulated time to wall delay at FrameDelay per step.
func (s *Session) scale(simulated, step time.Duration) time.Duration {
	return time.Duration(float64(s.cfg.FrameDelay) * float64(simulated) / float64(step))
}

func (s *Session) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-s.clock.After(d):
		return true
	}
}
