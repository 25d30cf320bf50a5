package groundtrack

import (
	"fmt"
	"time"

	"github.com/paulmach/orb"
)

// Track is one computed pass plus its anti-meridian-safe segments.
type Track struct {
	Rotation Rotation
	Period   time.Duration
	Limit    time.Duration
	Pass     *Pass
	Lines    orb.MultiLineString
}

// Crossings returns how many times the pass wraps across the anti-meridian.
func (t *Track) Crossings() int {
	return Crossings(t.Lines)
}

// Compute detects the rotation sense at start, samples one pass and segments it.
func Compute(prop Propagator, cfg Config, start time.Time) (*Track, error) {
	sampler, err := NewSampler(prop, cfg)
	if err != nil {
		return nil, err
	}

	state, err := sampler.State(start.UTC().Truncate(time.Second))
	if err != nil {
		return nil, fmt.Errorf("initial state: %w", err)
	}
	rotation := DetectRotation(state)

	pass, err := sampler.Pass(start)
	if err != nil {
		return nil, err
	}

	return &Track{
		Rotation: rotation,
		Period:   sampler.Period(),
		Limit:    sampler.Limit(),
		Pass:     pass,
		Lines:    Segment(rotation, pass.Points()),
	}, nil
}
