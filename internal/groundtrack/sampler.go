// Package groundtrack samples a satellite's sub-satellite point over one
// orbit and splits the resulting path at the anti-meridian.
package groundtrack

import (
	"fmt"
	"iter"
	"math"
	"time"

	"github.com/paulmach/orb"

	"github.com/yonda-yonda/tle-with-mapbox/internal/transform"
)

// Propagator yields TEME states for one element set.
type Propagator interface {
	Propagate(t time.Time) (transform.PositionTEME, error)
	// MeanMotion returns the mean motion in rad/min.
	MeanMotion() float64
}

// Config controls sampling cadence and the length of one pass.
type Config struct {
	Step           time.Duration // simulated time between samples
	MaxDuration    time.Duration // upper bound on one pass
	MaxRevolutions float64       // revolutions per pass
}

// DefaultConfig samples every simulated minute for one revolution, capped at a day.
func DefaultConfig() Config {
	return Config{
		Step:           60 * time.Second,
		MaxDuration:    24 * time.Hour,
		MaxRevolutions: 1,
	}
}

// Sample is the sub-satellite point at one simulated instant.
type Sample struct {
	Time   time.Time
	Offset time.Duration // since the start of the pass
	Point  orb.Point     // [lon, lat] in degrees
}

// Pass is one finished sampling window.
type Pass struct {
	Start   time.Time
	End     time.Time
	Elapsed time.Duration // simulated time consumed, a whole number of steps
	Samples []Sample
}

// Points returns the sample coordinates in order.
func (p *Pass) Points() []orb.Point {
	pts := make([]orb.Point, len(p.Samples))
	for i, s := range p.Samples {
		pts[i] = s.Point
	}
	return pts
}

// Sampler produces ground-track samples for one propagator.
type Sampler struct {
	prop   Propagator
	cfg    Config
	period time.Duration
	limit  time.Duration
}

// NewSampler derives the period from the propagator's mean motion and fixes the
// pass limit at min(MaxDuration, period × MaxRevolutions).
func NewSampler(prop Propagator, cfg Config) (*Sampler, error) {
	if cfg.Step <= 0 {
		return nil, fmt.Errorf("sample step must be positive, got %v", cfg.Step)
	}
	meanMotion := prop.MeanMotion()
	if meanMotion <= 0 || math.IsNaN(meanMotion) {
		return nil, fmt.Errorf("mean motion must be positive, got %v rad/min", meanMotion)
	}

	periodSec := 2 * math.Pi / (meanMotion / 60)
	limitSec := math.Min(cfg.MaxDuration.Seconds(), periodSec*cfg.MaxRevolutions)

	return &Sampler{
		prop:   prop,
		cfg:    cfg,
		period: time.Duration(periodSec * float64(time.Second)),
		limit:  time.Duration(limitSec * float64(time.Second)),
	}, nil
}

// Period returns the orbital period.
func (s *Sampler) Period() time.Duration { return s.period }

// Limit returns the simulated length of one pass.
func (s *Sampler) Limit() time.Duration { return s.limit }

// Step returns the simulated time between samples.
func (s *Sampler) Step() time.Duration { return s.cfg.Step }

// SampleCount returns the number of samples in every pass.
func (s *Sampler) SampleCount() int {
	return int((s.limit + s.cfg.Step - 1) / s.cfg.Step)
}

// Samples lazily yields the samples of one pass starting at start. Iteration
// stops after the first propagation error, which is yielded with the offending
// timestamp. The sequence can be ranged over any number of times.
func (s *Sampler) Samples(start time.Time) iter.Seq2[Sample, error] {
	return func(yield func(Sample, error) bool) {
		for offset := time.Duration(0); offset < s.limit; offset += s.cfg.Step {
			t := start.Add(offset)
			sample, err := s.sampleAt(t)
			sample.Offset = offset
			if !yield(sample, err) || err != nil {
				return
			}
		}
	}
}

// Pass collects one full pass.
func (s *Sampler) Pass(start time.Time) (*Pass, error) {
	samples := make([]Sample, 0, s.SampleCount())
	for sample, err := range s.Samples(start) {
		if err != nil {
			return nil, fmt.Errorf("sample at +%v: %w", sample.Offset, err)
		}
		samples = append(samples, sample)
	}

	elapsed := time.Duration(len(samples)) * s.cfg.Step
	return &Pass{
		Start:   start,
		End:     start.Add(elapsed),
		Elapsed: elapsed,
		Samples: samples,
	}, nil
}

// State returns the raw TEME state at t, used for rotation detection.
func (s *Sampler) State(t time.Time) (transform.PositionTEME, error) {
	return s.prop.Propagate(t)
}

func (s *Sampler) sampleAt(t time.Time) (Sample, error) {
	// Propagation runs on whole seconds; sidereal time must match.
	at := t.UTC().Truncate(time.Second)
	teme, err := s.prop.Propagate(at)
	if err != nil {
		return Sample{Time: t}, err
	}
	geo := transform.SubSatellitePoint(teme, at)
	return Sample{Time: t, Point: orb.Point{geo.LonDeg, geo.LatDeg}}, nil
}
