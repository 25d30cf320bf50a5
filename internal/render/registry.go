// Package render holds the map overlays driven by ground-track sessions and
// fans every change out to subscribers such as the SSE stream.
package render

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/yonda-yonda/tle-with-mapbox/internal/metrics"
)

var (
	ErrOverlayExists  = errors.New("overlay already exists")
	ErrUnknownOverlay = errors.New("unknown overlay")
)

// Kind is the geometry an overlay draws.
type Kind string

const (
	KindLine  Kind = "line"
	KindPoint Kind = "point"
)

// Surface is the drawing target a session renders into.
type Surface interface {
	AddOverlay(id string, kind Kind) error
	SetLine(id string, fc *geojson.FeatureCollection) error
	SetPoint(id string, p orb.Point) error
	RemoveOverlay(id string)
}

// Overlay is the current content of one map overlay.
type Overlay struct {
	ID      string                     `json:"id"`
	Kind    Kind                       `json:"kind"`
	Line    *geojson.FeatureCollection `json:"line,omitempty"`
	Point   *orb.Point                 `json:"point,omitempty"`
	Version uint64                     `json:"version"`
}

// UpdateType tells subscribers what happened to an overlay.
type UpdateType string

const (
	UpdateOverlay UpdateType = "overlay"
	UpdateRemove  UpdateType = "remove"
)

// Update is one overlay change as seen by subscribers.
type Update struct {
	Type    UpdateType
	Overlay Overlay
}

// Registry is a concurrency-safe Surface shared by every session.
type Registry struct {
	mu       sync.RWMutex
	overlays map[string]*Overlay
	subs     map[int]chan Update
	nextSub  int
	logger   *slog.Logger
}

// NewRegistry creates an empty overlay registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		overlays: make(map[string]*Overlay),
		subs:     make(map[int]chan Update),
		logger:   logger,
	}
}

// AddOverlay registers an empty overlay. Ids must be unique.
func (r *Registry) AddOverlay(id string, kind Kind) error {
	if kind != KindLine && kind != KindPoint {
		return fmt.Errorf("overlay %q: unsupported kind %q", id, kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.overlays[id]; ok {
		return fmt.Errorf("%w: %s", ErrOverlayExists, id)
	}
	o := &Overlay{ID: id, Kind: kind}
	r.overlays[id] = o
	r.publishLocked(Update{Type: UpdateOverlay, Overlay: *o})
	return nil
}

// SetLine replaces a line overlay's data wholesale.
func (r *Registry) SetLine(id string, fc *geojson.FeatureCollection) error {
	return r.update(id, KindLine, func(o *Overlay) { o.Line = fc })
}

// SetPoint moves a point overlay.
func (r *Registry) SetPoint(id string, p orb.Point) error {
	return r.update(id, KindPoint, func(o *Overlay) { o.Point = &p })
}

// RemoveOverlay drops an overlay. Unknown ids are ignored.
func (r *Registry) RemoveOverlay(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.overlays[id]
	if !ok {
		return
	}
	delete(r.overlays, id)
	r.publishLocked(Update{Type: UpdateRemove, Overlay: Overlay{ID: id, Kind: o.Kind, Version: o.Version + 1}})
}

func (r *Registry) update(id string, kind Kind, apply func(*Overlay)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.overlays[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownOverlay, id)
	}
	if o.Kind != kind {
		return fmt.Errorf("overlay %s is a %s overlay, not %s", id, o.Kind, kind)
	}
	apply(o)
	o.Version++
	r.publishLocked(Update{Type: UpdateOverlay, Overlay: *o})
	return nil
}

// Get returns a copy of one overlay.
func (r *Registry) Get(id string) (Overlay, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.overlays[id]
	if !ok {
		return Overlay{}, false
	}
	return *o, true
}

// Snapshot returns every overlay ordered by id.
func (r *Registry) Snapshot() []Overlay {
	r.mu.RLock()
	out := make([]Overlay, 0, len(r.overlays))
	for _, o := range r.overlays {
		out = append(out, *o)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b Overlay) int {
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Subscribe returns a channel of updates and a cancel func that closes it.
// Updates are dropped for a subscriber whose buffer is full.
func (r *Registry) Subscribe(buffer int) (<-chan Update, func()) {
	ch := make(chan Update, buffer)

	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch
	r.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, id)
			r.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Subscribers returns the number of live subscriptions.
func (r *Registry) Subscribers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// publishLocked must be called with r.mu held for writing.
func (r *Registry) publishLocked(u Update) {
	for _, ch := range r.subs {
		select {
		case ch <- u:
		default:
			metrics.IncOverlayUpdatesDropped()
			r.logger.Debug("overlay update dropped", "overlay_id", u.Overlay.ID)
		}
	}
}
