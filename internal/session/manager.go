package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yonda-yonda/tle-with-mapbox/internal/metrics"
	"github.com/yonda-yonda/tle-with-mapbox/internal/propagation"
	"github.com/yonda-yonda/tle-with-mapbox/internal/render"
	"github.com/yonda-yonda/tle-with-mapbox/internal/tle"
)

// ErrNotFound is returned for unknown session ids.
var ErrNotFound = errors.New("session not found")

// Manager owns every running session.
type Manager struct {
	surface render.Surface
	cfg     Config
	clock   Clock
	logger  *slog.Logger

	// base is the parent context of every session loop.
	base   context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a manager rendering into surface.
func NewManager(surface render.Surface, cfg Config, clock Clock, logger *slog.Logger) *Manager {
	base, cancel := context.WithCancel(context.Background())
	return &Manager{
		surface:  surface,
		cfg:      cfg,
		clock:    clock,
		logger:   logger,
		base:     base,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
}

// Add validates free-text TLE input and starts a new session for it.
// Malformed input returns an error wrapping tle.ErrMalformed and has no other
// effect.
func (m *Manager) Add(ctx context.Context, text string) (*Session, error) {
	_, span := tracer.Start(ctx, "session.add")
	defer span.End()

	line1, line2, err := tle.SplitInput(text)
	var elements tle.Elements
	if err == nil {
		elements, err = tle.ParseElements(line1, line2)
	}
	if err != nil {
		metrics.IncSessions("rejected")
		span.SetStatus(codes.Error, "malformed input")
		return nil, err
	}
	prop, err := propagation.FromElements(elements)
	if err != nil {
		metrics.IncSessions("rejected")
		return nil, fmt.Errorf("%w: %v", tle.ErrMalformed, err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}

	s, err := New(id.String(), elements, prop, m.surface, m.cfg, m.clock, m.logger)
	if err != nil {
		metrics.IncSessions("error")
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(
		attribute.String("session.id", s.ID()),
		attribute.Int("satellite.catalog_number", elements.CatalogNumber),
	)

	// Started before it becomes visible, so a concurrent Remove always finds a
	// running loop to cancel.
	s.Start(m.base)
	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()
	metrics.IncSessions("created")
	return s, nil
}

// Get returns a session by id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// List returns all sessions ordered by id, which is creation order.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Session) int {
		return strings.Compare(a.ID(), b.ID())
	})
	return out
}

// Remove stops a session and removes its overlays.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	s.Stop()
	m.surface.RemoveOverlay(s.LineLayer())
	m.surface.RemoveOverlay(s.PointLayer())
	m.logger.Info("session removed", "session_id", id)
	return nil
}

// Shutdown cancels every session and waits for their loops to exit.
// Overlays are left in place.
func (m *Manager) Shutdown() {
	m.cancel()
	for _, s := range m.List() {
		<-s.Done()
	}
}
