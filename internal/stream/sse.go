// Package stream pushes overlay changes to browsers over Server-Sent Events.
// Clients connect via GET /api/v1/stream/overlays.
//
// SSE message format, first message on every connection:
//
//	data: {"type":"snapshot","overlays":[{"id":"line_…","kind":"line","version":3,"data":{…}}]}\n\n
//
// followed by one message per change:
//
//	data: {"type":"overlay","overlay":{"id":"point_…","kind":"point","version":17,"data":{…}}}\n\n
//	data: {"type":"remove","id":"line_…","kind":"line"}\n\n
//
// Line data is a GeoJSON FeatureCollection with one LineString per segment;
// point data is a GeoJSON Point feature. Keep-alive comments (:\n\n) are sent
// every KeepaliveInterval of silence.
package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/yonda-yonda/tle-with-mapbox/internal/httputil"
	"github.com/yonda-yonda/tle-with-mapbox/internal/metrics"
	"github.com/yonda-yonda/tle-with-mapbox/internal/render"
)

// subscriberBuffer is the per-connection update queue length.
const subscriberBuffer = 256

// Config holds streaming configuration.
type Config struct {
	TrustProxy         bool          // Honor X-Forwarded-For when limiting.
	MaxConcurrentPerIP int           // Max concurrent streams per IP (default: 10).
	MaxConcurrentTotal int           // Global cap, 0 means 1000.
	KeepaliveInterval  time.Duration // Keep-alive ping interval (default: 30s).
}

// Handler manages SSE streaming connections.
type Handler struct {
	registry *render.Registry
	config   Config
	limiter  *streamLimiter
	logger   *slog.Logger
}

// NewHandler creates a new streaming handler over an overlay registry.
func NewHandler(registry *render.Registry, config Config, logger *slog.Logger) *Handler {
	if config.KeepaliveInterval <= 0 {
		config.KeepaliveInterval = 30 * time.Second
	}
	return &Handler{
		registry: registry,
		config:   config,
		limiter:  newStreamLimiter(config.MaxConcurrentPerIP, config.MaxConcurrentTotal),
		logger:   logger,
	}
}

// ClientIP resolves a request's client address the way the connection
// limiter counts it.
func (h *Handler) ClientIP(r *http.Request) string {
	return httputil.ClientIP(r, h.config.TrustProxy)
}

// HandleOverlays serves the SSE overlay stream.
// GET /api/v1/stream/overlays
func (h *Handler) HandleOverlays(w http.ResponseWriter, r *http.Request) {
	ip := h.ClientIP(r)
	if reason := h.limiter.acquire(ip); reason != "" {
		metrics.IncStreamErrors("rate_limit_" + reason)
		h.logger.Warn("stream rate limit exceeded",
			"remote_ip", ip,
			"limit", reason,
			"current_count", h.limiter.count(ip),
		)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"error": "too many concurrent streams"})
		return
	}

	metrics.IncStreamConnections("connect")
	metrics.IncStreamsActive()

	startTime := time.Now()
	h.logger.Info("stream connected",
		"remote_ip", ip,
		"user_agent", r.Header.Get("User-Agent"),
	)

	defer func() {
		h.limiter.release(ip)
		metrics.IncStreamConnections("disconnect")
		metrics.DecStreamsActive()
		h.logger.Info("stream disconnected",
			"remote_ip", ip,
			"duration_seconds", int(time.Since(startTime).Seconds()),
		)
	}()

	flusher, ok := w.(http.Flusher)
	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Clear the server's WriteTimeout for this long-lived connection.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Debug("could not clear write deadline", "error", err)
	}

	c := &client{
		w:       w,
		flusher: flusher,
		rc:      rc,
		ip:      ip,
		logger:  h.logger,
	}

	// Jittered retry (3-7s) spreads reconnects after a restart.
	retryMs := 3000 + rand.Intn(4000)
	fmt.Fprintf(w, "retry: %d\n\n", retryMs)
	flusher.Flush()

	// Subscribe before the snapshot so no change falls in between. A change
	// that lands in both carries the same version and is idempotent.
	updates, unsubscribe := h.registry.Subscribe(subscriberBuffer)
	defer unsubscribe()

	if err := c.sendJSON(buildSnapshotMessage(h.registry.Snapshot())); err != nil {
		metrics.IncStreamErrors("send_error")
		h.logger.Warn("stream send error (snapshot)", "remote_ip", ip, "error", err)
		return
	}

	keepaliveTicker := time.NewTicker(h.config.KeepaliveInterval)
	defer keepaliveTicker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return

		case u, ok := <-updates:
			if !ok {
				return
			}
			data, err := json.Marshal(buildUpdateMessage(u))
			if err != nil {
				metrics.IncStreamErrors("marshal_error")
				h.logger.Warn("stream marshal error", "remote_ip", ip, "error", err)
				continue
			}
			if err := c.sendRaw(data); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream send error", "remote_ip", ip, "error", err)
				return
			}
			keepaliveTicker.Reset(h.config.KeepaliveInterval)

		case <-keepaliveTicker.C:
			if err := c.sendKeepalive(); err != nil {
				metrics.IncStreamErrors("send_error")
				h.logger.Warn("stream keepalive error", "remote_ip", ip, "error", err)
				return
			}
		}
	}
}

func buildSnapshotMessage(overlays []render.Overlay) snapshotMessage {
	msg := snapshotMessage{Type: "snapshot", Overlays: make([]overlayPayload, len(overlays))}
	for i, o := range overlays {
		msg.Overlays[i] = buildOverlayPayload(o)
	}
	return msg
}

func buildUpdateMessage(u render.Update) any {
	if u.Type == render.UpdateRemove {
		return removeMessage{Type: "remove", ID: u.Overlay.ID, Kind: string(u.Overlay.Kind)}
	}
	return overlayMessage{Type: "overlay", Overlay: buildOverlayPayload(u.Overlay)}
}

// buildOverlayPayload shapes overlay data as a ready-to-use GeoJSON source.
func buildOverlayPayload(o render.Overlay) overlayPayload {
	p := overlayPayload{ID: o.ID, Kind: string(o.Kind), Version: o.Version}
	switch {
	case o.Line != nil:
		p.Data = o.Line
	case o.Point != nil:
		p.Data = render.PointFeature(*o.Point)
	}
	return p
}

// SSE message payload types.

type snapshotMessage struct {
	Type     string           `json:"type"`
	Overlays []overlayPayload `json:"overlays"`
}

type overlayMessage struct {
	Type    string         `json:"type"`
	Overlay overlayPayload `json:"overlay"`
}

type removeMessage struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

type overlayPayload struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	Version uint64 `json:"version"`
	Data    any    `json:"data,omitempty"`
}
