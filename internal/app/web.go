// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/relabs-tech/vibration_bench/internal/frame"
	"github.com/relabs-tech/vibration_bench/internal/metrics"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // bench network only
	},
}

// Reading is the latest detector output for one sensor.
type Reading struct {
	Sensor int       `json:"sensor"`
	QDAmp  float64   `json:"qd_amp"`
	Phase  float64   `json:"phase"`
	MaxAmp float64   `json:"max_amp"`
	Seq    uint16    `json:"seq"`
	At     time.Time `json:"at"`
}

// Snapshot is what the live view pushes at the display cadence.
type Snapshot struct {
	Sensor  int     `json:"sensor"`
	QDAmp   float64 `json:"qd_amp"`
	Phase   float64 `json:"phase"`
	MaxAmp  float64 `json:"max_amp"`
	Frames  uint64  `json:"frames"`
	Desyncs uint64  `json:"desyncs"`
	Gaps    uint64  `json:"gaps"`
}

// Stats is the /api/stats body.
type Stats struct {
	Stream    frame.Stats `json:"stream"`
	Channel   int         `json:"channel"`
	Recording bool        `json:"recording"`
	Readings  []Reading   `json:"readings"`
}

// Live holds the latest readings. The detector writes, the web handlers
// and display read.
type Live struct {
	mu        sync.RWMutex
	readings  map[int]Reading
	channel   int
	stats     func() frame.Stats
	recording func() bool
}

// NewLive tracks readings; channel is the sensor shown by Snapshot.
func NewLive(channel int, stats func() frame.Stats, recording func() bool) *Live {
	return &Live{
		readings:  make(map[int]Reading),
		channel:   channel,
		stats:     stats,
		recording: recording,
	}
}

// Update stores r as the sensor's latest reading.
func (l *Live) Update(r Reading) {
	l.mu.Lock()
	l.readings[r.Sensor] = r
	l.mu.Unlock()
}

// Reading returns the latest reading for sensor.
func (l *Live) Reading(sensor int) (Reading, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.readings[sensor]
	return r, ok
}

// Snapshot combines the channel's reading with stream counters.
func (l *Live) Snapshot() Snapshot {
	r, _ := l.Reading(l.channel)
	st := l.stats()
	return Snapshot{
		Sensor:  l.channel,
		QDAmp:   r.QDAmp,
		Phase:   r.Phase,
		MaxAmp:  r.MaxAmp,
		Frames:  st.Frames,
		Desyncs: st.Desyncs,
		Gaps:    st.Gaps,
	}
}

// Stats returns every reading ordered by sensor.
func (l *Live) Stats() Stats {
	l.mu.RLock()
	rs := make([]Reading, 0, len(l.readings))
	for _, r := range l.readings {
		rs = append(rs, r)
	}
	l.mu.RUnlock()
	sort.Slice(rs, func(i, j int) bool { return rs[i].Sensor < rs[j].Sensor })
	return Stats{
		Stream:    l.stats(),
		Channel:   l.channel,
		Recording: l.recording(),
		Readings:  rs,
	}
}

// Hub fans messages out to websocket clients. A client that can't keep up
// misses messages rather than slowing the others.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte
	log     *zap.Logger
}

// NewHub returns an empty hub.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{clients: make(map[*websocket.Conn]chan []byte), log: log}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends v as JSON to every client.
func (h *Hub) Broadcast(v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		h.log.Warn("broadcast marshal error", zap.Error(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

// ServeHTTP upgrades the request and streams broadcasts until the client
// goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade error", zap.Error(err))
		return
	}
	ch := make(chan []byte, 8)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	h.log.Debug("live client connected", zap.String("remote", r.RemoteAddr))

	done := make(chan struct{})
	go func() {
		defer close(done)
		// only reads to notice the close
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.log.Debug("websocket read error", zap.Error(err))
				}
				return
			}
		}
	}()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		conn.Close()
	}()
	for {
		select {
		case <-done:
			return
		case msg := <-ch:
			conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, v any, log *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("json encode error", zap.Error(err))
	}
}

// newMux serves the live stream, the stats API and, when reg is not nil,
// Prometheus metrics at metricsPath.
func newMux(live *Live, hub *Hub, reg *prometheus.Registry, metricsPath string, log *zap.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/ws/stream", hub)
	mux.HandleFunc("/api/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, live.Stats(), log)
	})
	mux.HandleFunc("/api/snapshot", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, live.Snapshot(), log)
	})
	if reg != nil {
		mux.Handle(metricsPath, metrics.Handler(reg))
	}
	return mux
}

// serveHTTP runs an HTTP server on addr until ctx is done.
func serveHTTP(ctx context.Context, addr string, h http.Handler, log *zap.Logger) error {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.Info("web server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
