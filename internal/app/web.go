// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"gonum.org/v1/plot/vg"

	"github.com/relabs-tech/motion_monitor/internal/config"
	"github.com/relabs-tech/motion_monitor/internal/monitoring"
	"github.com/relabs-tech/motion_monitor/internal/motion"
	"github.com/relabs-tech/motion_monitor/internal/pipeline"
)

// WebServer serves snapshots, statistics and charts for a running pipeline.
type WebServer struct {
	pipeline     *pipeline.Pipeline
	mode         string
	pushInterval time.Duration
	hub          *Hub
	ctx          context.Context
	server       *http.Server
}

// NewWebServer builds the HTTP surface for p.
func NewWebServer(p *pipeline.Pipeline, cfg *config.Config) *WebServer {
	ws := &WebServer{
		pipeline:     p,
		mode:         cfg.Mode,
		pushInterval: time.Duration(cfg.WebPushInterval) * time.Millisecond,
		hub:          NewHub(),
		ctx:          context.Background(),
	}
	ws.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WebServerPort),
		Handler:           ws.setupRoutes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return ws
}

// Handler returns the route table.
func (ws *WebServer) Handler() http.Handler { return ws.server.Handler }

// Hub returns the websocket hub.
func (ws *WebServer) Hub() *Hub { return ws.hub }

// Start binds the listener, then serves until ctx is cancelled. A bind
// failure is returned immediately.
func (ws *WebServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", ws.server.Addr)
	if err != nil {
		return fmt.Errorf("web: listen %s: %w", ws.server.Addr, err)
	}
	return ws.Serve(ctx, ln)
}

// Serve runs the server on ln until ctx is cancelled.
func (ws *WebServer) Serve(ctx context.Context, ln net.Listener) error {
	ws.ctx = ctx
	ws.hub.Start(ctx)
	go ws.pushLoop(ctx)

	errCh := make(chan error, 1)
	go func() {
		monitoring.Logf("web: listening on %s", ln.Addr())
		if err := ws.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("web: shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			monitoring.Logf("web: force close error: %v", err)
		}
	}
	monitoring.Logf("web: stopped")
	return nil
}

func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", ws.handleChart)
	mux.HandleFunc("/chart", ws.handleChart)
	mux.HandleFunc("/chart.png", ws.handleChartPNG)
	mux.HandleFunc("/api/sensors", ws.handleSensors)
	mux.HandleFunc("/api/snapshot", ws.handleSnapshot)
	mux.HandleFunc("/api/stats", ws.handleStats)
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.hub.ServeWS(ws.ctx, w, r)
	})
	return mux
}

func (ws *WebServer) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		monitoring.Logf("web: json encode error: %v", err)
	}
}

func (ws *WebServer) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// SensorStatus is one entry of /api/sensors.
type SensorStatus struct {
	Sensor   int           `json:"sensor"`
	Port     int           `json:"port"`
	Capacity int           `json:"capacity"`
	Sequence uint64        `json:"sequence"`
	Latest   motion.Sample `json:"latest"`
	Band     motion.Band   `json:"band"`
}

func (ws *WebServer) sensorStatus() []SensorStatus {
	p := ws.pipeline
	out := make([]SensorStatus, 0, p.Len())
	for i := 0; i < p.Len(); i++ {
		ep, err := p.Endpoint(i)
		if err != nil {
			continue
		}
		sample, seq, _ := p.Latest(i)
		out = append(out, SensorStatus{
			Sensor:   i,
			Port:     ep.Port,
			Capacity: p.Capacity(),
			Sequence: seq,
			Latest:   sample,
			Band:     sample.Band(),
		})
	}
	return out
}

func (ws *WebServer) handleSensors(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	ws.writeJSON(w, map[string]interface{}{
		"mode":    ws.mode,
		"state":   ws.pipeline.State().String(),
		"ticks":   ws.pipeline.Ticks(),
		"sensors": ws.sensorStatus(),
	})
}

func (ws *WebServer) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	raw := r.URL.Query().Get("sensor")
	idx, err := strconv.Atoi(raw)
	if err != nil {
		ws.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid 'sensor' parameter %q", raw))
		return
	}
	values, err := ws.pipeline.Snapshot(idx)
	if errors.Is(err, pipeline.ErrUnknownSensor) {
		ws.writeJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	ep, _ := ws.pipeline.Endpoint(idx)
	sample, _, _ := ws.pipeline.Latest(idx)
	ws.writeJSON(w, sensorSeries{Sensor: idx, Port: ep.Port, Band: sample.Band(), Values: values})
}

// SensorStats is one entry of /api/stats.
type SensorStats struct {
	pipeline.Stats
	Summary Summary `json:"summary"`
}

func (ws *WebServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	p := ws.pipeline
	level := bandLevel(p.Deriver())
	out := make([]SensorStats, 0, p.Len())
	for i := 0; i < p.Len(); i++ {
		st, err := p.Stats(i)
		if err != nil {
			continue
		}
		values, _ := p.Snapshot(i)
		out = append(out, SensorStats{Stats: st, Summary: summarize(values, level)})
	}
	ws.writeJSON(w, map[string]interface{}{
		"state":   p.State().String(),
		"ticks":   p.Ticks(),
		"sensors": out,
	})
}

func (ws *WebServer) handleChart(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/chart" {
		http.NotFound(w, r)
		return
	}
	if !allowGet(w, r) {
		return
	}
	subtitle := fmt.Sprintf("mode=%s state=%s ticks=%d %s",
		ws.mode, ws.pipeline.State(), ws.pipeline.Ticks(), time.Now().Format(time.RFC3339))

	var buf bytes.Buffer
	if err := renderLineChart(&buf, collectSeries(ws.pipeline), ws.pipeline.Deriver(), subtitle); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (ws *WebServer) handleChartPNG(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	var buf bytes.Buffer
	if err := renderPNG(&buf, collectSeries(ws.pipeline), ws.pipeline.Deriver(), 10*vg.Inch, 4*vg.Inch); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

// snapshotMessage is the websocket payload pushed every interval.
type snapshotMessage struct {
	Mode    string         `json:"mode"`
	State   string         `json:"state"`
	Ticks   uint64         `json:"ticks"`
	Sensors []sensorSeries `json:"sensors"`
	Time    time.Time      `json:"time"`
}

func (ws *WebServer) snapshotMessage() snapshotMessage {
	return snapshotMessage{
		Mode:    ws.mode,
		State:   ws.pipeline.State().String(),
		Ticks:   ws.pipeline.Ticks(),
		Sensors: collectSeries(ws.pipeline),
		Time:    time.Now(),
	}
}

func (ws *WebServer) pushLoop(ctx context.Context) {
	if ws.pushInterval <= 0 {
		return
	}
	ticker := time.NewTicker(ws.pushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ws.hub.Broadcast("snapshot", ws.snapshotMessage()); err != nil {
				monitoring.Logf("web: broadcast error: %v", err)
			}
		}
	}
}
