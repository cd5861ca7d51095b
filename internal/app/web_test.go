package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/motion_monitor/internal/config"
	"github.com/relabs-tech/motion_monitor/internal/motion"
)

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestSensorsEndpoint(t *testing.T) {
	cfg := testConfig(t, config.ModeMulti)
	p, factory := newTestPipeline(t, cfg)
	factory.Sockets[1232].Push("10,0,0")
	p.Tick()

	rec := get(t, NewWebServer(p, cfg).Handler(), "/api/sensors")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Mode    string         `json:"mode"`
		Ticks   uint64         `json:"ticks"`
		Sensors []SensorStatus `json:"sensors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, config.ModeMulti, body.Mode)
	assert.Equal(t, uint64(1), body.Ticks)
	require.Len(t, body.Sensors, 4)

	s1 := body.Sensors[1]
	assert.Equal(t, 1232, s1.Port)
	assert.Equal(t, 8, s1.Capacity)
	assert.Equal(t, uint64(1), s1.Sequence)
	assert.Equal(t, motion.BandMoving, s1.Band)
	assert.Equal(t, 10.0, s1.Latest.Magnitude)

	assert.Equal(t, motion.BandStill, body.Sensors[0].Band)
	assert.Zero(t, body.Sensors[0].Sequence)
}

func TestSnapshotEndpoint(t *testing.T) {
	cfg := testConfig(t, config.ModeMulti)
	p, factory := newTestPipeline(t, cfg)
	factory.Sockets[1233].Push("0,6,0")
	p.Tick()
	h := NewWebServer(p, cfg).Handler()

	rec := get(t, h, "/api/snapshot?sensor=2")
	require.Equal(t, http.StatusOK, rec.Code)
	var series sensorSeries
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &series))
	assert.Equal(t, 2, series.Sensor)
	assert.Equal(t, 1233, series.Port)
	assert.Equal(t, motion.BandMoving, series.Band)
	assert.Equal(t, []float64{0, 0, 0, 0, 0, 0, 0, 1}, series.Values)

	tests := []struct {
		target string
		status int
	}{
		{"/api/snapshot", http.StatusBadRequest},
		{"/api/snapshot?sensor=two", http.StatusBadRequest},
		{"/api/snapshot?sensor=4", http.StatusNotFound},
		{"/api/snapshot?sensor=-1", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := get(t, h, tt.target)
			assert.Equal(t, tt.status, rec.Code)
			var e map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
			assert.NotEmpty(t, e["error"])
		})
	}
}

func TestStatsEndpoint(t *testing.T) {
	cfg := testConfig(t, config.ModeSingle)
	cfg.StartupWait = false
	p, factory := newTestPipeline(t, cfg)
	sock := factory.Sockets[1233]
	sock.Push("0,0,0,60000,80000,0") // 100
	p.Tick()
	sock.Push("0,0,0,3000,4000,0") // 5
	p.Tick()
	sock.Push("1,2") // arity reject
	p.Tick()

	rec := get(t, NewWebServer(p, cfg).Handler(), "/api/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Sensors []SensorStats `json:"sensors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Sensors, 1)

	st := body.Sensors[0]
	assert.Equal(t, uint64(3), st.Attempts)
	assert.Equal(t, uint64(3), st.Datagrams)
	assert.Equal(t, uint64(2), st.Appended)
	assert.Equal(t, uint64(1), st.ArityRejects)
	assert.InDelta(t, 105.0/8, st.Summary.Mean, 1e-9)
	assert.Equal(t, 100.0, st.Summary.Max)
	assert.InDelta(t, 1.0/8, st.Summary.FractionAbove, 1e-9)
}

func TestChartEndpoints(t *testing.T) {
	cfg := testConfig(t, config.ModeMulti)
	p, factory := newTestPipeline(t, cfg)
	factory.Sockets[1231].Push("9,0,0")
	p.Tick()
	h := NewWebServer(p, cfg).Handler()

	for _, target := range []string{"/", "/chart"} {
		rec := get(t, h, target)
		require.Equal(t, http.StatusOK, rec.Code, target)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
		assert.Contains(t, rec.Body.String(), "echarts")
		assert.Contains(t, rec.Body.String(), "sensor 3 (port 1234)")
	}

	rec := get(t, h, "/chart.png")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG\r\n\x1a\n")))

	assert.Equal(t, http.StatusNotFound, get(t, h, "/favicon.ico").Code)
}

func TestMethodNotAllowed(t *testing.T) {
	cfg := testConfig(t, config.ModeMulti)
	p, _ := newTestPipeline(t, cfg)

	rec := httptest.NewRecorder()
	NewWebServer(p, cfg).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/stats", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestWebSocketPushesSnapshots(t *testing.T) {
	cfg := testConfig(t, config.ModeMulti)
	p, factory := newTestPipeline(t, cfg)
	factory.Sockets[1234].Push("0,0,30")
	p.Tick()
	ws := NewWebServer(p, cfg)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ws.Serve(ctx, ln) }()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg struct {
		Type    string          `json:"type"`
		Payload snapshotMessage `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "snapshot", msg.Type)
	assert.Equal(t, config.ModeMulti, msg.Payload.Mode)
	require.Len(t, msg.Payload.Sensors, 4)
	assert.Equal(t, 1.0, msg.Payload.Sensors[3].Values[7])
	assert.Equal(t, 1, ws.Hub().Clients(ctx))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("web server did not stop")
	}
}

func TestWebSocketUnavailableWithoutHub(t *testing.T) {
	cfg := testConfig(t, config.ModeMulti)
	p, _ := newTestPipeline(t, cfg)
	ws := NewWebServer(p, cfg)
	require.False(t, ws.Hub().Running())

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() { done <- get(t, ws.Handler(), "/ws") }()
	select {
	case rec := <-done:
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("/ws blocked with no hub running")
	}
}

func TestStartReportsBindFailure(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := testConfig(t, config.ModeMulti)
	cfg.WebServerPort = ln.Addr().(*net.TCPAddr).Port
	p, _ := newTestPipeline(t, cfg)

	err = NewWebServer(p, cfg).Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "web: listen")
}
