package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dougsko/cwbeacon/pkg/beacon"
	"github.com/dougsko/cwbeacon/pkg/config"
	"github.com/dougsko/cwbeacon/pkg/engine"
	"github.com/dougsko/cwbeacon/pkg/hardware"
	"github.com/dougsko/cwbeacon/pkg/protocol"
)

func newTestDaemon(t *testing.T, mutate func(*config.Config)) *BeaconDaemon {
	t.Helper()
	tempDir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Station.Name = "ON0BCN"
	cfg.Beacon.Text = "VVV"
	cfg.Beacon.FrequencyHz = 10140000
	cfg.Beacon.PauseSeconds = 1
	cfg.Beacon.KeyDownSeconds = 1
	cfg.LoRa.Enabled = false
	cfg.Storage.DatabasePath = filepath.Join(tempDir, "journal.db")
	if mutate != nil {
		mutate(cfg)
	}

	configPath := filepath.Join(tempDir, "config.yaml")
	eng, err := engine.New(cfg, configPath, engine.Components{
		Synthesizer: hardware.NewMockSynthesizer(hardware.DefaultCrystalHz),
		GPIO:        hardware.NewMockGPIO(),
		Watchdog:    hardware.NewMockWatchdog(),
		Sleeper: beacon.SleeperFunc(func(ctx context.Context, d time.Duration) error {
			return beacon.TimerSleeper{}.Sleep(ctx, d/1000)
		}),
	})
	require.NoError(t, err)

	d := newDaemon(cfg, configPath, eng)
	t.Cleanup(func() { d.Stop() })
	return d
}

func doRequest(t *testing.T, d *BeaconDaemon, method, path string, body interface{}) (*httptest.ResponseRecorder, protocol.Response) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	d.webServer.Handler.ServeHTTP(w, req)

	var resp protocol.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "body: %s", w.Body.String())
	return w, resp
}

func TestStatusAndConfig(t *testing.T) {
	d := newTestDaemon(t, nil)

	t.Run("Status", func(t *testing.T) {
		w, resp := doRequest(t, d, http.MethodGet, "/api/v1/status", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, resp.Success)

		status, ok := resp.Data["status"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "ON0BCN", status["station"])
		assert.Equal(t, "idle", status["state"])
		assert.Equal(t, engine.Version, status["version"])
	})

	t.Run("Config", func(t *testing.T) {
		w, resp := doRequest(t, d, http.MethodGet, "/api/v1/config", nil)
		assert.Equal(t, http.StatusOK, w.Code)

		settings, ok := resp.Data["settings"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "VVV", settings["text"])
		assert.Equal(t, float64(10140000), settings["frequency_hz"])
	})
}

func TestCommandHandler(t *testing.T) {
	t.Run("Applied", func(t *testing.T) {
		d := newTestDaemon(t, nil)

		w, resp := doRequest(t, d, http.MethodPost, "/api/v1/command",
			protocol.CommandRequest{Command: "freq=7030000"})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, resp.Success)
		assert.Equal(t, "freq", resp.Data["field"])
		assert.Equal(t, "applied", resp.Data["status"])
		assert.Equal(t, int64(7030000), d.engine.Settings().FrequencyHz)
	})

	t.Run("Validation Error", func(t *testing.T) {
		d := newTestDaemon(t, nil)

		w, resp := doRequest(t, d, http.MethodPost, "/api/v1/command",
			protocol.CommandRequest{Command: "wpm=fast"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.False(t, resp.Success)
		assert.Contains(t, resp.Error, "wpm")
	})

	t.Run("Unknown Field", func(t *testing.T) {
		d := newTestDaemon(t, nil)

		w, resp := doRequest(t, d, http.MethodPost, "/api/v1/command",
			protocol.CommandRequest{Command: "call=ON0XYZ"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.False(t, resp.Success)
	})

	t.Run("Empty Command", func(t *testing.T) {
		d := newTestDaemon(t, nil)

		w, _ := doRequest(t, d, http.MethodPost, "/api/v1/command", protocol.CommandRequest{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Write Config", func(t *testing.T) {
		d := newTestDaemon(t, nil)

		doRequest(t, d, http.MethodPost, "/api/v1/command", protocol.CommandRequest{Command: "pause=42"})
		w, resp := doRequest(t, d, http.MethodPost, "/api/v1/command", protocol.CommandRequest{Command: "writeconfig"})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "persisted", resp.Data["status"])

		saved, err := config.LoadConfig(d.configPath)
		require.NoError(t, err)
		assert.Equal(t, 42, saved.Beacon.PauseSeconds)
	})

	t.Run("Write Config Failure", func(t *testing.T) {
		d := newTestDaemonWithConfigPath(t, filepath.Join(t.TempDir(), "missing", "config.yaml"))

		w, resp := doRequest(t, d, http.MethodPost, "/api/v1/command", protocol.CommandRequest{Command: "writeconfig"})
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.False(t, resp.Success)
	})
}

func newTestDaemonWithConfigPath(t *testing.T, configPath string) *BeaconDaemon {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.LoRa.Enabled = false

	eng, err := engine.New(cfg, configPath, engine.Components{
		Synthesizer: hardware.NewMockSynthesizer(hardware.DefaultCrystalHz),
		GPIO:        hardware.NewMockGPIO(),
		Watchdog:    hardware.NewMockWatchdog(),
	})
	require.NoError(t, err)

	d := newDaemon(cfg, configPath, eng)
	t.Cleanup(func() { d.Stop() })
	return d
}

func TestJournalHandlers(t *testing.T) {
	t.Run("Commands", func(t *testing.T) {
		d := newTestDaemon(t, nil)
		doRequest(t, d, http.MethodPost, "/api/v1/command", protocol.CommandRequest{Command: "wpm=22"})
		doRequest(t, d, http.MethodPost, "/api/v1/command", protocol.CommandRequest{Command: "wpm=0"})

		w, resp := doRequest(t, d, http.MethodGet, "/api/v1/journal/commands", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(2), resp.Data["count"])

		w, resp = doRequest(t, d, http.MethodGet, "/api/v1/journal/commands?status=rejected", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(1), resp.Data["count"])
	})

	t.Run("Bad Since", func(t *testing.T) {
		d := newTestDaemon(t, nil)
		w, _ := doRequest(t, d, http.MethodGet, "/api/v1/journal/commands?since=yesterday", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Stats", func(t *testing.T) {
		d := newTestDaemon(t, nil)
		doRequest(t, d, http.MethodPost, "/api/v1/command", protocol.CommandRequest{Command: "wpm=0"})

		w, resp := doRequest(t, d, http.MethodGet, "/api/v1/journal/stats", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		stats, ok := resp.Data["stats"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, float64(1), stats["total_rejected"])
	})

	t.Run("Cycles", func(t *testing.T) {
		d := newTestDaemon(t, nil)
		require.NoError(t, d.Start())

		deadline := time.Now().Add(5 * time.Second)
		for d.engine.Status().Cycles < 1 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}

		w, resp := doRequest(t, d, http.MethodGet, "/api/v1/journal/cycles?limit=1", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(1), resp.Data["count"])
	})

	t.Run("Journal Disabled", func(t *testing.T) {
		d := newTestDaemon(t, func(cfg *config.Config) {
			cfg.Storage.DatabasePath = ""
		})
		w, resp := doRequest(t, d, http.MethodGet, "/api/v1/journal/cycles", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.False(t, resp.Success)
	})
}

func TestMonitorWebSocket(t *testing.T) {
	d := newTestDaemon(t, nil)
	server := httptest.NewServer(d.webServer.Handler)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var hello map[string]interface{}
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "status", hello["type"])

	require.NoError(t, d.Start())

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg map[string]interface{}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "step", msg["type"])

	step, ok := msg["step"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, []interface{}{"pause", "keydown", "cw", "fsk"}, step["mode"])
}
