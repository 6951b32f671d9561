package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/api"
	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/api/handlers"
	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/cache"
	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/config"
	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/deploy"
	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/deploy/queue"
	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/hosts"
)

type okStrategy struct{}

func (okStrategy) Name() string               { return "test" }
func (okStrategy) Supports(h hosts.Host) bool { return true }
func (okStrategy) Execute(ctx context.Context, job queue.Job, ec queue.ExecContext) (queue.Result, error) {
	return queue.Result{Status: queue.ResultOK, Port: "COM3"}, nil
}

func setupRouter(t *testing.T) (*httptest.Server, *deploy.Manager, *hosts.Registry) {
	t.Helper()

	cfg := config.Default()
	cfg.ActiveProfile = "uno"
	cfg.Profiles = []config.Profile{{
		ID: "uno", FQBN: "arduino:avr:uno", MaxParallel: 2,
	}}

	registry := hosts.NewRegistry()
	buildCache, err := cache.New(cfg.Cache)
	require.NoError(t, err)
	t.Cleanup(func() { buildCache.Close() })

	manager, err := deploy.NewManager(cfg, registry, buildCache, nil, nil)
	require.NoError(t, err)
	manager.RegisterStrategy(okStrategy{})

	h := handlers.NewHandler(manager, registry, nil)
	ts := httptest.NewServer(api.NewRouter(h))
	t.Cleanup(ts.Close)

	return ts, manager, registry
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, dest any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dest))
}

func TestHealthEndpoint(t *testing.T) {
	ts, _, _ := setupRouter(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")
}

func TestHostLifecycle(t *testing.T) {
	ts, _, _ := setupRouter(t)

	resp := postJSON(t, ts.URL+"/hosts", map[string]any{
		"id": "pc-01", "name": "Station 1", "address": "10.0.0.1", "os": "windows",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp, err := http.Get(ts.URL + "/hosts/pc-01")
	require.NoError(t, err)
	var host hosts.Host
	decode(t, resp, &host)
	assert.Equal(t, "Station 1", host.Name)
	assert.True(t, host.Enabled)

	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/hosts/pc-01/enabled",
		strings.NewReader(`{"enabled":false}`))
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	decode(t, resp, &host)
	assert.False(t, host.Enabled)

	req, _ = http.NewRequest(http.MethodDelete, ts.URL+"/hosts/pc-01", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/hosts/pc-01")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHostValidation(t *testing.T) {
	ts, _, _ := setupRouter(t)

	resp := postJSON(t, ts.URL+"/hosts", map[string]any{"id": "pc-01"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestImportAndExportHosts(t *testing.T) {
	ts, _, _ := setupRouter(t)

	csv := "id,name,address,os\npc-01,Station 1,10.0.0.1,windows\npc-02,Station 2,,windows\n"
	resp, err := http.Post(ts.URL+"/hosts/import", "text/csv", strings.NewReader(csv))
	require.NoError(t, err)

	var imported struct {
		Added   int `json:"added"`
		Updated int `json:"updated"`
		Skipped int `json:"skipped"`
	}
	decode(t, resp, &imported)
	assert.Equal(t, 1, imported.Added)
	assert.Equal(t, 1, imported.Skipped)

	resp, err = http.Get(ts.URL + "/hosts/export")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/csv")
}

func TestCreateDeploymentAndListJobs(t *testing.T) {
	ts, manager, registry := setupRouter(t)

	registry.Upsert(context.Background(), hosts.Host{
		ID: "pc-01", Address: "10.0.0.1", OS: hosts.OSWindows, Enabled: true,
	})

	resp := postJSON(t, ts.URL+"/deployments", map[string]any{
		"hostIds": []string{"pc-01"},
		"action":  "detect",
	})
	var created struct {
		Count int `json:"count"`
	}
	decode(t, resp, &created)
	assert.Equal(t, 1, created.Count)

	require.Eventually(t, func() bool {
		snap := manager.Snapshot()
		return snap.CompletedCount == 1
	}, 5*time.Second, 10*time.Millisecond)

	resp, err := http.Get(ts.URL + "/jobs")
	require.NoError(t, err)
	var snap queue.Snapshot
	decode(t, resp, &snap)
	require.Len(t, snap.Jobs, 1)
	assert.Equal(t, queue.StatusSucceeded, snap.Jobs[0].Status)
}

func TestCreateDeploymentRejectsBadAction(t *testing.T) {
	ts, _, _ := setupRouter(t)

	resp := postJSON(t, ts.URL+"/deployments", map[string]any{
		"hostIds": []string{"pc-01"},
		"action":  "reboot",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCancelUnknownJob(t *testing.T) {
	ts, _, _ := setupRouter(t)

	resp, err := http.Post(ts.URL+"/jobs/no-such-job/cancel", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTelemetryEndpoint(t *testing.T) {
	ts, _, _ := setupRouter(t)

	resp, err := http.Get(ts.URL + "/telemetry")
	require.NoError(t, err)
	var tel queue.Telemetry
	decode(t, resp, &tel)
	assert.Zero(t, tel.WindowSize)
}

func TestHistoryDisabled(t *testing.T) {
	ts, _, _ := setupRouter(t)

	resp, err := http.Get(ts.URL + "/history")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}
