package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"indicator-lab/internal/domain"
	"indicator-lab/internal/marketdata"
	"indicator-lab/internal/marketdata/stub"
	"indicator-lab/internal/orchestrator"
	"indicator-lab/internal/storage/memory"
)

func newTestServer(t *testing.T, client marketdata.Client) (*httptest.Server, *orchestrator.Orchestrator) {
	t.Helper()
	orch := orchestrator.New(orchestrator.Options{
		Store:  memory.NewBundleStore(),
		Market: client,
		Logger: zerolog.Nop(),
	})
	srv := New(Options{Orchestrator: orch, Logger: zerolog.Nop()})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, orch
}

func createRun(t *testing.T, ts *httptest.Server, body string) createRunResponse {
	t.Helper()
	resp, err := http.Post(ts.URL+"/api/runs", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var ack createRunResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ack))
	require.NotEmpty(t, ack.RunID)
	return ack
}

func getJSON(t *testing.T, ts *httptest.Server, path string, out any) int {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func waitCompleted(t *testing.T, ts *httptest.Server, runID string) {
	t.Helper()
	require.Eventually(t, func() bool {
		var rec domain.RunRecord
		if getJSON(t, ts, "/api/runs/"+runID, &rec) != http.StatusOK {
			return false
		}
		return rec.Status == domain.StatusCompleted
	}, 60*time.Second, 25*time.Millisecond, "run never completed")
}

const smallRunBody = `{"topNSymbols":1,"timeframes":["1h"],"budgetMinutes":1,"randomSeed":42}`

func TestRunLifecycleOverHTTP(t *testing.T) {
	ts, _ := newTestServer(t, stub.NewClient(7))

	ack := createRun(t, ts, smallRunBody)
	assert.Equal(t, domain.StatusQueued, ack.Status)

	waitCompleted(t, ts, ack.RunID)

	var runs []domain.RunRecord
	require.Equal(t, http.StatusOK, getJSON(t, ts, "/api/runs", &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, ack.RunID, runs[0].RunID)

	var summary domain.ResultSummary
	require.Equal(t, http.StatusOK, getJSON(t, ts, "/api/runs/"+ack.RunID+"/results", &summary))
	assert.Equal(t, ack.RunID, summary.RunID)
	require.NotEmpty(t, summary.Recommendations)

	var plot domain.PlotPayload
	require.Equal(t, http.StatusOK, getJSON(t, ts, "/api/runs/"+ack.RunID+"/plots/leaderboard", &plot))
	assert.Equal(t, "leaderboard", plot.ID)

	var snaps []domain.TelemetrySnapshot
	require.Equal(t, http.StatusOK, getJSON(t, ts, "/api/runs/"+ack.RunID+"/telemetry?limit=2", &snaps))
	assert.NotEmpty(t, snaps)
	assert.LessOrEqual(t, len(snaps), 2)

	var diags []domain.RequestDiagnostic
	require.Equal(t, http.StatusOK, getJSON(t, ts, "/api/runs/"+ack.RunID+"/diagnostics", &diags))
}

func TestReportScriptsAndExport(t *testing.T) {
	ts, _ := newTestServer(t, stub.NewClient(7))
	ack := createRun(t, ts, smallRunBody)
	waitCompleted(t, ts, ack.RunID)

	resp, err := http.Get(ts.URL + "/api/runs/" + ack.RunID + "/report")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/markdown")
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "## Leaderboard")

	var scripts map[string]string
	require.Equal(t, http.StatusOK, getJSON(t, ts, "/api/runs/"+ack.RunID+"/scripts", &scripts))
	require.Contains(t, scripts, "universal.pine")
	assert.True(t, strings.HasPrefix(scripts["universal.pine"], "//@version=5"))

	var export domain.ExportBundle
	require.Equal(t, http.StatusOK, getJSON(t, ts, "/api/runs/"+ack.RunID+"/export", &export))
	assert.Equal(t, ack.RunID, export.Manifest.RunID)
	require.Len(t, export.Files, len(export.Manifest.Files))
	for i, f := range export.Files {
		assert.Equal(t, export.Manifest.Files[i], f.Path)
	}
}

func TestErrorStatusCodes(t *testing.T) {
	ts, _ := newTestServer(t, stub.NewClient(7))

	assert.Equal(t, http.StatusNotFound, getJSON(t, ts, "/api/runs/nope", nil))
	assert.Equal(t, http.StatusNotFound, getJSON(t, ts, "/api/runs/nope/results", nil))

	resp, err := http.Post(ts.URL+"/api/runs/nope/cancel", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Out-of-range config is rejected before reaching the orchestrator.
	resp, err = http.Post(ts.URL+"/api/runs", "application/json",
		strings.NewReader(`{"topNSymbols":99}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/api/runs", "application/json",
		strings.NewReader(`{"unknownField":1}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	ack := createRun(t, ts, smallRunBody)
	waitCompleted(t, ts, ack.RunID)

	assert.Equal(t, http.StatusNotFound,
		getJSON(t, ts, "/api/runs/"+ack.RunID+"/plots/no-such-plot", nil))

	resp, err = http.Post(ts.URL+"/api/runs/"+ack.RunID+"/cancel", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCreateRun_ConflictWhileActive(t *testing.T) {
	gate := make(chan struct{})
	client := &gatedClient{inner: stub.NewClient(7), gate: gate}
	ts, _ := newTestServer(t, client)

	ack := createRun(t, ts, smallRunBody)

	resp, err := http.Post(ts.URL+"/api/runs", "application/json", strings.NewReader(smallRunBody))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// Results are unavailable while the run is in flight.
	assert.Equal(t, http.StatusConflict, getJSON(t, ts, "/api/runs/"+ack.RunID+"/results", nil))

	close(gate)
	waitCompleted(t, ts, ack.RunID)
}

func TestTelemetryWebsocketStream(t *testing.T) {
	ts, _ := newTestServer(t, stub.NewClient(7))
	ack := createRun(t, ts, smallRunBody)
	waitCompleted(t, ts, ack.RunID)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/runs/" + ack.RunID + "/telemetry"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	// Terminal run: full history replay, then a normal close.
	var got []domain.TelemetrySnapshot
	for {
		var snap domain.TelemetrySnapshot
		conn.SetReadDeadline(time.Now().Add(10 * time.Second))
		if err := conn.ReadJSON(&snap); err != nil {
			require.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure),
				"unexpected stream error: %v", err)
			break
		}
		got = append(got, snap)
	}
	require.NotEmpty(t, got)
	assert.Equal(t, domain.StageRanking, got[len(got)-1].Stage)
}

func TestTelemetryWebsocket_UnknownRun(t *testing.T) {
	ts, _ := newTestServer(t, stub.NewClient(7))

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/runs/nope/telemetry"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// gatedClient parks the first history fetch until the gate opens, keeping
// the run active for as long as the test needs.
type gatedClient struct {
	inner *stub.Client
	gate  chan struct{}
}

func (c *gatedClient) SelectUniverse(ctx context.Context, topN int) ([]string, error) {
	return c.inner.SelectUniverse(ctx, topN)
}

func (c *gatedClient) FetchHistory(ctx context.Context, symbol, timeframe string, days int) ([]domain.Bar, error) {
	select {
	case <-c.gate:
	case <-ctx.Done():
		return nil, fmt.Errorf("fetch aborted: %w", ctx.Err())
	}
	return c.inner.FetchHistory(ctx, symbol, timeframe, days)
}
