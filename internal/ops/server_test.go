package ops

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snipetrade/snipetrade/internal/telemetry"
)

func newTestServer(t *testing.T, deps Deps) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(":0", deps, zerolog.Nop())
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return s, ts
}

func TestServer_Health_ReturnsSnapshot(t *testing.T) {
	health := telemetry.NewHealth(10)
	health.RecordSuccess(20)
	_, ts := newTestServer(t, Deps{Health: health})

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var snap telemetry.HealthSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, telemetry.StatusGreen, snap.Status)
	assert.EqualValues(t, 1, snap.TotalRequests)
}

func TestServer_Telemetry_SnapshotsCounters(t *testing.T) {
	counters := telemetry.NewCounters()
	counters.Incr("orders_attempted")
	counters.Incr("orders_attempted")
	_, ts := newTestServer(t, Deps{Counters: counters})

	resp, err := http.Get(ts.URL + "/telemetry")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Counters map[string]float64 `json:"counters"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 2.0, body.Counters["orders_attempted"])
}

func TestServer_Metrics_ServesPrometheus(t *testing.T) {
	_, ts := newTestServer(t, Deps{})

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "snipetrade_cache_hit_ratio")
}

func TestServer_UnknownRouteIs404(t *testing.T) {
	_, ts := newTestServer(t, Deps{})

	resp, err := http.Get(ts.URL + "/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHub_BroadcastReachesClient(t *testing.T) {
	s, ts := newTestServer(t, Deps{})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/status"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	require.Eventually(t, func() bool { return s.Hub().ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	s.Hub().Broadcast(map[string]interface{}{"plan_id": "p1", "status": "working"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(payload, &got))
	assert.Equal(t, "p1", got["plan_id"])
	assert.Equal(t, "working", got["status"])
}

func TestServer_Run_StopsOnContextCancel(t *testing.T) {
	s := NewServer("127.0.0.1:0", Deps{}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop after cancel")
	}
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	s, ts := newTestServer(t, Deps{})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/status"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	require.Eventually(t, func() bool { return s.Hub().ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	s.Hub().Close()
	assert.Zero(t, s.Hub().ClientCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
