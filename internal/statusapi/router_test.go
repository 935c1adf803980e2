package statusapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/vrlabs/vrd/internal/replica"
	"github.com/vrlabs/vrd/internal/replicaconfig"
	"github.com/vrlabs/vrd/internal/statemachine"
	"github.com/vrlabs/vrd/internal/wire"
)

type nopSender struct{}

func (nopSender) Send(uint64, wire.Message) error { return nil }

func newTestReplica(t *testing.T) *replica.Replica {
	t.Helper()
	cfg, err := replicaconfig.New([]string{"127.0.0.1:0", "127.0.0.1:0", "127.0.0.1:0"})
	require.NoError(t, err)
	return replica.New(0, cfg, nopSender{}, statemachine.NewCounter(), 4, nil)
}

// TestStatusEndpointReportsReplicaState checks GET /status reflects
// the replica's current view/op/commit numbers and lifecycle status.
func TestStatusEndpointReportsReplicaState(t *testing.T) {
	r := newTestReplica(t)
	router := NewRouter(r, nil)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"replica_id":0`)
	require.Contains(t, rec.Body.String(), `"status":"normal"`)
}

// TestMetricsEndpointServesWhenRegistered checks GET /metrics is wired
// up when a Prometheus registry is supplied, and absent otherwise.
func TestMetricsEndpointServesWhenRegistered(t *testing.T) {
	r := newTestReplica(t)
	reg := prometheus.NewRegistry()

	router := NewRouter(r, reg)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	routerNoMetrics := NewRouter(r, nil)
	req2 := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec2 := httptest.NewRecorder()
	routerNoMetrics.ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusNotFound, rec2.Code)
}
