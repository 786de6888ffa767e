package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"daoup/internal/chain"
)

func TestMetricsRecordOutcomes(t *testing.T) {
	m := New(nil)

	m.ObserveRPC("abci_query", 20*time.Millisecond, nil)
	m.ObserveRPC("abci_query", time.Millisecond, chain.Wrap(errors.New("connection refused")))
	m.ObserveAction("contribute", "success")
	m.ObserveAction("contribute", "success")
	m.Report("contribute", errors.New("boom"))
	m.Report("contribute", nil)
	m.SetFilterGeneration(4)
	m.RecordSync(3, 1, 9)

	require.Equal(t, 1.0, testutil.ToFloat64(m.RPCErrors.WithLabelValues("abci_query", "network")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.Actions.WithLabelValues("contribute", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.UnexpectedErrors.WithLabelValues("contribute")))
	require.Equal(t, 4.0, testutil.ToFloat64(m.FilterGeneration))
	require.Equal(t, 3.0, testutil.ToFloat64(m.SyncedCampaigns))
	require.Equal(t, 9.0, testutil.ToFloat64(m.SyncedActions))
}

func TestMetricsHandler(t *testing.T) {
	m := New(nil)
	m.ObserveAction("refund", "error")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), `daoup_campaign_actions_total{action="refund",outcome="error"} 1`))
}
