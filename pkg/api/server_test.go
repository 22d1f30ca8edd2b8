package api

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/hyperflow/params"
	"github.com/uhyunpark/hyperflow/pkg/dms"
	"github.com/uhyunpark/hyperflow/pkg/nonce"
	"github.com/uhyunpark/hyperflow/pkg/session"
	"github.com/uhyunpark/hyperflow/pkg/util"
)

func testServer(t *testing.T) (*Server, *nonce.Manager, *dms.Scheduler) {
	t.Helper()
	sess := session.NewMachine(params.Default().Session, nil, "ws://test", util.RealClock{}, nil)
	sched := dms.NewScheduler(util.RealClock{}, nil, nil)
	nonces := nonce.NewManager(util.RealClock{})
	return NewServer(sess, sched, nonces, nil, nil), nonces, sched
}

func TestHealth(t *testing.T) {
	s, _, _ := testServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "ok", body["status"])
}

func TestStatus(t *testing.T) {
	s, nonces, sched := testServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	nonces.Next()
	nonces.Next()
	sched.Arm(time.Minute)
	defer sched.Cancel()

	resp, err := http.Get(ts.URL + "/api/v1/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Phase string `json:"phase"`
		DMS   struct {
			State    string     `json:"state"`
			Deadline *time.Time `json:"deadline"`
		} `json:"dms"`
		Nonce struct {
			Last       int64 `json:"last"`
			WindowSize int   `json:"windowSize"`
		} `json:"nonce"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "disconnected", body.Phase)
	require.Equal(t, "armed", body.DMS.State)
	require.NotNil(t, body.DMS.Deadline)
	require.NotZero(t, body.Nonce.Last)
	require.Equal(t, 2, body.Nonce.WindowSize)
}

func TestMetricsExposed(t *testing.T) {
	s, _, _ := testServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(raw), "hyperflow_nonces_issued_total")
}
