package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	t.Parallel()

	m, err := NewHTTP(prometheus.NewRegistry())
	require.NoError(t, err)

	m.Observe(http.MethodGet, "/healthz", http.StatusOK, 10*time.Millisecond)
	m.Observe(http.MethodGet, "/healthz", http.StatusOK, 20*time.Millisecond)

	require.Equal(t, 2.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET", "200")))
	require.Equal(t, 1, testutil.CollectAndCount(m.requestDuration))
}

func TestNewHTTPDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewHTTP(reg)
	require.NoError(t, err)
	_, err = NewHTTP(reg)
	require.Error(t, err)
}

func TestHandlerServesRegistry(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m, err := NewHTTP(reg)
	require.NoError(t, err)
	m.Observe(http.MethodPost, "/v1/crawls", http.StatusAccepted, time.Millisecond)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, resp.Body.Close())
	}()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `brokenlinks_http_requests_total{code="202",method="POST"} 1`)
}
