package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPusherDisabledWithoutEndpoint(t *testing.T) {
	p := NewPusher(Config{}, prometheus.NewRegistry())
	assert.Nil(t, p)
	assert.NoError(t, p.Push(context.Background(), "x"))
}

func TestPusherSendsGroupedMetrics(t *testing.T) {
	var (
		method string
		path   string
		body   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		path = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	m := NewSyncMetrics(reg, Config{ServiceName: "test", Environment: "test"})
	m.IncProviderRequest("insights", OutcomeSuccess)

	p := NewPusher(Config{PushgatewayURL: srv.URL, ServiceName: "insightsync", Environment: "staging"}, reg)
	require.NotNil(t, p)
	require.NoError(t, p.Push(context.Background(), "act_1"))

	assert.Equal(t, http.MethodPut, method)
	assert.Contains(t, path, "/metrics/job/insightsync")
	assert.Contains(t, path, "environment/staging")
	assert.Contains(t, path, "instance/act_1")
	assert.NotEmpty(t, body)
}
