package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilRegistryIsNoop(t *testing.T) {
	var r *Registry
	assert.NotPanics(t, func() {
		r.RerunTriggered()
		r.EventDebounced()
		r.EventDropped()
		r.ObserveRun(OutcomePassed, time.Second)
		r.ObserveTests(1, 2, 3, 4)
		r.SetFailureSetSize(3)
	})
}

func TestRegistry_Counters(t *testing.T) {
	r := New()

	r.RerunTriggered()
	r.RerunTriggered()
	r.EventDebounced()
	r.EventDropped()
	r.ObserveRun(OutcomeFailed, 1500*time.Millisecond)
	r.ObserveTests(3, 1, 1, 2)
	r.SetFailureSetSize(2)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.RerunsTriggered))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.EventsDebounced))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.EventsDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Runs.WithLabelValues(OutcomeFailed)))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.Tests.WithLabelValues("passed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.Tests.WithLabelValues("skipped")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.FailureSet))
}

func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.RerunTriggered()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.RerunsTriggered))
}

func TestHandler_Exposition(t *testing.T) {
	r := New()
	r.RerunTriggered()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "testloop_reruns_triggered_total 1")
}

func TestServe_StopsOnCancel(t *testing.T) {
	r := New()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.True(t, strings.Contains(string(body), "testloop_failure_set_size"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServe_BadAddress(t *testing.T) {
	err := New().Serve(context.Background(), "not-an-address")
	assert.Error(t, err)
}
