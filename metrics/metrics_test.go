package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/najoast/frametree/frame"
)

func TestRegisterMetricsIsIdempotent(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()
	RecordNotifierEvent("attach", "applied")
	RecordHTTPRequest("GET", "/frames/:id", 404, 3*time.Millisecond)
}

func TestObserverTracksTree(t *testing.T) {
	tree := frame.NewTree(frame.WithObserver(NewObserver()))
	addedBefore := testutil.ToFloat64(frameEvents.WithLabelValues("added"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := tree.WaitFor(ctx, "child"); err != nil {
			t.Errorf("WaitFor: %v", err)
		}
	}()
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(waitersGauge) == 1
	}, time.Second, 5*time.Millisecond)

	tree.Add(frame.NewHandle("main", ""))
	tree.Add(frame.NewHandle("child", "main"))
	<-done

	require.Equal(t, float64(2), testutil.ToFloat64(framesGauge))
	require.Equal(t, float64(0), testutil.ToFloat64(waitersGauge))
	require.Equal(t, addedBefore+2, testutil.ToFloat64(frameEvents.WithLabelValues("added")))

	tree.Remove(frame.NewHandle("child", "main"))
	require.Equal(t, float64(1), testutil.ToFloat64(framesGauge))
}

func TestHandlerServesCollectors(t *testing.T) {
	RecordNotifierEvent("detach", "applied")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), "frametree_notifier_events_total"))
}
