package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	m.QueueJoined("rapid")
	m.QueueLeft("rapid", true)
	m.MatchFormed("rapid", time.Second)
	m.RatingUpdated("rapid")
	m.RatingsRecalculated("")
}

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.QueueJoined("rapid")
	m.QueueJoined("rapid")
	m.MatchFormed("rapid", 3*time.Second)
	m.QueueLeft("blitz", false)

	if got := testutil.ToFloat64(m.queueJoins.WithLabelValues("rapid")); got != 2 {
		t.Errorf("expected 2 joins, got %v", got)
	}
	if got := testutil.ToFloat64(m.matchesFormed.WithLabelValues("rapid")); got != 1 {
		t.Errorf("expected 1 match, got %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "playchess_matchmaking_queue_leaves_total") {
		t.Errorf("leave counter missing from exposition")
	}
}
