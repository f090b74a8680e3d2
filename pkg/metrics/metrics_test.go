package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(cacheLookups.WithLabelValues("hit"))
	IncCacheLookup(true)
	if got := testutil.ToFloat64(cacheLookups.WithLabelValues("hit")); got != before+1 {
		t.Errorf("hits = %v, want %v", got, before+1)
	}

	fb := testutil.ToFloat64(fallbacks)
	IncFallback()
	if got := testutil.ToFloat64(fallbacks); got != fb+1 {
		t.Errorf("fallbacks = %v, want %v", got, fb+1)
	}

	rf := testutil.ToFloat64(retrievalFailures)
	IncRetrievalFailure()
	if got := testutil.ToFloat64(retrievalFailures); got != rf+1 {
		t.Errorf("retrieval failures = %v, want %v", got, rf+1)
	}

	esc := testutil.ToFloat64(escalations.WithLabelValues(PathWorkflow))
	ObserveQuery(PathWorkflow, time.Now(), true)
	ObserveQuery(PathWorkflow, time.Now(), false)
	if got := testutil.ToFloat64(escalations.WithLabelValues(PathWorkflow)); got != esc+1 {
		t.Errorf("escalations = %v, want %v", got, esc+1)
	}
}

func TestHandler(t *testing.T) {
	ObserveStage("retrieval", 5*time.Millisecond)
	ObserveRating(4)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, name := range []string{"supportdesk_stage_latency_ms", "supportdesk_feedback_rating"} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
