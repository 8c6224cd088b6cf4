package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	gobreaker "github.com/sony/gobreaker/v2"
)

func TestBreakerStateValue(t *testing.T) {
	cases := map[gobreaker.State]float64{
		gobreaker.StateClosed:   0,
		gobreaker.StateHalfOpen: 1,
		gobreaker.StateOpen:     2,
	}
	for s, want := range cases {
		if got := BreakerStateValue(s); got != want {
			t.Fatalf("%s: got %v want %v", s, got, want)
		}
	}
}

func TestVisitorEventsCounter(t *testing.T) {
	c := VisitorEvents.WithLabelValues("pageview", "recorded")
	before := testutil.ToFloat64(c)
	c.Inc()
	if got := testutil.ToFloat64(c); got != before+1 {
		t.Fatalf("counter=%v want %v", got, before+1)
	}
}
