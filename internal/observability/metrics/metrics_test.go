package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"bigbrother/internal/eventbus"
)

func TestObserve(t *testing.T) {
	c := New()
	c.Observe(eventbus.Event{Type: eventbus.TypeDelivered, Data: eventbus.Delivery{Mode: "inline", Duration: 20 * time.Millisecond}})
	c.Observe(eventbus.Event{Type: eventbus.TypeSkipped, Data: eventbus.Delivery{Reason: "no_channel"}})
	c.Observe(eventbus.Event{Type: eventbus.TypeSkipped, Data: eventbus.Delivery{Reason: "no_channel"}})
	c.Observe(eventbus.Event{Type: eventbus.TypeChannelRepaired})
	c.Observe(eventbus.Event{Type: eventbus.TypeCommandProcessed, Data: eventbus.Command{Name: "setup", OK: true}})

	if got := testutil.ToFloat64(c.events.WithLabelValues("skipped", "no_channel")); got != 2 {
		t.Fatalf("skipped = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.events.WithLabelValues("delivered", "")); got != 1 {
		t.Fatalf("delivered = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.channelChanges.WithLabelValues("repaired")); got != 1 {
		t.Fatalf("repaired = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.commands.WithLabelValues("setup", "true")); got != 1 {
		t.Fatalf("setup commands = %v, want 1", got)
	}

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "bigbrother_events_total") {
		t.Fatalf("exposition missing events counter:\n%s", rec.Body.String())
	}
}
