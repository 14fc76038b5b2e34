// Package metrics mirrors relay and command outcomes from the event bus into
// a dedicated Prometheus registry.
package metrics

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bigbrother/internal/eventbus"
)

const namespace = "bigbrother"

type Collector struct {
	registry *prometheus.Registry

	events          *prometheus.CounterVec
	deliveryLatency *prometheus.HistogramVec
	channelChanges  *prometheus.CounterVec
	commands        *prometheus.CounterVec
	goroutines      prometheus.Gauge
	uptime          prometheus.Gauge

	startTime time.Time
}

func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Gateway events by outcome and reason.",
		}, []string{"outcome", "reason"}),
		deliveryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "delivery_duration_seconds",
			Help:      "Time from pipeline entry to send completion, by delivery mode.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"mode"}),
		channelChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_changes_total",
			Help:      "Logging channels created or cleared as stale.",
		}, []string{"change"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Slash commands processed.",
		}, []string{"command", "ok"}),
		goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "goroutine_count",
			Help:      "Number of goroutines.",
		}),
		uptime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_seconds",
			Help:      "Seconds since start.",
		}),
		startTime: time.Now(),
	}
	reg.MustRegister(c.events, c.deliveryLatency, c.channelChanges, c.commands, c.goroutines, c.uptime)
	reg.MustRegister(collectors.NewGoCollector())
	return c
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.goroutines.Set(float64(runtime.NumGoroutine()))
		c.uptime.Set(time.Since(c.startTime).Seconds())
		promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}

// Observe records one bus event.
func (c *Collector) Observe(e eventbus.Event) {
	switch e.Type {
	case eventbus.TypeDelivered, eventbus.TypeSkipped, eventbus.TypeBlocked, eventbus.TypeFailed:
		d, _ := e.Data.(eventbus.Delivery)
		c.events.WithLabelValues(outcome(e.Type), d.Reason).Inc()
		if e.Type == eventbus.TypeDelivered {
			c.deliveryLatency.WithLabelValues(d.Mode).Observe(d.Duration.Seconds())
		}
	case eventbus.TypeChannelCreated:
		c.channelChanges.WithLabelValues("created").Inc()
	case eventbus.TypeChannelRepaired:
		c.channelChanges.WithLabelValues("repaired").Inc()
	case eventbus.TypeCommandProcessed:
		d, _ := e.Data.(eventbus.Command)
		ok := "false"
		if d.OK {
			ok = "true"
		}
		c.commands.WithLabelValues(d.Name, ok).Inc()
	}
}

// Run consumes bus events until ctx is done.
func (c *Collector) Run(ctx context.Context, bus eventbus.Bus) {
	ch, unsub := bus.Subscribe(1024)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			c.Observe(e)
		}
	}
}

func outcome(eventType string) string {
	switch eventType {
	case eventbus.TypeDelivered:
		return "delivered"
	case eventbus.TypeSkipped:
		return "skipped"
	case eventbus.TypeBlocked:
		return "blocked"
	default:
		return "failed"
	}
}
