package metrics

import (
	"time"

	"PPSignal/service/chat"
	"PPSignal/service/presence"
	"PPSignal/service/upload"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ppsignal"

// Sources are read on every scrape. Nil fields export nothing.
type Sources struct {
	Conns         *chat.ConnManager
	Presence      *presence.Tracker
	Uploads       *upload.Assembler
	ActiveWindow  time.Duration
	EventsDropped func() uint64
}

// NewRegistry builds a registry with the process collectors and one
// func-backed metric per counter kept by the relay.
func NewRegistry(s Sources) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if s.Conns != nil {
		m := s.Conns
		reg.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace, Subsystem: "relay", Name: "active_connections",
				Help: "Signaling connections currently registered.",
			}, func() float64 { return float64(m.Metrics().ActiveConnections) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: namespace, Subsystem: "relay", Name: "connections_total",
				Help: "Signaling connections accepted since start.",
			}, func() float64 { return float64(m.Metrics().TotalConnections) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: namespace, Subsystem: "relay", Name: "messages_relayed_total",
				Help: "Frames delivered to a target.",
			}, func() float64 { return float64(m.Metrics().MessagesRelayed) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: namespace, Subsystem: "relay", Name: "errors_total",
				Help: "Failed sends.",
			}, func() float64 { return float64(m.Metrics().Errors) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace, Subsystem: "relay", Name: "uptime_seconds",
				Help: "Seconds since the registry was created.",
			}, func() float64 { return m.Metrics().UptimeSeconds }),
		)
	}
	if s.Presence != nil {
		t, window := s.Presence, s.ActiveWindow
		if window <= 0 {
			window = 2 * time.Minute
		}
		reg.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace, Subsystem: "presence", Name: "tracked_users",
				Help: "Users with a presence record.",
			}, func() float64 { return float64(len(t.Users())) }),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace, Subsystem: "presence", Name: "active_users",
				Help: "Users seen within the active window.",
			}, func() float64 { return float64(len(t.Active(window))) }),
		)
	}
	if s.Uploads != nil {
		u := s.Uploads
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "upload", Name: "pending",
			Help: "Incomplete chunked uploads.",
		}, func() float64 { return float64(u.Pending()) }))
	}
	if s.EventsDropped != nil {
		f := s.EventsDropped
		reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "events", Name: "dropped_total",
			Help: "Lifecycle events dropped because the publish queue was full.",
		}, func() float64 { return float64(f()) }))
	}
	return reg
}

// Handler serves reg in the text exposition format.
func Handler(reg *prometheus.Registry) gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
}
