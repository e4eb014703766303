// Package metrics exposes the service's Prometheus collectors. All of
// them register on the default registry and are served on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AlertsEmitted counts alerts produced by collectors, by source.
	AlertsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duetto_alerts_emitted_total",
		Help: "Alerts produced by collectors, by source.",
	}, []string{"source"})

	// AlertsDropped counts alerts dropped inside the pipeline, by stage.
	AlertsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duetto_alerts_dropped_total",
		Help: "Alerts dropped by pipeline processors, by stage.",
	}, []string{"stage"})

	// AlertsBroadcast counts alerts that reached the broadcast hub.
	AlertsBroadcast = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duetto_alerts_broadcast_total",
		Help: "Alerts delivered to the broadcast hub.",
	})

	// SubscribersDetached counts subscribers removed from the hub,
	// whether by disconnect or after a failed send.
	SubscribersDetached = promauto.NewCounter(prometheus.CounterOpts{
		Name: "duetto_subscribers_detached_total",
		Help: "Subscribers detached from the broadcast hub.",
	})

	// NotifySent counts successful notifier deliveries, by channel.
	NotifySent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duetto_notify_sent_total",
		Help: "Successful notifier deliveries, by channel.",
	}, []string{"channel"})

	// NotifyFailures counts notifier deliveries that ultimately failed, by channel.
	NotifyFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duetto_notify_failures_total",
		Help: "Notifier deliveries that ultimately failed, by channel.",
	}, []string{"channel"})

	// CollectorRestarts counts supervised collector restarts, by collector.
	CollectorRestarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duetto_collector_restarts_total",
		Help: "Collector driver restarts, by collector.",
	}, []string{"collector"})
)
