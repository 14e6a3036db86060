// Package services implements the settlement pipeline behind the LNURL-pay
// callback. This file exposes Prometheus collectors for the pipeline's
// asynchronous half: background failures have no HTTP caller to surface to,
// so counters and the live-watcher gauge are the operational signal.
package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// invoicesIssued counts invoices created through the callback.
	invoicesIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hermes_invoices_issued_total",
		Help: "Total number of invoices issued via the LNURL-pay callback.",
	})

	// invoicesResolved counts terminal watcher outcomes by kind.
	invoicesResolved = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hermes_invoices_resolved_total",
		Help: "Total number of watched invoices reaching a terminal state.",
	}, []string{"outcome"}) // settled | canceled | expired | failed

	// watchersLive gauges the number of currently running settlement watchers.
	watchersLive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hermes_watchers_live",
		Help: "Current number of live settlement watchers.",
	})

	// deliveries counts note delivery attempts by transport and result.
	deliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hermes_note_deliveries_total",
		Help: "Total number of note delivery attempts.",
	}, []string{"transport", "result"}) // result: ok | error
)

func init() {
	prometheus.MustRegister(invoicesIssued, invoicesResolved, watchersLive, deliveries)
}
