package trakt

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	syncsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_trakt_syncs_total",
		Help: "History sync attempts by outcome",
	}, []string{"outcome"}) // "fresh", "imported", "token_expired", "failed"

	importedEntries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_trakt_imported_entries_total",
		Help: "History entries written by syncs",
	})
)
