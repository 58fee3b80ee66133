package fanart

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var logoLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gateway_fanart_logo_lookups_total",
	Help: "Logo lookups by source",
}, []string{"source"}) // "cache", "upstream", "error"
