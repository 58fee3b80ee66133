package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tokensRemaining = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gateway_scheduler_tokens_remaining",
		Help: "Tokens left in the current reservoir window by upstream",
	}, []string{"upstream"})

	reservoirRefills = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_scheduler_exhausted_refills_total",
		Help: "Refills that ended a window in which the reservoir was exhausted",
	}, []string{"upstream"})

	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gateway_scheduler_queue_depth",
		Help: "Tasks waiting for a token or a worker by upstream",
	}, []string{"upstream"})

	inFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gateway_scheduler_in_flight",
		Help: "Tasks currently executing by upstream",
	}, []string{"upstream"})

	tasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_scheduler_tasks_total",
		Help: "Completed tasks by upstream and result",
	}, []string{"upstream", "result"}) // "success", "error"

	queueWait = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_scheduler_queue_wait_seconds",
		Help:    "Time tasks spent queued before execution",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 30},
	}, []string{"upstream"})

	taskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_scheduler_task_duration_seconds",
		Help:    "Task execution time by upstream",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"upstream"})
)
