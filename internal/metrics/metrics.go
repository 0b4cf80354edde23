package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Edits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowcanvas_edits_total",
		Help: "Total number of edit requests, labelled by op and result (applied, rejected, error).",
	}, []string{"op", "result"})

	RuleViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowcanvas_rule_violations_total",
		Help: "Total number of rejected edits, labelled by the structural rule that failed.",
	}, []string{"rule"})

	Runs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowcanvas_runs_total",
		Help: "Total number of run requests, labelled by final status.",
	}, []string{"status"})

	ChainExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowcanvas_chain_executions_total",
		Help: "Total number of chain executions, labelled by status.",
	}, []string{"status"})

	ChainDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "flowcanvas_chain_duration_ms",
		Help:    "Chain execution latency in milliseconds.",
		Buckets: []float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 15000, 60000, 300000},
	})

	QueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flowcanvas_dispatch_queue_utilization_ratio",
		Help: "Current chain dispatch queue utilization (0–1).",
	})

	Workspaces = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "flowcanvas_workspaces",
		Help: "Number of open workspaces.",
	})
)
