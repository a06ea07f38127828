package caseflow

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caseflow_runs_total",
			Help: "Workflow runs by terminal status.",
		},
		[]string{"status"},
	)

	runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "caseflow_run_duration_seconds",
			Help:    "End-to-end run duration by terminal status.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)

	abilityInvocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caseflow_ability_invocations_total",
			Help: "Ability dispatches by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	abilityRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "caseflow_ability_retries_total",
			Help: "Transport retries by provider.",
		},
		[]string{"provider"},
	)

	abilityDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "caseflow_ability_duration_seconds",
			Help:    "Ability dispatch duration by provider, retries included.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"provider"},
	)
)

func init() {
	prometheus.MustRegister(runsTotal, runDuration, abilityInvocations, abilityRetries, abilityDuration)

	for _, status := range []string{string(StatusCompleted), string(StatusEscalatedCompleted)} {
		runsTotal.WithLabelValues(status)
		runDuration.WithLabelValues(status)
	}
	for _, p := range []string{"COMMON", "ATLAS"} {
		for _, outcome := range []string{OutcomeOK, OutcomeFallback, OutcomeFailed} {
			abilityInvocations.WithLabelValues(p, outcome)
		}
		abilityRetries.WithLabelValues(p)
		abilityDuration.WithLabelValues(p)
	}
}

func observeRun(status string, d time.Duration) {
	runsTotal.WithLabelValues(status).Inc()
	runDuration.WithLabelValues(status).Observe(d.Seconds())
}

func observeInvocation(provider, outcome string) {
	abilityInvocations.WithLabelValues(provider, outcome).Inc()
}

func observeRetry(provider string) {
	abilityRetries.WithLabelValues(provider).Inc()
}

func observeInvokeDuration(provider string, d time.Duration) {
	abilityDuration.WithLabelValues(provider).Observe(d.Seconds())
}
