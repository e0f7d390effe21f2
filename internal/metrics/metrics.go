// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"sync"
	"time"

	"github.com/homevue/staging-engine/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	initOnce sync.Once

	runsTotalCounter          *prometheus.CounterVec
	stageAttemptsCounter      *prometheus.CounterVec
	validationViolationsVec   *prometheus.CounterVec
	dispatchDurationMetric    prometheus.Histogram
	validationDurationMetric  prometheus.Histogram
	duplicateCallbacksCounter prometheus.Counter
	stageRetriesCounter       prometheus.Counter
)

const (
	AttemptAdvanced  = "advanced"
	AttemptRetried   = "retried"
	AttemptFatal     = "fatal"
	AttemptCompleted = "completed"
)

// Init registers metrics on the default Prometheus registry exactly once.
func Init() {
	initOnce.Do(func() {
		runsTotalCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "staging_runs_total",
				Help: "Total number of staging run status transitions by status.",
			},
			[]string{"status"},
		)

		stageAttemptsCounter = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "staging_stage_attempts_total",
				Help: "Total number of stage attempt outcomes by outcome.",
			},
			[]string{"outcome"},
		)

		validationViolationsVec = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "staging_validation_violations_total",
				Help: "Total number of validation violations by tag.",
			},
			[]string{"violation"},
		)

		dispatchDurationMetric = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "staging_provider_dispatch_duration_seconds",
				Help:    "Duration of provider dispatch calls in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		)

		validationDurationMetric = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "staging_validation_duration_seconds",
				Help:    "Duration of stage validation in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		)

		duplicateCallbacksCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "staging_duplicate_callbacks_total",
				Help: "Total number of provider callbacks ignored as duplicates.",
			},
		)

		stageRetriesCounter = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "staging_stage_retries_total",
				Help: "Total number of corrective stage retries dispatched.",
			},
		)

		prometheus.MustRegister(
			runsTotalCounter,
			stageAttemptsCounter,
			validationViolationsVec,
			dispatchDurationMetric,
			validationDurationMetric,
			duplicateCallbacksCounter,
			stageRetriesCounter,
		)

		// Ensure counter vectors are visible at /metrics before first increment.
		for _, status := range []domain.RunStatus{
			domain.RunPending,
			domain.RunRunning,
			domain.RunCompleted,
			domain.RunFailed,
		} {
			runsTotalCounter.WithLabelValues(string(status))
		}

		for _, outcome := range []string{
			AttemptAdvanced,
			AttemptRetried,
			AttemptFatal,
			AttemptCompleted,
		} {
			stageAttemptsCounter.WithLabelValues(outcome)
		}

		for _, violation := range []domain.Violation{
			domain.ViolationWallDecorPresent,
			domain.ViolationWindowTreatmentPresent,
			domain.ViolationCirculationBlocked,
			domain.ViolationColorDrift,
			domain.ViolationItemCountOutOfRange,
		} {
			validationViolationsVec.WithLabelValues(string(violation))
		}
	})
}

func IncRunStatus(status domain.RunStatus) {
	Init()
	runsTotalCounter.WithLabelValues(string(status)).Inc()
}

func IncStageAttempt(outcome string) {
	Init()
	stageAttemptsCounter.WithLabelValues(outcome).Inc()
}

func IncValidationViolation(v domain.Violation) {
	Init()
	validationViolationsVec.WithLabelValues(string(v)).Inc()
}

func ObserveDispatchDuration(d time.Duration) {
	Init()
	dispatchDurationMetric.Observe(d.Seconds())
}

func ObserveValidationDuration(d time.Duration) {
	Init()
	validationDurationMetric.Observe(d.Seconds())
}

func IncDuplicateCallbacks() {
	Init()
	duplicateCallbacksCounter.Inc()
}

func IncStageRetries() {
	Init()
	stageRetriesCounter.Inc()
}
