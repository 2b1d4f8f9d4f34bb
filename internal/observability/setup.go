// Package observability holds the process-wide metrics aggregator. Counters
// are deliberately ephemeral: they are recomputable process state with no
// persistence contract.
package observability

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

var (
	// Global logger instance
	Logger *zap.Logger

	checksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "moderation_checks_total",
			Help: "Total number of messages checked",
		},
	)

	violationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_violations_total",
			Help: "Total number of violations detected",
		},
		[]string{"source", "group"},
	)

	bansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_bans_total",
			Help: "Total number of suspensions issued",
		},
		[]string{"group", "tier"},
	)

	classifyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "classification_duration_seconds",
			Help:    "Time spent classifying messages",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
)

var initOnce sync.Once

// Init is idempotent: a restarted run must not re-register collectors or
// start a second metrics listener.
func Init(ctx context.Context, listenAddr string) error {
	var err error
	initOnce.Do(func() {
		Logger, err = zap.NewProduction()
		if err != nil {
			return
		}

		prometheus.MustRegister(checksTotal)
		prometheus.MustRegister(violationsTotal)
		prometheus.MustRegister(bansTotal)
		prometheus.MustRegister(classifyDuration)

		tp := trace.NewTracerProvider()
		otel.SetTracerProvider(tp)

		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(listenAddr, nil); err != nil {
				log.WithError(err).Error("metrics server failed")
			}
		}()
	})
	return err
}

// RecordCheck counts one inspected message.
func RecordCheck() {
	checksTotal.Inc()
}

// RecordViolation counts a detected violation by source ("local" or "remote").
func RecordViolation(source, group string) {
	violationsTotal.WithLabelValues(source, group).Inc()
}

// RecordBan counts an issued suspension.
func RecordBan(group, tier string) {
	bansTotal.WithLabelValues(group, tier).Inc()
}

// StartClassification returns a function to record classification duration
// under the final outcome label.
func StartClassification() func(outcome string) {
	start := time.Now()
	return func(outcome string) {
		classifyDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}
}
