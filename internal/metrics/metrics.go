// Package metrics exposes the Prometheus collectors of bollette. Every
// helper is a no-op until Init has run, so tests and the CLI can skip it.
package metrics

import (
	"database/sql"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const metricPrefix = "bollette_"

var (
	registerOnce sync.Once

	billOperations      *prometheus.CounterVec
	paymentsRecorded    *prometheus.CounterVec
	summaryCache        *prometheus.CounterVec
	summaryLatency      prometheus.Histogram
	skippedBills        prometheus.Counter
	amqpPublishFailures prometheus.Counter
	ledgerMirrored      *prometheus.CounterVec
	httpLatency         *prometheus.HistogramVec
	securityEvents      *prometheus.CounterVec
)

// Init registers the collectors with the default registry. db may be nil.
func Init(db *sql.DB) {
	registerOnce.Do(func() {
		billOperations = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "bill_operations_total",
				Help: "Bill create/update/delete operations",
			},
			[]string{"operation"},
		)
		paymentsRecorded = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "payments_recorded_total",
				Help: "Payments recorded, by whether a ledger entry was generated",
			},
			[]string{"ledgered"},
		)
		summaryCache = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "summary_cache_total",
				Help: "Summary cache lookups by result",
			},
			[]string{"result"},
		)
		summaryLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "summary_duration_seconds",
				Help:    "Time to classify an owner's bills",
				Buckets: prometheus.DefBuckets,
			},
		)
		skippedBills = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "skipped_bills_total",
				Help: "Bills left out of a summary because their rule could not be evaluated",
			},
		)
		amqpPublishFailures = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "amqp_publish_failures_total",
				Help: "bill_paid messages that could not be published",
			},
		)
		ledgerMirrored = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ledger_mirrored_total",
				Help: "Ledger entries mirrored to the spreadsheet by result",
			},
			[]string{"result"},
		)
		httpLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "http_request_duration_seconds",
				Help:    "HTTP request latency by route and status",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		)

		securityEvents = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "http_security_events_total",
				Help: "Rate limited and suspicious HTTP requests",
			},
			[]string{"event"},
		)

		prometheus.MustRegister(
			billOperations,
			paymentsRecorded,
			summaryCache,
			summaryLatency,
			skippedBills,
			amqpPublishFailures,
			ledgerMirrored,
			httpLatency,
			securityEvents,
		)
		if db != nil {
			prometheus.MustRegister(collectors.NewDBStatsCollector(db, "bollette"))
		}
	})
}

func IncBillOperation(op string) {
	if billOperations != nil {
		billOperations.WithLabelValues(op).Inc()
	}
}

func IncPaymentRecorded(ledgered bool) {
	if paymentsRecorded != nil {
		paymentsRecorded.WithLabelValues(strconv.FormatBool(ledgered)).Inc()
	}
}

func IncSummaryCache(hit bool) {
	if summaryCache == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	summaryCache.WithLabelValues(result).Inc()
}

func ObserveSummary(d time.Duration) {
	if summaryLatency != nil {
		summaryLatency.Observe(d.Seconds())
	}
}

func AddSkippedBills(n int) {
	if skippedBills != nil && n > 0 {
		skippedBills.Add(float64(n))
	}
}

func IncAMQPPublishFailure() {
	if amqpPublishFailures != nil {
		amqpPublishFailures.Inc()
	}
}

func IncLedgerMirrored(success bool) {
	if ledgerMirrored == nil {
		return
	}
	result := "success"
	if !success {
		result = "error"
	}
	ledgerMirrored.WithLabelValues(result).Inc()
}

func ObserveHTTP(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	if httpLatency != nil {
		httpLatency.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
	}
}

// IncSecurityEvent counts a rejected or flagged request, e.g. "rate_limited".
func IncSecurityEvent(event string) {
	if securityEvents != nil {
		securityEvents.WithLabelValues(event).Inc()
	}
}
