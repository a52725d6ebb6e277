package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce             sync.Once
	httpDurationHistogram    *prometheus.HistogramVec
	gatewayDurationHistogram *prometheus.HistogramVec
	gatewayRetryCounter      *prometheus.CounterVec
	webhookEventCounter      *prometheus.CounterVec
	ledgerTransitionCounter  *prometheus.CounterVec
	checkoutDocCounter       *prometheus.CounterVec
	workerRunCounter         *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		gatewayDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Outbound provider call latency by operation and result",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "result"})

		gatewayRetryCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_fallback_retries_total",
			Help: "Purchase retries issued with a substituted payment option",
		}, []string{"operation"})

		webhookEventCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Inbound provider notification outcomes",
		}, []string{"outcome"})

		ledgerTransitionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_transitions_total",
			Help: "Record state transitions applied by the ledger",
		}, []string{"from", "to"})

		checkoutDocCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkout_documents_total",
			Help: "Checkout document store events",
		}, []string{"event"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			gatewayDurationHistogram,
			gatewayRetryCounter,
			webhookEventCounter,
			ledgerTransitionCounter,
			checkoutDocCounter,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func ObserveGateway(operation, result string, duration time.Duration) {
	if gatewayDurationHistogram == nil {
		return
	}
	gatewayDurationHistogram.WithLabelValues(operation, result).Observe(duration.Seconds())
}

func IncrementGatewayRetry(operation string) {
	if gatewayRetryCounter == nil {
		return
	}
	gatewayRetryCounter.WithLabelValues(operation).Inc()
}

func IncrementWebhookEvent(outcome string) {
	if webhookEventCounter == nil {
		return
	}
	webhookEventCounter.WithLabelValues(outcome).Inc()
}

func IncrementLedgerTransition(from, to string) {
	if ledgerTransitionCounter == nil {
		return
	}
	ledgerTransitionCounter.WithLabelValues(from, to).Inc()
}

func IncrementCheckoutDoc(event string) {
	if checkoutDocCounter == nil {
		return
	}
	checkoutDocCounter.WithLabelValues(event).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
