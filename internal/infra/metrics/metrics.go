package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"receiptd/internal/domain"
	"receiptd/internal/usecase"
)

const (
	// ResultAccepted indicates a receipt that verified
	ResultAccepted = "accepted"
	// ResultRejected indicates a receipt that was rejected with a reason
	ResultRejected = "rejected"
	// ResultError indicates a system error during verification or fetching
	ResultError = "error"
	// ResultSuccess indicates a successful key set fetch
	ResultSuccess = "success"

	ResultHit  = "hit"
	ResultMiss = "miss"
)

var (
	// VerificationsTotal counts verifications by outcome. reason is the
	// rejection reason or the error code.
	VerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "receiptd_verifications_total",
			Help: "Total number of receipt verifications",
		},
		[]string{"result", "reason"},
	)

	VerificationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "receiptd_verification_duration_seconds",
			Help:    "Duration of receipt verification in seconds, including key set lookup",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"result"},
	)

	KeySetFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "receiptd_keyset_fetch_total",
			Help: "Total number of remote key set fetches",
		},
		[]string{"result"}, // result: success, error
	)

	KeySetCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "receiptd_keyset_cache_total",
			Help: "Total number of key set cache lookups",
		},
		[]string{"result"}, // result: hit, miss
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "receiptd_http_requests_total",
			Help: "Total number of HTTP requests by route and status",
		},
		[]string{"route", "status"},
	)
)

// ObserveVerification records the outcome of one verification.
func ObserveVerification(verdict domain.Verdict, err error, elapsed time.Duration) {
	result, reason := ResultAccepted, ""
	switch {
	case err != nil:
		result, reason = ResultError, domain.ErrorCode(err)
	case !verdict.OK:
		result, reason = ResultRejected, verdict.Reason
	}
	VerificationsTotal.WithLabelValues(result, reason).Inc()
	VerificationDuration.WithLabelValues(result).Observe(elapsed.Seconds())
}

// KeySet adapts the key set counters to usecase.KeySetMetrics.
type KeySet struct{}

var _ usecase.KeySetMetrics = KeySet{}

func (KeySet) ObserveCache(hit bool) {
	if hit {
		KeySetCacheTotal.WithLabelValues(ResultHit).Inc()
		return
	}
	KeySetCacheTotal.WithLabelValues(ResultMiss).Inc()
}

func (KeySet) ObserveFetch(err error) {
	if err != nil {
		KeySetFetchTotal.WithLabelValues(ResultError).Inc()
		return
	}
	KeySetFetchTotal.WithLabelValues(ResultSuccess).Inc()
}
