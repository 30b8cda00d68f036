package metrics

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tapearn"

var (
	rewardCounter        *prometheus.CounterVec
	rewardEventCounter   *prometheus.CounterVec
	distributionFailures *prometheus.CounterVec
	distributionRetries  prometheus.Counter
	applyCounter         *prometheus.CounterVec
	codeCounter          prometheus.Counter
	integrityGauge       *prometheus.GaugeVec
	xpCounter            *prometheus.CounterVec
	// Call counters for each api route
	apiRequestCallCounter *prometheus.CounterVec
	// Total time spent per api route
	apiRequestTimeCounter *prometheus.CounterVec

	once     sync.Once
	setupErr error
)

// Setup registers the collectors with the default registry. Until it is
// called every helper in this package is a no-op.
func Setup() error {
	once.Do(func() {
		setupErr = setupMetrics()
	})
	return setupErr
}

// Handler serves the default registry in the text exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

func setupMetrics() error {
	rc := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "referral_rewards_xp_total",
		Help:      "XP credited to ancestors by tier",
	}, []string{"tier"})
	rec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "referral_rewards_total",
		Help:      "Number of referral reward credits by tier",
	}, []string{"tier"})
	df := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "referral_distribution_failures_total",
		Help:      "Reward distributions abandoned after retries",
	}, []string{"reason"})
	dr := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "referral_distribution_retries_total",
		Help:      "Extra attempts spent on transient storage conflicts",
	})
	ac := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "referral_apply_total",
		Help:      "Referral code applications by outcome",
	}, []string{"outcome"})
	cc := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "referral_codes_issued_total",
		Help:      "Referral code requests served",
	})
	ig := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "referral_integrity_findings",
		Help:      "Findings of the last integrity check by kind",
	}, []string{"kind"})
	xc := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "xp_earned_total",
		Help:      "XP earned by players by source",
	}, []string{"source"})
	arc := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "request_count_total",
		Help:      "Count of API requests",
	}, []string{"route", "status"})
	art := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "request_time_total",
		Help:      "Total time spent in each API request",
	}, []string{"route"})

	for _, col := range []prometheus.Collector{rc, rec, df, dr, ac, cc, ig, xc, arc, art} {
		if err := prometheus.Register(col); err != nil {
			return err
		}
	}

	rewardCounter = rc
	rewardEventCounter = rec
	distributionFailures = df
	distributionRetries = dr
	applyCounter = ac
	codeCounter = cc
	integrityGauge = ig
	xpCounter = xc
	apiRequestCallCounter = arc
	apiRequestTimeCounter = art
	return nil
}

// RewardDistributedAdd records one credit of amount XP at tier
func RewardDistributedAdd(tier int, amount int64) {
	if rewardCounter == nil || rewardEventCounter == nil {
		return
	}
	label := strconv.Itoa(tier)
	rewardCounter.WithLabelValues(label).Add(float64(amount))
	rewardEventCounter.WithLabelValues(label).Inc()
}

func DistributionFailureInc(reason string) {
	if distributionFailures == nil {
		return
	}
	distributionFailures.WithLabelValues(reason).Inc()
}

func DistributionRetriesAdd(n int) {
	if distributionRetries == nil {
		return
	}
	distributionRetries.Add(float64(n))
}

func ReferralApplyInc(outcome string) {
	if applyCounter == nil {
		return
	}
	applyCounter.WithLabelValues(outcome).Inc()
}

func CodeIssuedInc() {
	if codeCounter == nil {
		return
	}
	codeCounter.Inc()
}

// IntegrityFindingsSet stores the result of the last integrity check
func IntegrityFindingsSet(kind string, n int) {
	if integrityGauge == nil {
		return
	}
	integrityGauge.WithLabelValues(kind).Set(float64(n))
}

func XPEarnedAdd(source string, amount int64) {
	if xpCounter == nil {
		return
	}
	xpCounter.WithLabelValues(source).Add(float64(amount))
}

// APIRequestAndTime updates the metrics for api calls
func APIRequestAndTime(route string, status int, seconds float64) {
	if apiRequestCallCounter == nil || apiRequestTimeCounter == nil {
		return
	}
	apiRequestCallCounter.WithLabelValues(route, strconv.Itoa(status)).Inc()
	apiRequestTimeCounter.WithLabelValues(route).Add(seconds)
}
