package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "gopherbook"

var (
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_total",
			Help:      "Orders applied to books, by action and result.",
		},
		[]string{"symbol", "action", "result"}, // result: ok/rejected
	)

	TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Fills produced by crossing policies.",
		},
		[]string{"symbol"},
	)

	MailboxFullTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mailbox_full_total",
			Help:      "Submissions rejected because the instrument mailbox was full.",
		},
		[]string{"symbol"},
	)

	BatchSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "actor_batch_size",
			Help:      "Commands drained per actor batch.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10), // 1 ~ 512
		},
		[]string{"symbol"},
	)

	BookLevels = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "book_levels",
			Help:      "Price levels in the latest published snapshot, per side.",
		},
		[]string{"symbol", "side"},
	)

	ParseErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_errors_total",
			Help:      "Instructions dropped by the decoder.",
		},
		[]string{"symbol"},
	)

	RateLimitBlockTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_block_total",
			Help:      "Total number of rate limit blocks.",
		},
		[]string{"symbol", "reason"},
	)

	SessionsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Open ingestion connections.",
		},
		[]string{"symbol"},
	)

	CBRejectTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuitbreaker_reject_total",
			Help:      "Total number of circuit breaker rejections.",
		},
		[]string{"name", "reason"},
	)

	CBState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuitbreaker_state",
			Help:      "Circuit breaker state (0/1).",
		},
		[]string{"name", "state"}, // state: closed/open/half_open
	)
)

func MustRegister() {
	prometheus.MustRegister(
		OrdersTotal, TradesTotal, MailboxFullTotal, BatchSize, BookLevels,
		ParseErrorsTotal, RateLimitBlockTotal, SessionsActive,
		CBRejectTotal, CBState,
	)
}
