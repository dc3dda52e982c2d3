package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	CodesIssued     prometheus.Counter
	Activations     prometheus.Counter
	ReferralCredits prometheus.Counter
	Logins          prometheus.Counter
}

// New registers the pipeline counters on the given registerer. Tests pass a
// fresh registry so repeated construction never double-registers.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		CodesIssued: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "account_verification_codes_issued_total",
			Help: "Total number of one-time verification codes issued",
		}),
		Activations: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "account_activations_total",
			Help: "Total number of successful account activations",
		}),
		ReferralCredits: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "account_referral_credits_total",
			Help: "Total number of referral rewards credited",
		}),
		Logins: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "account_logins_total",
			Help: "Total number of successful logins",
		}),
	}
}
