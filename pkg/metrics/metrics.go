package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ContractsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "contracting", Name: "contracts_created_total", Help: "Number of contracts created."},
	)
	ContractSaves = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "contracting", Name: "contract_saves_total", Help: "Number of successful contract saves (revision appends)."},
	)
	SaveConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "contracting", Name: "contract_save_conflicts_total", Help: "Number of optimistic-concurrency conflicts on save."},
	)
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "contracting", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "contracting", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(ContractsCreated)
	reg.MustRegister(ContractSaves)
	reg.MustRegister(SaveConflicts)
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
}
