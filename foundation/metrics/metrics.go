// Package metrics records what the node is doing with prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "powchain"

// Node tracks the mining, mempool, and chain metrics for a node. It
// implements the state.Metrics interface.
type Node struct {
	miningTotal    *prometheus.CounterVec
	miningDuration *prometheus.HistogramVec
	miningAttempts prometheus.Counter
	admissions     *prometheus.CounterVec
	mempoolSize    prometheus.Gauge
	chainHeight    prometheus.Gauge
}

// New constructs the collectors and registers them with reg. A nil reg uses
// the default registerer.
func New(reg prometheus.Registerer) *Node {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Node{
		miningTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mining",
			Name:      "runs_total",
			Help:      "Count of mining runs by outcome.",
		}, []string{"outcome"}),

		miningDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "mining",
			Name:      "duration_seconds",
			Help:      "Duration of mining runs.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"outcome"}),

		miningAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mining",
			Name:      "hashes_total",
			Help:      "Count of header hashes computed while mining.",
		}),

		admissions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mempool",
			Name:      "admissions_total",
			Help:      "Count of transaction submissions by outcome.",
		}, []string{"outcome"}),

		mempoolSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mempool",
			Name:      "transactions",
			Help:      "Number of transactions in the mempool.",
		}),

		chainHeight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "height",
			Help:      "Height of the latest block.",
		}),
	}
}

// ObserveMining records a mining run.
func (n *Node) ObserveMining(attempts uint64, duration time.Duration, outcome string) {
	n.miningTotal.WithLabelValues(outcome).Inc()
	n.miningDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	n.miningAttempts.Add(float64(attempts))
}

// ObserveAdmission records the outcome of a mempool submission.
func (n *Node) ObserveAdmission(outcome string) {
	n.admissions.WithLabelValues(outcome).Inc()
}

// SetMempoolSize records the number of pooled transactions.
func (n *Node) SetMempoolSize(size int) {
	n.mempoolSize.Set(float64(size))
}

// SetChainHeight records the height of the latest block.
func (n *Node) SetChainHeight(height uint64) {
	n.chainHeight.Set(float64(height))
}
