// Package metrics holds the Prometheus collectors of the bot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Collector struct {
	inboundMessages      *prometheus.CounterVec
	transitions          *prometheus.CounterVec
	provisioningCalls    *prometheus.CounterVec
	provisioningDuration *prometheus.HistogramVec
	notifications        *prometheus.CounterVec
	reconciledChanges    *prometheus.CounterVec
	resyncRuns           *prometheus.CounterVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		inboundMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iptv_inbound_messages_total",
				Help: "Inbound chat messages by dispatch outcome",
			},
			[]string{"outcome"},
		),
		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iptv_conversation_transitions_total",
				Help: "Conversation state transitions",
			},
			[]string{"from", "to"},
		),
		provisioningCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iptv_provisioning_calls_total",
				Help: "Provider calls by operation and outcome",
			},
			[]string{"op", "outcome"},
		),
		provisioningDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "iptv_provisioning_call_duration_seconds",
				Help:    "Provider call duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 9), // 0.5s to ~2m
			},
			[]string{"op"},
		),
		notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iptv_payment_notifications_total",
				Help: "Payment notifications by correlation outcome",
			},
			[]string{"outcome"},
		),
		reconciledChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iptv_reconciled_changes_total",
				Help: "Account fields changed by reconciliation",
			},
			[]string{"field"},
		),
		resyncRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iptv_resync_accounts_total",
				Help: "Accounts processed by bulk resync by result",
			},
			[]string{"result"},
		),
	}
}

func (c *Collector) ObserveInbound(outcome string) {
	c.inboundMessages.WithLabelValues(outcome).Inc()
}

func (c *Collector) ObserveTransition(from, to string) {
	c.transitions.WithLabelValues(from, to).Inc()
}

func (c *Collector) ObserveProvisioningCall(op string, outcome string, seconds float64) {
	c.provisioningCalls.WithLabelValues(op, outcome).Inc()
	c.provisioningDuration.WithLabelValues(op).Observe(seconds)
}

func (c *Collector) ObserveNotification(outcome string) {
	c.notifications.WithLabelValues(outcome).Inc()
}

func (c *Collector) ObserveReconciledChanges(fields []string) {
	for _, field := range fields {
		c.reconciledChanges.WithLabelValues(field).Inc()
	}
}

// ObserveResync records the totals of one bulk resync run.
func (c *Collector) ObserveResync(succeeded, failed, notFound int) {
	c.resyncRuns.WithLabelValues("succeeded").Add(float64(succeeded))
	c.resyncRuns.WithLabelValues("failed").Add(float64(failed))
	c.resyncRuns.WithLabelValues("not_found").Add(float64(notFound))
}
