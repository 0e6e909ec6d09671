// Package metrics exposes prometheus counters for the notification flow.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements engine.SendCounter and records flow lifecycle
// events. One instance is shared by the whole process.
type Collector struct {
	FlowStarts    prometheus.Counter
	SendsTotal    prometheus.Counter
	SendFailures  prometheus.Counter
	MessagesTotal prometheus.Counter
}

func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		FlowStarts: factory.NewCounter(prometheus.CounterOpts{
			Name: "notifyflow_flow_starts_total",
			Help: "Notification flows started.",
		}),
		SendsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "notifyflow_sends_total",
			Help: "Successful notification sends.",
		}),
		SendFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "notifyflow_send_failures_total",
			Help: "Failed notification sends.",
		}),
		MessagesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "notifyflow_messages_total",
			Help: "Messages dispatched by successful sends.",
		}),
	}
}

func (c *Collector) FlowStarted() {
	c.FlowStarts.Inc()
}

func (c *Collector) SendSucceeded(messages int) {
	c.SendsTotal.Inc()
	c.MessagesTotal.Add(float64(messages))
}

func (c *Collector) SendFailed() {
	c.SendFailures.Inc()
}
