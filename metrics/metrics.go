package metrics

import "github.com/prometheus/client_golang/prometheus"

type Observer interface {
	Observe(val float64, labels ...string)

	// Tightly coupled to the prometheus collector type for registration.
	prometheus.Collector
}

type Metrics struct {
	ConsoleLines    Observer
	CommandCount    Observer
	ChatReceived    Observer
	ChatSent        Observer
	SellCount       Observer
	ReconnectCount  Observer
	SessionErrors   Observer
	DepositedItems  Observer
	ConnectLatency  Observer
	SessionDuration Observer
}

func (m Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ConsoleLines,
		m.CommandCount,
		m.ChatReceived,
		m.ChatSent,
		m.SellCount,
		m.ReconnectCount,
		m.SessionErrors,
		m.DepositedItems,
		m.ConnectLatency,
		m.SessionDuration,
	}
}

// Nop returns metrics that discard observations, for tests and for running
// without the HTTP API.
func Nop() *Metrics {
	return &Metrics{
		ConsoleLines:    nop{},
		CommandCount:    nop{},
		ChatReceived:    nop{},
		ChatSent:        nop{},
		SellCount:       nop{},
		ReconnectCount:  nop{},
		SessionErrors:   nop{},
		DepositedItems:  nop{},
		ConnectLatency:  nop{},
		SessionDuration: nop{},
	}
}

type nop struct{}

func (nop) Observe(float64, ...string)       {}
func (nop) Describe(chan<- *prometheus.Desc) {}
func (nop) Collect(chan<- prometheus.Metric) {}
