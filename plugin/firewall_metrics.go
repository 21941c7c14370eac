package plugin

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

var (
	fwAppliesDesc = prom.NewDesc(
		"hafw_firewall_applies_total",
		"Number of successfully applied firewall rulesets",
		[]string{"mode"}, nil,
	)
	fwFailuresDesc = prom.NewDesc(
		"hafw_firewall_apply_failures_total",
		"Number of failed firewall apply sequences by stage",
		[]string{"stage"}, nil,
	)
	fwBlockActiveDesc = prom.NewDesc(
		"hafw_firewall_block_active",
		"Whether the VIP drop ruleset is the last successfully applied one",
		nil, nil,
	)
	fwLastApplyDesc = prom.NewDesc(
		"hafw_firewall_last_apply_timestamp_seconds",
		"Unix time of the last successful firewall apply",
		nil, nil,
	)
)

type firewallMetrics struct {
	mu          sync.Mutex
	applies     map[string]uint64
	failures    map[string]uint64
	blockActive bool
	lastApply   time.Time
}

var fwMetrics = &firewallMetrics{
	applies:  make(map[string]uint64),
	failures: make(map[string]uint64),
}

func (m *firewallMetrics) recordApply(drop bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mode := "acceptall"
	if drop {
		mode = "dropall"
	}
	m.applies[mode]++
	m.blockActive = drop
	m.lastApply = time.Now()
}

func (m *firewallMetrics) recordFailure(stage string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failures[stage]++
}

func (m *firewallMetrics) Describe(ch chan<- *prom.Desc) error {
	ch <- fwAppliesDesc
	ch <- fwFailuresDesc
	ch <- fwBlockActiveDesc
	ch <- fwLastApplyDesc
	return nil
}

func (m *firewallMetrics) Update(ch chan<- prom.Metric) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for mode, n := range m.applies {
		ch <- prom.MustNewConstMetric(fwAppliesDesc, prom.CounterValue, float64(n), mode)
	}
	for stage, n := range m.failures {
		ch <- prom.MustNewConstMetric(fwFailuresDesc, prom.CounterValue, float64(n), stage)
	}

	active := 0.0
	if m.blockActive {
		active = 1.0
	}
	ch <- prom.MustNewConstMetric(fwBlockActiveDesc, prom.GaugeValue, active)

	if !m.lastApply.IsZero() {
		ch <- prom.MustNewConstMetric(fwLastApplyDesc, prom.GaugeValue, float64(m.lastApply.Unix()))
	}

	return nil
}
