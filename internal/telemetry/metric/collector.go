// Package metric provides Prometheus metrics for credvault.
package metric

import "github.com/prometheus/client_golang/prometheus"

// VaultStat is a point-in-time view of one open vault.
type VaultStat struct {
	Path      string
	Records   int
	SizeBytes int64
}

// Collector reports gauges for open vaults at scrape time.
type Collector struct {
	source func() []VaultStat

	records *prometheus.Desc
	size    *prometheus.Desc
}

// NewCollector creates a collector reading stats from source.
func NewCollector(source func() []VaultStat) *Collector {
	return &Collector{
		source: source,
		records: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "vault", "records"),
			"Records stored in an open vault.",
			[]string{"path"}, nil,
		),
		size: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "vault", "size_bytes"),
			"Size of an open vault file.",
			[]string{"path"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.records
	ch <- c.size
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.source == nil {
		return
	}
	for _, st := range c.source() {
		ch <- prometheus.MustNewConstMetric(c.records, prometheus.GaugeValue, float64(st.Records), st.Path)
		ch <- prometheus.MustNewConstMetric(c.size, prometheus.GaugeValue, float64(st.SizeBytes), st.Path)
	}
}
