package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// poolCollector reads journal pool statistics on every scrape.
type poolCollector struct {
	pool *pgxpool.Pool

	acquired *prometheus.Desc
	idle     *prometheus.Desc
	total    *prometheus.Desc
	max      *prometheus.Desc
	acquires *prometheus.Desc
	waits    *prometheus.Desc
}

func newPoolDesc(name, help string) *prometheus.Desc {
	return prometheus.NewDesc("database_manager_journal_pool_"+name, help, nil, nil)
}

// RegisterPgxPoolMetrics exposes the journal pool's connection counts on reg.
func RegisterPgxPoolMetrics(reg prometheus.Registerer, pool *pgxpool.Pool) error {
	return reg.Register(&poolCollector{
		pool:     pool,
		acquired: newPoolDesc("acquired_conns", "Journal pool connections currently in use."),
		idle:     newPoolDesc("idle_conns", "Journal pool connections currently idle."),
		total:    newPoolDesc("total_conns", "Journal pool connections open."),
		max:      newPoolDesc("max_conns", "Journal pool size limit."),
		acquires: newPoolDesc("acquires_total", "Connections acquired from the journal pool."),
		waits:    newPoolDesc("empty_acquires_total", "Acquires that had to wait for a journal pool connection."),
	})
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{c.acquired, c.idle, c.total, c.max, c.acquires, c.waits} {
		ch <- d
	}
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.pool.Stat()
	ch <- prometheus.MustNewConstMetric(c.acquired, prometheus.GaugeValue, float64(st.AcquiredConns()))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(st.IdleConns()))
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(st.TotalConns()))
	ch <- prometheus.MustNewConstMetric(c.max, prometheus.GaugeValue, float64(st.MaxConns()))
	ch <- prometheus.MustNewConstMetric(c.acquires, prometheus.CounterValue, float64(st.AcquireCount()))
	ch <- prometheus.MustNewConstMetric(c.waits, prometheus.CounterValue, float64(st.EmptyAcquireCount()))
}
