package o11y

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are gauges because each run overwrites the previous values in the
// textfile.
type Metrics struct {
	RowsLoaded    prometheus.Gauge
	RowsDropped   prometheus.Gauge
	NullValues    *prometheus.GaugeVec
	DuplicateIDs  prometheus.Gauge
	ChurnRate     prometheus.Gauge
	GroupRate     *prometheus.GaugeVec
	StageDuration *prometheus.GaugeVec
	LastRun       prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RowsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "churn_rows_loaded",
			Help: "Rows read from the input file",
		}),
		RowsDropped: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "churn_rows_dropped",
			Help: "Rows removed for containing null values",
		}),
		NullValues: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "churn_null_values",
			Help: "Null values per column before cleaning",
		}, []string{"column"}),
		DuplicateIDs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "churn_duplicate_customer_ids",
			Help: "Distinct CustomerID values that appear more than once",
		}),
		ChurnRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "churn_rate_percent",
			Help: "Overall churn rate in percent",
		}),
		GroupRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "churn_group_rate",
			Help: "Mean churn per group",
		}, []string{"group_key", "key"}),
		StageDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "churn_stage_duration_seconds",
			Help: "Wall time of each pipeline stage",
		}, []string{"stage"}),
		LastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "churn_last_run_timestamp_seconds",
			Help: "Unix time the last run finished",
		}),
	}
	reg.MustRegister(
		m.RowsLoaded,
		m.RowsDropped,
		m.NullValues,
		m.DuplicateIDs,
		m.ChurnRate,
		m.GroupRate,
		m.StageDuration,
		m.LastRun,
	)
	return m
}

// WriteTextfile dumps the registry in the node_exporter textfile format.
func (o *Observability) WriteTextfile(path string) error {
	o.Metrics.LastRun.SetToCurrentTime()
	return prometheus.WriteToTextfile(path, o.Registry)
}
