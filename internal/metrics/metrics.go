package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters.
type Metrics struct {
	blocksScanned prometheus.Counter
	salesSaved    prometheus.Counter
	decodeErrors  prometheus.Counter
	errors        prometheus.Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// Init initializes global metrics (idempotent).
func Init() *Metrics {
	once.Do(func() {
		metrics = &Metrics{
			blocksScanned: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "salewatch_blocks_scanned_total",
				Help: "Total number of blocks scanned for fills",
			}),
			salesSaved: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "salewatch_sales_saved_total",
				Help: "Total number of sales delivered to sinks",
			}),
			decodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "salewatch_decode_errors_total",
				Help: "Total number of fills skipped because they could not be decoded",
			}),
			errors: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "salewatch_errors_total",
				Help: "Total number of errors encountered",
			}),
		}
		prometheus.MustRegister(
			metrics.blocksScanned,
			metrics.salesSaved,
			metrics.decodeErrors,
			metrics.errors,
		)
	})
	return metrics
}

// BlocksScanned adds n to the blocks scanned counter.
func (m *Metrics) BlocksScanned(n uint64) {
	if m != nil {
		m.blocksScanned.Add(float64(n))
	}
}

// SalesSaved increments the sales saved counter.
func (m *Metrics) SalesSaved() {
	if m != nil {
		m.salesSaved.Inc()
	}
}

// DecodeErrors increments the decode errors counter.
func (m *Metrics) DecodeErrors() {
	if m != nil {
		m.decodeErrors.Inc()
	}
}

// Errors increments the errors counter.
func (m *Metrics) Errors() {
	if m != nil {
		m.errors.Inc()
	}
}

// Handler returns an HTTP handler for /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
