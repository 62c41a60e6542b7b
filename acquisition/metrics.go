package acquisition

import (
	"strconv"

	"github.com/iwtcode/multiharpAdapter/models"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics счетчики прогона на собственном реестре. Сетевой экспорт не
// предусмотрен, реестр сохраняется в textfile через WriteTextfile.
// Методы безопасны для nil.
type Metrics struct {
	registry *prometheus.Registry

	cycles    prometheus.Counter
	overflows prometheus.Counter
	polls     prometheus.Counter
	counts    prometheus.Counter
	devices   prometheus.Gauge
	syncRate  prometheus.Gauge
	fetch     prometheus.Histogram
	cycle     prometheus.Histogram

	apiErrors  *prometheus.CounterVec
	countRates *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	cycles := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "multiharp_cycles_total",
		Help: "Measurement cycles completed.",
	})
	overflows := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "multiharp_overflow_cycles_total",
		Help: "Cycles that ended with the overflow flag set.",
	})
	polls := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "multiharp_ctc_polls_total",
		Help: "CTCStatus calls made while waiting for completion.",
	})
	counts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "multiharp_counts_total",
		Help: "Sum of all histogram counts fetched.",
	})
	devices := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "multiharp_devices_found",
		Help: "Devices opened during discovery.",
	})
	syncRate := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "multiharp_sync_rate_hz",
		Help: "Last sync rate read from the device.",
	})
	fetch := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "multiharp_fetch_duration_seconds",
		Help:    "Time spent reading histograms from the device.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
	})
	cycle := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "multiharp_cycle_duration_seconds",
		Help:    "Time from StartMeas to the end of the histogram fetch.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
	})
	apiErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "multiharp_api_errors_total",
		Help: "Failed MHLib calls by function name.",
	}, []string{"call"})
	countRates := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "multiharp_count_rate_hz",
		Help: "Last count rate per input channel.",
	}, []string{"channel"})

	reg := prometheus.NewRegistry()
	reg.MustRegister(cycles, overflows, polls, counts, devices, syncRate, fetch, cycle, apiErrors, countRates)

	return &Metrics{
		registry:   reg,
		cycles:     cycles,
		overflows:  overflows,
		polls:      polls,
		counts:     counts,
		devices:    devices,
		syncRate:   syncRate,
		fetch:      fetch,
		cycle:      cycle,
		apiErrors:  apiErrors,
		countRates: countRates,
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// WriteTextfile сохраняет текущее состояние в формате node_exporter textfile.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) apiError(call string) {
	if m == nil {
		return
	}
	m.apiErrors.WithLabelValues(call).Inc()
}

func (m *Metrics) devicesFound(n int) {
	if m == nil {
		return
	}
	m.devices.Set(float64(n))
}

func (m *Metrics) observeRates(r *models.Rates) {
	if m == nil {
		return
	}
	m.syncRate.Set(float64(r.SyncRate))
	for ch, rate := range r.CountRates {
		m.countRates.WithLabelValues(strconv.Itoa(ch)).Set(float64(rate))
	}
}

func (m *Metrics) polled(n int) {
	if m == nil {
		return
	}
	m.polls.Add(float64(n))
}

func (m *Metrics) cycleDone(rec *models.CycleRecord) {
	if m == nil {
		return
	}
	m.cycles.Inc()
	if rec.Overflow {
		m.overflows.Inc()
	}
	if rec.Matrix != nil {
		m.counts.Add(float64(rec.Matrix.Total()))
	}
	m.fetch.Observe(rec.Elapsed().Seconds())
	m.cycle.Observe(rec.CycleDuration().Seconds())
}
