package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"arbitron/internal/model"
	"arbitron/internal/risk"
)

// Metrics holds the bot's collectors on a dedicated registry.
type Metrics struct {
	Registry *prometheus.Registry

	Scans          prometheus.Counter
	ScanErrors     prometheus.Counter
	Opportunities  *prometheus.CounterVec
	Trades         *prometheus.CounterVec
	DailyProfit    prometheus.Gauge
	DailyLoss      prometheus.Gauge
	Halted         prometheus.Gauge
	FetchLatency   *prometheus.HistogramVec
	FetchErrors    *prometheus.CounterVec
	BacktestTrades prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Scans: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arbitron_scans_total",
			Help: "Completed scan iterations",
		}),
		ScanErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arbitron_scan_errors_total",
			Help: "Scan iterations that ended in an error",
		}),
		Opportunities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbitron_opportunities_total",
			Help: "Detected opportunities by kind",
		}, []string{"kind"}),
		Trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbitron_trades_total",
			Help: "Dispatched trades by status",
		}, []string{"status"}),
		DailyProfit: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arbitron_daily_profit",
			Help: "Cumulative realized profit of the current UTC day",
		}),
		DailyLoss: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arbitron_daily_loss",
			Help: "Cumulative realized loss of the current UTC day",
		}),
		Halted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arbitron_risk_halted",
			Help: "1 while the risk governor refuses executions",
		}),
		FetchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "arbitron_quote_fetch_seconds",
			Help:    "Time to obtain one quote",
			Buckets: prometheus.DefBuckets,
		}, []string{"venue"}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arbitron_quote_fetch_errors_total",
			Help: "Quote fetches that failed",
		}, []string{"venue"}),
		BacktestTrades: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "arbitron_backtest_trades",
			Help:    "Trades per backtest run",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Scans,
		m.ScanErrors,
		m.Opportunities,
		m.Trades,
		m.DailyProfit,
		m.DailyLoss,
		m.Halted,
		m.FetchLatency,
		m.FetchErrors,
		m.BacktestTrades,
	)
	return m
}

// ObserveFetch implements marketdata.FetchObserver.
func (m *Metrics) ObserveFetch(venue string, d time.Duration, err error) {
	m.FetchLatency.WithLabelValues(venue).Observe(d.Seconds())
	if err != nil {
		m.FetchErrors.WithLabelValues(venue).Inc()
	}
}

func (m *Metrics) ObserveOpportunities(opps []model.Opportunity) {
	for _, o := range opps {
		m.Opportunities.WithLabelValues(string(o.Kind)).Inc()
	}
}

func (m *Metrics) ObserveTrade(rec model.TradeRecord) {
	m.Trades.WithLabelValues(string(rec.Status)).Inc()
}

// ObserveRisk mirrors the governor state.
func (m *Metrics) ObserveRisk(st risk.State) {
	m.DailyProfit.Set(st.Entry.CumulativeProfit)
	m.DailyLoss.Set(st.Entry.CumulativeLoss)
	if st.Status == risk.StatusHalted {
		m.Halted.Set(1)
	} else {
		m.Halted.Set(0)
	}
}
