// Package metrics provides Prometheus metrics for the grid trader.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// 周期指标
	CyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "grid_cycles_total",
		Help: "Completed maintenance cycles",
	})
	CycleErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "grid_cycle_errors_total",
		Help: "Cycles aborted by reconcile or gateway failures",
	})

	// 订单指标
	OrdersPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grid_orders_placed_total",
		Help: "Limit orders placed, by side",
	}, []string{"side"})
	OrdersCanceled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grid_orders_canceled_total",
		Help: "Orders canceled by the engine, by side",
	}, []string{"side"})
	FillsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grid_fills_total",
		Help: "Confirmed fills, by side",
	}, []string{"side"})
	OpenOrders = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "grid_open_orders",
		Help: "Orders currently resting in the mirror, by side",
	}, []string{"side"})

	// 对账指标
	ReconcileAdopted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "grid_reconcile_adopted_total",
		Help: "Out-of-band venue orders adopted into the mirror",
	})
	ReconcileUnresolved = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "grid_reconcile_unresolved",
		Help: "Orders left in unknown state after the last reconcile",
	})

	// 统计指标
	NetProfit = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "grid_net_profit",
		Help: "Realized profit in quote currency",
	})
	TotalBuys = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "grid_total_buys",
		Help: "Lifetime confirmed buy fills",
	})
	TotalSells = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "grid_total_sells",
		Help: "Lifetime confirmed sell fills",
	})

	// 市场与运行状态
	LastPrice = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "grid_last_price",
		Help: "Last reference price used for planning",
	})
	Paused = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "grid_paused",
		Help: "1 while the pause flag is present",
	})
	RESTLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "grid_rest_latency_seconds",
		Help:    "Venue REST call latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})
)

// IncrementOrdersPlaced side 为 buy/sell。
func IncrementOrdersPlaced(side string) {
	OrdersPlaced.WithLabelValues(side).Inc()
}

func IncrementOrdersCanceled(side string) {
	OrdersCanceled.WithLabelValues(side).Inc()
}

func IncrementFills(side string) {
	FillsTotal.WithLabelValues(side).Inc()
}

// UpdateMirror 更新两侧在挂订单数。
func UpdateMirror(buys, sells int) {
	OpenOrders.WithLabelValues("buy").Set(float64(buys))
	OpenOrders.WithLabelValues("sell").Set(float64(sells))
}

// UpdateStatistics 同步累计统计。
func UpdateStatistics(totalBuys, totalSells int, netProfit float64) {
	TotalBuys.Set(float64(totalBuys))
	TotalSells.Set(float64(totalSells))
	NetProfit.Set(netProfit)
}

// SetPaused 记录暂停状态。
func SetPaused(paused bool) {
	if paused {
		Paused.Set(1)
		return
	}
	Paused.Set(0)
}

// ObserveRESTLatency 记录一次网关调用耗时。
func ObserveRESTLatency(op string, seconds float64) {
	RESTLatency.WithLabelValues(op).Observe(seconds)
}

// StartMetricsServer 启动Prometheus指标服务器
func StartMetricsServer(addr string) {
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		_ = http.ListenAndServe(addr, nil)
	}()
}
