package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMirrorMetrics(t *testing.T) {
	OpenOrders.Reset()

	UpdateMirror(3, 2)

	if got := testutil.ToFloat64(OpenOrders.WithLabelValues("buy")); got != 3 {
		t.Errorf("OpenOrders[buy] = %f, want 3", got)
	}
	if got := testutil.ToFloat64(OpenOrders.WithLabelValues("sell")); got != 2 {
		t.Errorf("OpenOrders[sell] = %f, want 2", got)
	}
}

func TestStatisticsMetrics(t *testing.T) {
	NetProfit.Set(0)
	TotalBuys.Set(0)
	TotalSells.Set(0)

	UpdateStatistics(7, 5, 12.5)

	if got := testutil.ToFloat64(TotalBuys); got != 7 {
		t.Errorf("TotalBuys = %f, want 7", got)
	}
	if got := testutil.ToFloat64(TotalSells); got != 5 {
		t.Errorf("TotalSells = %f, want 5", got)
	}
	if got := testutil.ToFloat64(NetProfit); got != 12.5 {
		t.Errorf("NetProfit = %f, want 12.5", got)
	}
}

func TestIncrementFunctions(t *testing.T) {
	OrdersPlaced.Reset()
	OrdersCanceled.Reset()
	FillsTotal.Reset()

	IncrementOrdersPlaced("buy")
	IncrementOrdersPlaced("buy")
	IncrementOrdersCanceled("sell")
	IncrementFills("buy")

	if got := testutil.ToFloat64(OrdersPlaced.WithLabelValues("buy")); got != 2 {
		t.Errorf("OrdersPlaced[buy] = %f, want 2", got)
	}
	if got := testutil.ToFloat64(OrdersCanceled.WithLabelValues("sell")); got != 1 {
		t.Errorf("OrdersCanceled[sell] = %f, want 1", got)
	}
	if got := testutil.ToFloat64(FillsTotal.WithLabelValues("buy")); got != 1 {
		t.Errorf("FillsTotal[buy] = %f, want 1", got)
	}
}

func TestPausedGauge(t *testing.T) {
	SetPaused(true)
	if got := testutil.ToFloat64(Paused); got != 1 {
		t.Errorf("Paused = %f, want 1", got)
	}
	SetPaused(false)
	if got := testutil.ToFloat64(Paused); got != 0 {
		t.Errorf("Paused = %f, want 0", got)
	}
}
