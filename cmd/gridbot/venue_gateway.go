package main

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"grid-trader-go/gateway"
	"grid-trader-go/grid"
	"grid-trader-go/metrics"
)

// venueGateway 把 REST 客户端适配成引擎需要的 grid.Gateway。
// dryRun 模式下下单与撤单只在本地模拟：虚拟订单存在内存账本里，
// OpenOrders 把账本并入真实挂单，状态查询优先命中账本，
// 因此对账与补单逻辑在干跑时走的是同一条代码路径。
type venueGateway struct {
	client *gateway.VenueClient
	dryRun bool
	log    *zap.Logger

	mu     sync.Mutex
	dry    map[string]grid.Order
	nextID int
}

func (g *venueGateway) Ticker(symbol string) (float64, error) {
	start := time.Now()
	p, err := g.client.Ticker(symbol)
	metrics.ObserveRESTLatency("ticker", time.Since(start).Seconds())
	return p, err
}

func (g *venueGateway) OpenOrders(symbol string) ([]grid.Order, error) {
	start := time.Now()
	raw, err := g.client.OpenOrders(symbol)
	metrics.ObserveRESTLatency("openOrders", time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	out := make([]grid.Order, 0, len(raw))
	for _, vo := range raw {
		out = append(out, toOrder(vo))
	}
	if g.dryRun {
		g.mu.Lock()
		for _, o := range g.dry {
			out = append(out, o)
		}
		g.mu.Unlock()
	}
	return out, nil
}

func (g *venueGateway) PlaceLimit(symbol string, side grid.Side, amount, price float64) (grid.Order, error) {
	if g.dryRun {
		o := g.fakeOrder(symbol, side, amount, grid.LevelOf(price))
		g.log.Info("dry run limit order",
			zap.String("symbol", symbol),
			zap.String("side", string(side)),
			zap.Float64("price", price),
			zap.Float64("qty", amount))
		metrics.IncrementOrdersPlaced(string(side))
		return o, nil
	}
	start := time.Now()
	vo, err := g.client.PlaceLimit(symbol, venueSide(side), amount, price)
	metrics.ObserveRESTLatency("place", time.Since(start).Seconds())
	if err != nil {
		return grid.Order{}, err
	}
	metrics.IncrementOrdersPlaced(string(side))
	return toOrder(vo), nil
}

func (g *venueGateway) PlaceMarket(symbol string, side grid.Side, amount float64) (grid.Order, error) {
	if g.dryRun {
		g.log.Info("dry run market order",
			zap.String("symbol", symbol),
			zap.String("side", string(side)),
			zap.Float64("qty", amount))
		o := g.fakeOrder(symbol, side, amount, 0)
		o.Status = grid.StatusFilled
		g.mu.Lock()
		delete(g.dry, o.ID)
		g.mu.Unlock()
		return o, nil
	}
	start := time.Now()
	vo, err := g.client.PlaceMarket(symbol, venueSide(side), amount)
	metrics.ObserveRESTLatency("place", time.Since(start).Seconds())
	if err != nil {
		return grid.Order{}, err
	}
	return toOrder(vo), nil
}

func (g *venueGateway) Cancel(id, symbol string) error {
	if g.dryRun {
		g.mu.Lock()
		_, ok := g.dry[id]
		delete(g.dry, id)
		g.mu.Unlock()
		if ok {
			g.log.Info("dry run cancel", zap.String("orderId", id))
			metrics.IncrementOrdersCanceled("all")
			return nil
		}
	}
	start := time.Now()
	err := g.client.CancelOrder(symbol, id)
	metrics.ObserveRESTLatency("cancel", time.Since(start).Seconds())
	if err == nil {
		// 撤单请求不带方向，统一记在 all 标签下。
		metrics.IncrementOrdersCanceled("all")
	}
	return err
}

func (g *venueGateway) OrderStatus(id, symbol string) (grid.Status, error) {
	if g.dryRun {
		g.mu.Lock()
		_, ok := g.dry[id]
		g.mu.Unlock()
		if strings.HasPrefix(id, "dry-") {
			if ok {
				return grid.StatusOpen, nil
			}
			return grid.StatusCanceled, nil
		}
	}
	start := time.Now()
	st, err := g.client.OrderStatus(symbol, id)
	metrics.ObserveRESTLatency("status", time.Since(start).Seconds())
	if err != nil {
		return grid.StatusUnknown, err
	}
	return toStatus(st), nil
}

func (g *venueGateway) Balances() (map[string]float64, error) {
	start := time.Now()
	b, err := g.client.Balances()
	metrics.ObserveRESTLatency("balances", time.Since(start).Seconds())
	return b, err
}

func (g *venueGateway) RecentFills(symbol string, since time.Time) ([]grid.Fill, error) {
	start := time.Now()
	raw, err := g.client.MyTrades(symbol, since.UnixMilli())
	metrics.ObserveRESTLatency("myTrades", time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	out := make([]grid.Fill, 0, len(raw))
	for _, vf := range raw {
		side := grid.SideSell
		if vf.IsBuyer {
			side = grid.SideBuy
		}
		out = append(out, grid.Fill{
			OrderID: strconv.FormatInt(vf.OrderID, 10),
			Symbol:  vf.Symbol,
			Side:    side,
			Price:   vf.PriceF(),
			Amount:  vf.QtyF(),
			Time:    time.UnixMilli(vf.Time).UTC(),
		})
	}
	return out, nil
}

func (g *venueGateway) fakeOrder(symbol string, side grid.Side, amount float64, lvl grid.Level) grid.Order {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.dry == nil {
		g.dry = make(map[string]grid.Order)
	}
	g.nextID++
	o := grid.Order{
		ID:        fmt.Sprintf("dry-%d", g.nextID),
		Symbol:    symbol,
		Side:      side,
		Level:     lvl,
		Amount:    amount,
		Remaining: amount,
		Status:    grid.StatusOpen,
		OpenedAt:  time.Now().UTC(),
	}
	g.dry[o.ID] = o
	return o
}

func venueSide(s grid.Side) string {
	if s == grid.SideBuy {
		return "BUY"
	}
	return "SELL"
}

func toStatus(s string) grid.Status {
	switch s {
	case "NEW", "PARTIALLY_FILLED":
		return grid.StatusOpen
	case "FILLED":
		return grid.StatusFilled
	case "CANCELED", "EXPIRED", "EXPIRED_IN_MATCH":
		return grid.StatusCanceled
	case "REJECTED":
		return grid.StatusRejected
	default:
		return grid.StatusUnknown
	}
}

func toOrder(vo gateway.VenueOrder) grid.Order {
	side := grid.SideSell
	if strings.EqualFold(vo.Side, "BUY") {
		side = grid.SideBuy
	}
	return grid.Order{
		ID:        strconv.FormatInt(vo.OrderID, 10),
		Symbol:    vo.Symbol,
		Side:      side,
		Level:     grid.LevelOf(vo.PriceF()),
		Amount:    vo.OrigQtyF(),
		Remaining: vo.RemainingF(),
		Status:    toStatus(vo.Status),
		OpenedAt:  time.UnixMilli(vo.Time).UTC(),
	}
}
