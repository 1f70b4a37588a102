package grid

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

// mockGateway 模拟交易所网关，可按订单编排失败行为。
type mockGateway struct {
	price    float64
	priceErr error

	open     map[string]Order
	fills    []Fill
	balances map[string]float64
	// statuses 保存已离场订单（撤销/成交）的终态。
	statuses map[string]Status

	openErr  error
	fillsErr error
	placeErr error
	// rejectPlace 模拟请求成功但交易所回报 REJECTED。
	rejectPlace bool
	marketErr   error
	cancelErr   error
	statusErr   map[string]error

	nextID   int
	placed   []Order
	markets  []Order
	canceled []string
}

func newMockGateway() *mockGateway {
	return &mockGateway{
		price:     100.0,
		open:      make(map[string]Order),
		balances:  map[string]float64{"USDC": 1e6, "XRP": 1e6},
		statuses:  make(map[string]Status),
		statusErr: make(map[string]error),
	}
}

func (g *mockGateway) addOpen(o Order) {
	if o.Status == "" {
		o.Status = StatusOpen
	}
	g.open[o.ID] = o
}

func (g *mockGateway) Ticker(symbol string) (float64, error) {
	if g.priceErr != nil {
		return 0, g.priceErr
	}
	return g.price, nil
}

func (g *mockGateway) OpenOrders(symbol string) ([]Order, error) {
	if g.openErr != nil {
		return nil, g.openErr
	}
	out := make([]Order, 0, len(g.open))
	for _, o := range g.open {
		out = append(out, o)
	}
	return out, nil
}

func (g *mockGateway) PlaceLimit(symbol string, side Side, amount, price float64) (Order, error) {
	if g.placeErr != nil {
		return Order{}, g.placeErr
	}
	if g.rejectPlace {
		return Order{Symbol: symbol, Side: side, Status: StatusRejected}, nil
	}
	g.nextID++
	o := Order{
		ID:        fmt.Sprintf("m%d", g.nextID),
		Symbol:    symbol,
		Side:      side,
		Level:     LevelOf(price),
		Amount:    amount,
		Remaining: amount,
		Status:    StatusOpen,
		OpenedAt:  time.Now().UTC(),
	}
	g.open[o.ID] = o
	g.placed = append(g.placed, o)
	return o, nil
}

func (g *mockGateway) PlaceMarket(symbol string, side Side, amount float64) (Order, error) {
	if g.marketErr != nil {
		return Order{}, g.marketErr
	}
	g.nextID++
	o := Order{
		ID:     fmt.Sprintf("m%d", g.nextID),
		Symbol: symbol,
		Side:   side,
		Amount: amount,
		Status: StatusFilled,
	}
	g.markets = append(g.markets, o)
	return o, nil
}

func (g *mockGateway) Cancel(id, symbol string) error {
	if g.cancelErr != nil {
		return g.cancelErr
	}
	if _, ok := g.open[id]; ok {
		delete(g.open, id)
		g.statuses[id] = StatusCanceled
	}
	g.canceled = append(g.canceled, id)
	return nil
}

func (g *mockGateway) OrderStatus(id, symbol string) (Status, error) {
	if err, ok := g.statusErr[id]; ok {
		return "", err
	}
	if _, ok := g.open[id]; ok {
		return StatusOpen, nil
	}
	if st, ok := g.statuses[id]; ok {
		return st, nil
	}
	return "", errors.New("order not found")
}

func (g *mockGateway) Balances() (map[string]float64, error) {
	out := make(map[string]float64, len(g.balances))
	for k, v := range g.balances {
		out[k] = v
	}
	return out, nil
}

func (g *mockGateway) RecentFills(symbol string, since time.Time) ([]Fill, error) {
	if g.fillsErr != nil {
		return nil, g.fillsErr
	}
	return g.fills, nil
}

// mockNotifier 记录所有告警事件。
type mockNotifier struct {
	events   []string
	messages []string
}

func (n *mockNotifier) Notify(event, message string, fields map[string]interface{}) {
	n.events = append(n.events, event)
	n.messages = append(n.messages, message)
}

func (n *mockNotifier) has(event string) bool {
	for _, e := range n.events {
		if e == event {
			return true
		}
	}
	return false
}

// stubSleep 替换重试间隔等待，测试不真实睡眠。
func stubSleep(t *testing.T) {
	t.Helper()
	orig := sleep
	sleep = func(time.Duration) {}
	t.Cleanup(func() { sleep = orig })
}
