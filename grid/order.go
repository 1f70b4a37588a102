package grid

import (
	"errors"
	"time"
)

// Side marks the resting direction of a grid order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Status represents order lifecycle as reported by the venue.
type Status string

const (
	StatusOpen     Status = "open"
	StatusFilled   Status = "filled"
	StatusCanceled Status = "canceled"
	StatusRejected Status = "rejected"
	StatusUnknown  Status = "unknown"
)

// mirror 视角的终态：不会再产生成交。
func (s Status) Final() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected:
		return true
	default:
		return false
	}
}

// Order holds the engine's view of a single resting order.
// ID 与 Status 以交易所为准，对账后覆盖本地字段。
type Order struct {
	ID        string
	Symbol    string
	Side      Side
	Level     Level
	Amount    float64
	Remaining float64
	Status    Status
	OpenedAt  time.Time

	// UnknownStreak 统计连续多少个周期处于 unknown；达到阈值后升级告警。
	// 不持久化：进程重启后重新计数。
	UnknownStreak int
}

// Fill is a confirmed execution reported by the venue.
type Fill struct {
	OrderID string
	Symbol  string
	Side    Side
	Price   float64
	Amount  float64
	Time    time.Time
}

// Statistics accumulates confirmed-fill counters and realized profit.
// 只在成交被确认时更新（参见 Maintainer.processFills）。
type Statistics struct {
	TotalBuys  int     `json:"total_buys"`
	TotalSells int     `json:"total_sells"`
	NetProfit  float64 `json:"net_profit"`
}

// Gateway 交易所抽象：所有阻塞调用由实现方自身的请求超时约束。
type Gateway interface {
	Ticker(symbol string) (float64, error)
	OpenOrders(symbol string) ([]Order, error)
	PlaceLimit(symbol string, side Side, amount, price float64) (Order, error)
	PlaceMarket(symbol string, side Side, amount float64) (Order, error)
	Cancel(id, symbol string) error
	OrderStatus(id, symbol string) (Status, error)
	Balances() (map[string]float64, error)
	RecentFills(symbol string, since time.Time) ([]Fill, error)
}

// Notifier 对外告警发送（fire-and-forget，失败绝不中断周期）。
type Notifier interface {
	Notify(event, message string, fields map[string]interface{})
}

// EventLogger 输出结构化业务事件，供外部采集管道消费。
// 事件名与必填字段集中注册在 monitor/logschema，缺字段由实现方告警。
type EventLogger interface {
	LogOrder(event string, orderID string, fields map[string]interface{})
	LogCycle(event string, fields map[string]interface{})
	LogFill(event string, fields map[string]interface{})
}

// Notification event kinds.
const (
	EventInsufficientBalance = "InsufficientBalance"
	EventPlacementFailed     = "PlacementFailed"
	EventOrderFilled         = "OrderFilled"
	EventGridAdjusted        = "GridAdjusted"
	EventCriticalError       = "CriticalError"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrVenueRejection      = errors.New("venue rejected order")
	ErrAmbiguousState      = errors.New("order state unresolved")
	ErrCeilingReached      = errors.New("max open orders reached")
)
