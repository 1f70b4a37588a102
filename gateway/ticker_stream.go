package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// TickerStream 订阅单交易对的 miniTicker 流，把最新价推给回调。
// 断线自动重连（指数退避，上限 30 秒）。行情流只是参考价的快路径，
// 连不上时引擎会回退到 REST 轮询，因此这里的失败从不致命。
type TickerStream struct {
	Endpoint string // wss://stream... 形式
	Symbol   string
	Dialer   *websocket.Dialer
}

// NewTickerStream 创建行情流客户端。
func NewTickerStream(endpoint, symbol string) *TickerStream {
	return &TickerStream{
		Endpoint: endpoint,
		Symbol:   symbol,
		Dialer:   websocket.DefaultDialer,
	}
}

// Run 保持连接并持续回调最新价，直到 ctx 取消。
func (s *TickerStream) Run(ctx context.Context, onPrice func(float64)) error {
	if s.Endpoint == "" || s.Symbol == "" {
		return fmt.Errorf("endpoint and symbol required")
	}
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		err := s.readLoop(ctx, onPrice)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// 连接存活超过一分钟视为健康，退避归零。
		if time.Since(start) > time.Minute {
			backoff = time.Second
		}
		log.Printf("[ticker-ws] stream closed: %v, reconnecting in %s", err, backoff)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
}

func (s *TickerStream) readLoop(ctx context.Context, onPrice func(float64)) error {
	u := strings.TrimRight(s.Endpoint, "/") + "/ws/" + strings.ToLower(s.Symbol) + "@miniTicker"
	dialer := s.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u, err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var tick struct {
			Close string `json:"c"`
		}
		if err := json.Unmarshal(msg, &tick); err != nil {
			continue
		}
		price, err := strconv.ParseFloat(tick.Close, 64)
		if err != nil || price <= 0 {
			continue
		}
		onPrice(price)
	}
}
