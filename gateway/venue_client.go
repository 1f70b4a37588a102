package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// VenueClient 一个可签名的现货 REST 客户端；HTTPClient 可注入 httptest，
// Limiter 为空时不限速。所有签名请求带 timestamp 与 recvWindow。
type VenueClient struct {
	BaseURL      string
	APIKey       string
	Secret       string
	RecvWindowMs int
	HTTPClient   *http.Client
	Limiter      RateLimiter
}

// NewVenueClient 创建带缺省超时与限速的客户端。
func NewVenueClient(baseURL, apiKey, secret string, recvWindowMs int, limiter RateLimiter) *VenueClient {
	if recvWindowMs <= 0 {
		recvWindowMs = 5000
	}
	return &VenueClient{
		BaseURL:      baseURL,
		APIKey:       apiKey,
		Secret:       secret,
		RecvWindowMs: recvWindowMs,
		HTTPClient:   NewDefaultHTTPClient(),
		Limiter:      limiter,
	}
}

// NewDefaultHTTPClient 提供一个带超时的 http.Client。
func NewDefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

// VenueOrder 交易所订单记录。价格/数量沿用交易所的字符串编码。
type VenueOrder struct {
	OrderID     int64  `json:"orderId"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	Status      string `json:"status"`
	Price       string `json:"price"`
	OrigQty     string `json:"origQty"`
	ExecutedQty string `json:"executedQty"`
	Time        int64  `json:"time"`
}

// PriceF 解析价格，解析失败返回 0。
func (o VenueOrder) PriceF() float64 {
	v, _ := strconv.ParseFloat(o.Price, 64)
	return v
}

// OrigQtyF 解析委托数量。
func (o VenueOrder) OrigQtyF() float64 {
	v, _ := strconv.ParseFloat(o.OrigQty, 64)
	return v
}

// RemainingF 返回未成交数量。
func (o VenueOrder) RemainingF() float64 {
	exec, _ := strconv.ParseFloat(o.ExecutedQty, 64)
	return o.OrigQtyF() - exec
}

// VenueFill 交易所成交记录。
type VenueFill struct {
	OrderID int64  `json:"orderId"`
	Symbol  string `json:"symbol"`
	Price   string `json:"price"`
	Qty     string `json:"qty"`
	IsBuyer bool   `json:"isBuyer"`
	Time    int64  `json:"time"`
}

func (f VenueFill) PriceF() float64 {
	v, _ := strconv.ParseFloat(f.Price, 64)
	return v
}

func (f VenueFill) QtyF() float64 {
	v, _ := strconv.ParseFloat(f.Qty, 64)
	return v
}

type tickerResp struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

type accountResp struct {
	Balances []struct {
		Asset string `json:"asset"`
		Free  string `json:"free"`
	} `json:"balances"`
}

// venueError 交易所返回的业务错误体。
type venueError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Ticker 调用 /api/v3/ticker/price 获取最新成交价（无需签名）。
func (c *VenueClient) Ticker(symbol string) (float64, error) {
	var tr tickerResp
	if err := c.public(http.MethodGet, "/api/v3/ticker/price", url.Values{"symbol": {symbol}}, &tr); err != nil {
		return 0, err
	}
	price, err := strconv.ParseFloat(tr.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parse ticker price %q: %w", tr.Price, err)
	}
	if price <= 0 {
		return 0, fmt.Errorf("non-positive ticker price %v", price)
	}
	return price, nil
}

// OpenOrders 调用 /api/v3/openOrders 拉取全部在挂订单。
func (c *VenueClient) OpenOrders(symbol string) ([]VenueOrder, error) {
	var orders []VenueOrder
	err := c.signed(http.MethodGet, "/api/v3/openOrders", map[string]string{"symbol": symbol}, &orders)
	return orders, err
}

// PlaceLimit 调用 /api/v3/order 下限价单（GTC）。
func (c *VenueClient) PlaceLimit(symbol, side string, qty, price float64) (VenueOrder, error) {
	var ord VenueOrder
	err := c.signed(http.MethodPost, "/api/v3/order", map[string]string{
		"symbol":      symbol,
		"side":        strings.ToUpper(side),
		"type":        "LIMIT",
		"timeInForce": "GTC",
		"price":       strconv.FormatFloat(price, 'f', 4, 64),
		"quantity":    strconv.FormatFloat(qty, 'f', -1, 64),
	}, &ord)
	if err != nil {
		return ord, err
	}
	if ord.OrderID == 0 {
		return ord, fmt.Errorf("place limit: empty orderId")
	}
	return ord, nil
}

// PlaceMarket 调用 /api/v3/order 下市价单（仓位再平衡用）。
func (c *VenueClient) PlaceMarket(symbol, side string, qty float64) (VenueOrder, error) {
	var ord VenueOrder
	err := c.signed(http.MethodPost, "/api/v3/order", map[string]string{
		"symbol":   symbol,
		"side":     strings.ToUpper(side),
		"type":     "MARKET",
		"quantity": strconv.FormatFloat(qty, 'f', -1, 64),
	}, &ord)
	if err != nil {
		return ord, err
	}
	if ord.OrderID == 0 {
		return ord, fmt.Errorf("place market: empty orderId")
	}
	return ord, nil
}

// CancelOrder 调用 /api/v3/order 撤单。撤单成功与否以后续状态查询为准。
func (c *VenueClient) CancelOrder(symbol, orderID string) error {
	return c.signed(http.MethodDelete, "/api/v3/order", map[string]string{
		"symbol":  symbol,
		"orderId": orderID,
	}, nil)
}

// OrderStatus 调用 /api/v3/order 查询单笔订单状态。
func (c *VenueClient) OrderStatus(symbol, orderID string) (string, error) {
	var ord VenueOrder
	err := c.signed(http.MethodGet, "/api/v3/order", map[string]string{
		"symbol":  symbol,
		"orderId": orderID,
	}, &ord)
	if err != nil {
		return "", err
	}
	return ord.Status, nil
}

// Balances 调用 /api/v3/account，返回各币种可用余额。
func (c *VenueClient) Balances() (map[string]float64, error) {
	var acct accountResp
	if err := c.signed(http.MethodGet, "/api/v3/account", map[string]string{}, &acct); err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(acct.Balances))
	for _, b := range acct.Balances {
		free, err := strconv.ParseFloat(b.Free, 64)
		if err != nil {
			continue
		}
		out[b.Asset] = free
	}
	return out, nil
}

// MyTrades 调用 /api/v3/myTrades 拉取 startTime 之后的成交。
func (c *VenueClient) MyTrades(symbol string, startTime int64) ([]VenueFill, error) {
	var fills []VenueFill
	err := c.signed(http.MethodGet, "/api/v3/myTrades", map[string]string{
		"symbol":    symbol,
		"startTime": strconv.FormatInt(startTime, 10),
	}, &fills)
	return fills, err
}

func (c *VenueClient) public(method, path string, query url.Values, out interface{}) error {
	if c == nil || c.HTTPClient == nil {
		return fmt.Errorf("http client not set")
	}
	if c.Limiter != nil {
		c.Limiter.Wait()
	}
	endpoint := c.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequest(method, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *VenueClient) signed(method, path string, params map[string]string, out interface{}) error {
	if c == nil || c.HTTPClient == nil {
		return fmt.Errorf("http client not set")
	}
	if c.Limiter != nil {
		c.Limiter.Wait()
	}
	params["recvWindow"] = strconv.Itoa(c.RecvWindowMs)
	query, sig := SignParams(params, c.Secret)
	endpoint := c.BaseURL + path + "?" + query + "&signature=" + url.QueryEscape(sig)
	req, err := http.NewRequest(method, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-MBX-APIKEY", c.APIKey)
	return c.do(req, out)
}

func (c *VenueClient) do(req *http.Request, out interface{}) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var ve venueError
		if json.Unmarshal(body, &ve) == nil && ve.Msg != "" {
			return fmt.Errorf("%s %s: status %d: %s (code %d)",
				req.Method, req.URL.Path, resp.StatusCode, ve.Msg, ve.Code)
		}
		return fmt.Errorf("%s %s: status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
