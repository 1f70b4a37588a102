package gateway

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestVenueClientPlaceCancel(t *testing.T) {
	timeNowMillis = func() int64 { return 1234567890000 } // deterministic
	defer func() { timeNowMillis = func() int64 { return time.Now().UnixMilli() } }()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-MBX-APIKEY") != "key" {
			t.Fatalf("missing api key header")
		}
		if !strings.Contains(r.URL.RawQuery, "signature=") {
			t.Fatalf("missing signature")
		}
		if !strings.Contains(r.URL.RawQuery, "recvWindow=5000") {
			t.Fatalf("missing recvWindow: %s", r.URL.RawQuery)
		}
		switch r.Method {
		case http.MethodPost:
			io.WriteString(w, `{"orderId":1001,"symbol":"XRPUSDC","side":"BUY","status":"NEW","price":"0.5678","origQty":"100","executedQty":"0"}`)
		case http.MethodDelete:
			w.WriteHeader(200)
		default:
			t.Fatalf("unexpected method %s", r.Method)
		}
	}))
	defer ts.Close()

	cli := NewVenueClient(ts.URL, "key", "secret", 5000, nil)
	cli.HTTPClient = ts.Client()

	ord, err := cli.PlaceLimit("XRPUSDC", "buy", 100, 0.5678)
	if err != nil {
		t.Fatalf("place err: %v", err)
	}
	if ord.OrderID != 1001 {
		t.Fatalf("unexpected order id %d", ord.OrderID)
	}
	if ord.PriceF() != 0.5678 || ord.RemainingF() != 100 {
		t.Fatalf("unexpected order fields: %+v", ord)
	}
	if err := cli.CancelOrder("XRPUSDC", "1001"); err != nil {
		t.Fatalf("cancel err: %v", err)
	}
}

func TestVenueClientTicker(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/ticker/price" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		// ticker 为公开端点，不应带签名。
		if strings.Contains(r.URL.RawQuery, "signature=") {
			t.Fatalf("ticker must not be signed")
		}
		io.WriteString(w, `{"symbol":"XRPUSDC","price":"0.5701"}`)
	}))
	defer ts.Close()

	cli := NewVenueClient(ts.URL, "key", "secret", 0, nil)
	cli.HTTPClient = ts.Client()

	price, err := cli.Ticker("XRPUSDC")
	if err != nil {
		t.Fatalf("ticker err: %v", err)
	}
	if price != 0.5701 {
		t.Fatalf("price = %v", price)
	}
}

func TestVenueClientOpenOrdersAndBalances(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/openOrders":
			io.WriteString(w, `[{"orderId":7,"symbol":"XRPUSDC","side":"SELL","status":"NEW","price":"0.5878","origQty":"100","executedQty":"30"}]`)
		case "/api/v3/account":
			io.WriteString(w, `{"balances":[{"asset":"XRP","free":"250.5"},{"asset":"USDC","free":"1000"},{"asset":"BTC","free":"oops"}]}`)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer ts.Close()

	cli := NewVenueClient(ts.URL, "key", "secret", 0, nil)
	cli.HTTPClient = ts.Client()

	orders, err := cli.OpenOrders("XRPUSDC")
	if err != nil {
		t.Fatalf("open orders err: %v", err)
	}
	if len(orders) != 1 || orders[0].RemainingF() != 70 {
		t.Fatalf("unexpected orders: %+v", orders)
	}

	balances, err := cli.Balances()
	if err != nil {
		t.Fatalf("balances err: %v", err)
	}
	if balances["XRP"] != 250.5 || balances["USDC"] != 1000 {
		t.Fatalf("unexpected balances: %+v", balances)
	}
	if _, ok := balances["BTC"]; ok {
		t.Fatalf("unparseable balance must be dropped")
	}
}

func TestVenueClientErrorBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(400)
		io.WriteString(w, `{"code":-2010,"msg":"Account has insufficient balance"}`)
	}))
	defer ts.Close()

	cli := NewVenueClient(ts.URL, "key", "secret", 0, nil)
	cli.HTTPClient = ts.Client()

	_, err := cli.PlaceLimit("XRPUSDC", "buy", 100, 0.5678)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "insufficient balance") || !strings.Contains(err.Error(), "-2010") {
		t.Fatalf("error must carry venue message: %v", err)
	}
}

func TestVenueClientMyTrades(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.RawQuery, "startTime=1700000000000") {
			t.Fatalf("missing startTime: %s", r.URL.RawQuery)
		}
		io.WriteString(w, `[{"orderId":42,"symbol":"XRPUSDC","price":"0.5678","qty":"100","isBuyer":true,"time":1700000001000}]`)
	}))
	defer ts.Close()

	cli := NewVenueClient(ts.URL, "key", "secret", 0, nil)
	cli.HTTPClient = ts.Client()

	fills, err := cli.MyTrades("XRPUSDC", 1700000000000)
	if err != nil {
		t.Fatalf("my trades err: %v", err)
	}
	if len(fills) != 1 || fills[0].QtyF() != 100 || !fills[0].IsBuyer {
		t.Fatalf("unexpected fills: %+v", fills)
	}
}
