package grid

import (
	"fmt"
	"math"

	"go.uber.org/zap"
)

// BalanceGuard 在每次下单前校验可用余额：买单校验计价货币，卖单校验基础货币。
// 余额不足时跳过下单并对外告警，该档位留空待下周期重试。
type BalanceGuard struct {
	Gateway Gateway
	Symbol  string
	// Base/Quote 为交易对两腿货币代码，如 XRP / USDC。
	Base  string
	Quote string

	Log    *zap.Logger
	Notify Notifier
}

// NewBalanceGuard 创建余额守卫。
func NewBalanceGuard(gw Gateway, symbol, base, quote string, log *zap.Logger, notify Notifier) *BalanceGuard {
	if log == nil {
		log = zap.NewNop()
	}
	return &BalanceGuard{Gateway: gw, Symbol: symbol, Base: base, Quote: quote, Log: log, Notify: notify}
}

// Ensure reports nil when the free balance covers the order. It returns
// ErrInsufficientBalance (already notified) when it does not, and the
// underlying error when the balance itself cannot be fetched.
func (g *BalanceGuard) Ensure(side Side, level Level, amount float64) error {
	balances, err := g.Gateway.Balances()
	if err != nil {
		return fmt.Errorf("fetch balance: %w", err)
	}
	currency := g.Quote
	required := amount * level.Price()
	if side == SideSell {
		currency = g.Base
		required = amount
	}
	free := balances[currency]
	if free >= required {
		return nil
	}
	g.Log.Warn("insufficient balance, skipping placement",
		zap.String("side", string(side)),
		zap.String("level", level.String()),
		zap.String("currency", currency),
		zap.Float64("free", free),
		zap.Float64("required", required))
	if g.Notify != nil {
		g.Notify.Notify(EventInsufficientBalance,
			fmt.Sprintf("insufficient %s for %s order at %s", currency, side, level),
			map[string]interface{}{
				"level":    level.String(),
				"side":     string(side),
				"free":     free,
				"required": required,
			})
	}
	return ErrInsufficientBalance
}

// Rebalance 用单笔市价单把基础货币持仓拉向 target：缺则买、多则卖。
// 偏差在 tolerance 内不动作。买入前校验计价货币是否足额，不足则告警放弃。
func (g *BalanceGuard) Rebalance(targetBase, tolerance float64) error {
	balances, err := g.Gateway.Balances()
	if err != nil {
		return fmt.Errorf("fetch balance: %w", err)
	}
	freeBase := balances[g.Base]
	required := targetBase - freeBase
	if math.Abs(required) <= tolerance {
		g.Log.Debug("rebalance: within tolerance",
			zap.Float64("target", targetBase),
			zap.Float64("free", freeBase))
		return nil
	}
	if required > 0 {
		price, err := g.Gateway.Ticker(g.Symbol)
		if err != nil {
			return fmt.Errorf("fetch ticker: %w", err)
		}
		cost := required * price
		if balances[g.Quote] < cost {
			g.Log.Warn("rebalance aborted: quote currency cannot fund buy",
				zap.Float64("required", required),
				zap.Float64("cost", cost),
				zap.Float64("quoteFree", balances[g.Quote]))
			if g.Notify != nil {
				g.Notify.Notify(EventInsufficientBalance,
					fmt.Sprintf("rebalance aborted: need %.4f %s", cost, g.Quote),
					map[string]interface{}{"required": required, "cost": cost})
			}
			return ErrInsufficientBalance
		}
		if _, err := g.Gateway.PlaceMarket(g.Symbol, SideBuy, required); err != nil {
			return fmt.Errorf("rebalance market buy: %w", err)
		}
		g.Log.Info("rebalance: market buy executed", zap.Float64("amount", required))
		return nil
	}
	sellAmount := -required
	if _, err := g.Gateway.PlaceMarket(g.Symbol, SideSell, sellAmount); err != nil {
		return fmt.Errorf("rebalance market sell: %w", err)
	}
	g.Log.Info("rebalance: market sell executed", zap.Float64("amount", sellAmount))
	return nil
}
