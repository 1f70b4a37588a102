package grid

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Reconciler 将本地镜像与交易所真实挂单对账，交易所数据优先。
// 同一镜像不会被并发对账：引擎保证一个周期内只有一次调用。
type Reconciler struct {
	Symbol  string
	Gateway Gateway
	Log     *zap.Logger

	// FillWindow 控制向交易所回看最近成交的时间范围。
	FillWindow time.Duration
}

// ReconcileResult 汇总一次对账的处理结果。
type ReconcileResult struct {
	// Filled 是本周期确认成交并已移出镜像的订单（按档位），
	// 统计与补单由调用方（Maintainer）处理。
	Filled map[Level]*Order
	// NewlyCanceled 是交易所确认已撤销并移出镜像的订单。
	NewlyCanceled map[Level]*Order
	// Adopted 为交易所存在但本地缺失、被收编进镜像的档位数。
	Adopted int
	// Unresolved 为状态仍为 unknown、保留待下周期复查的档位数。
	Unresolved int
}

// NewReconciler 创建对账器。
func NewReconciler(symbol string, gw Gateway, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{
		Symbol:     symbol,
		Gateway:    gw,
		Log:        log,
		FillWindow: time.Hour,
	}
}

// Reconcile 执行一次完整对账，就地修正 mirror。
// 任一批量网关调用失败都会在未触碰镜像前返回错误，本周期跳过。
// 对交易所状态不变的镜像连续执行两次，第二次不产生任何变更（幂等）。
func (r *Reconciler) Reconcile(m Mirror) (ReconcileResult, error) {
	res := ReconcileResult{
		Filled:        make(map[Level]*Order),
		NewlyCanceled: make(map[Level]*Order),
	}

	open, err := r.Gateway.OpenOrders(r.Symbol)
	if err != nil {
		return res, fmt.Errorf("fetch open orders: %w", err)
	}
	since := time.Now().Add(-r.FillWindow)
	fills, err := r.Gateway.RecentFills(r.Symbol, since)
	if err != nil {
		return res, fmt.Errorf("fetch recent fills: %w", err)
	}

	byID := make(map[string]Order, len(open))
	byLevel := make(map[Level]Order, len(open))
	for _, o := range open {
		byID[o.ID] = o
		byLevel[o.Level] = o
	}
	fillByID := make(map[string]Fill, len(fills))
	for _, f := range fills {
		fillByID[f.OrderID] = f
	}

	for lvl, local := range m {
		// 成交确认：移出镜像，统计更新推迟给调用方。
		if _, ok := fillByID[local.ID]; ok {
			delete(m, lvl)
			local.Status = StatusFilled
			res.Filled[lvl] = local
			r.Log.Info("reconcile: fill confirmed",
				zap.String("level", lvl.String()),
				zap.String("orderId", local.ID),
				zap.String("side", string(local.Side)))
			continue
		}
		// 交易所仍在挂：以交易所记录覆盖本地字段。
		if remote, ok := byID[local.ID]; ok {
			local.Status = remote.Status
			local.Remaining = remote.Remaining
			if local.Amount == 0 {
				local.Amount = remote.Amount
			}
			if local.OpenedAt.IsZero() {
				local.OpenedAt = remote.OpenedAt
			}
			local.UnknownStreak = 0
			continue
		}
		// 两边都查不到：逐单确认状态。单笔查询失败只将该档位标记为
		// unknown 并保留，绝不凭一次含糊信号删除本地记录。
		st, err := r.Gateway.OrderStatus(local.ID, r.Symbol)
		if err != nil {
			local.Status = StatusUnknown
			local.UnknownStreak++
			res.Unresolved++
			r.Log.Warn("reconcile: order status unavailable, retaining",
				zap.String("level", lvl.String()),
				zap.String("orderId", local.ID),
				zap.Int("unknownStreak", local.UnknownStreak),
				zap.Error(err))
			continue
		}
		switch st {
		case StatusCanceled, StatusRejected:
			local.Status = StatusCanceled
			local.UnknownStreak = 0
			delete(m, lvl)
			res.NewlyCanceled[lvl] = local
			r.Log.Info("reconcile: cancel confirmed, removing",
				zap.String("level", lvl.String()),
				zap.String("orderId", local.ID))
		case StatusFilled:
			local.Status = StatusFilled
			local.UnknownStreak = 0
			delete(m, lvl)
			res.Filled[lvl] = local
			r.Log.Info("reconcile: fill confirmed via status query",
				zap.String("level", lvl.String()),
				zap.String("orderId", local.ID))
		default:
			local.Status = StatusUnknown
			local.UnknownStreak++
			res.Unresolved++
			r.Log.Warn("reconcile: order missing from venue but not confirmed closed",
				zap.String("level", lvl.String()),
				zap.String("orderId", local.ID),
				zap.String("venueStatus", string(st)),
				zap.Int("unknownStreak", local.UnknownStreak))
		}
	}

	// 收编交易所有、本地没有的挂单（人工或其他进程下的单）。
	for lvl, remote := range byLevel {
		if m.Has(lvl) {
			continue
		}
		adopted := remote
		adopted.Status = StatusOpen
		m.Insert(&adopted)
		res.Adopted++
		r.Log.Info("reconcile: adopted out-of-band order",
			zap.String("level", lvl.String()),
			zap.String("orderId", remote.ID),
			zap.String("side", string(remote.Side)))
	}

	// 档位集合不一致只记录，不视为失败。
	if mismatch := r.levelMismatch(m, byLevel); mismatch != "" {
		r.Log.Warn("reconcile: level sets differ after pass", zap.String("detail", mismatch))
	}
	return res, nil
}

func (r *Reconciler) levelMismatch(m Mirror, venue map[Level]Order) string {
	var localOnly, venueOnly []string
	for lvl := range m {
		if _, ok := venue[lvl]; !ok {
			localOnly = append(localOnly, lvl.String())
		}
	}
	for lvl := range venue {
		if !m.Has(lvl) {
			venueOnly = append(venueOnly, lvl.String())
		}
	}
	if len(localOnly) == 0 && len(venueOnly) == 0 {
		return ""
	}
	return fmt.Sprintf("local only %v, venue only %v", localOnly, venueOnly)
}
