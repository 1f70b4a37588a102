package grid

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// MaintainerConfig 驱动一次网格维护所需的全部参数，运行期不可变。
type MaintainerConfig struct {
	Symbol  string
	Spacing float64
	Count   int
	Amount  float64
	// MaxOpenOrders 缺省为 2*Count。
	MaxOpenOrders int
	// Tolerance 为允许挂单区间两端的放宽量。
	Tolerance float64
	// ConfirmAttempts/ConfirmDelay 约束撤单确认轮询（缺省 5 次、2 秒）。
	ConfirmAttempts int
	ConfirmDelay    time.Duration
	// UnknownAlertCycles 个周期仍未确认状态的订单升级为 CriticalError。
	UnknownAlertCycles int
}

func (c *MaintainerConfig) applyDefaults() {
	if c.MaxOpenOrders <= 0 {
		c.MaxOpenOrders = c.Count * 2
	}
	if c.ConfirmAttempts <= 0 {
		c.ConfirmAttempts = 5
	}
	if c.ConfirmDelay <= 0 {
		c.ConfirmDelay = 2 * time.Second
	}
	if c.UnknownAlertCycles <= 0 {
		c.UnknownAlertCycles = 3
	}
}

// Maintainer 驱动网格的单周期状态机：撤出区间外订单、回收已成交档位、
// 补齐缺失档位并保持买卖两侧均衡。档位级错误彼此隔离，不会中断整个周期。
type Maintainer struct {
	cfg    MaintainerConfig
	gw     Gateway
	guard  *BalanceGuard
	notify Notifier
	log    *zap.Logger
	events EventLogger

	// outOfBand 记录各档位连续落在区间外的次数；达到 2 次才撤单，
	// 避免参考价抖动导致的撤/挂循环。
	outOfBand map[Level]int
}

// NewMaintainer 创建维护器并填充缺省参数。
func NewMaintainer(cfg MaintainerConfig, gw Gateway, guard *BalanceGuard, notify Notifier, log *zap.Logger) *Maintainer {
	cfg.applyDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Maintainer{
		cfg:       cfg,
		gw:        gw,
		guard:     guard,
		notify:    notify,
		log:       log,
		outOfBand: make(map[Level]int),
	}
}

// WithEvents 挂接结构化事件输出，nil 表示不输出。返回自身便于链式构造。
func (mt *Maintainer) WithEvents(ev EventLogger) *Maintainer {
	mt.events = ev
	return mt
}

// CycleReport 汇总一次维护周期的动作数量。
type CycleReport struct {
	Canceled    int
	Recycled    int
	Replenished int
	Rebalanced  int
}

// RunCycle 执行一次完整维护。filled 为本周期对账确认的成交（已移出镜像）。
// 镜像与统计总是在同一步骤内一起变更。
func (mt *Maintainer) RunCycle(m Mirror, stats *Statistics, price float64, filled map[Level]*Order) CycleReport {
	var rep CycleReport
	band := BandAround(price, mt.cfg.Spacing, mt.cfg.Count, mt.cfg.Tolerance)
	planned := Plan(price, mt.cfg.Spacing, mt.cfg.Count)
	if len(planned.Buys) < mt.cfg.Count {
		mt.log.Warn("planner dropped non-positive buy levels",
			zap.Int("dropped", mt.cfg.Count-len(planned.Buys)),
			zap.Float64("price", price))
	}
	venue := mt.venueLevelSet()

	rep.Canceled = mt.cancelOutOfBand(m, stats, band)
	rep.Recycled = mt.processFills(m, stats, filled, band, venue)
	rep.Replenished = mt.replenishSide(m, SideBuy, planned.Buys, venue) +
		mt.replenishSide(m, SideSell, planned.Sells, venue)
	rep.Rebalanced = mt.enforceBalance(m, stats, planned, venue)
	mt.alertUnresolved(m)

	if rep.Canceled > 0 && mt.notify != nil {
		mt.notify.Notify(EventGridAdjusted,
			fmt.Sprintf("canceled %d out-of-band orders on %s", rep.Canceled, mt.cfg.Symbol),
			map[string]interface{}{"canceled": rep.Canceled, "price": price})
	}
	return rep
}

// PlaceInitialGrid 在镜像为空时铺设初始网格：先买侧后卖侧，
// 任一真实下单失败立即中止（已占用档位视为跳过，不算失败）。
func (mt *Maintainer) PlaceInitialGrid(m Mirror, price float64) error {
	planned := Plan(price, mt.cfg.Spacing, mt.cfg.Count)
	venue := mt.venueLevelSet()
	for _, lvl := range planned.Buys {
		if _, err := mt.place(m, SideBuy, lvl, venue); err != nil {
			return fmt.Errorf("initial grid aborted at buy %s: %w", lvl, err)
		}
	}
	for _, lvl := range planned.Sells {
		if _, err := mt.place(m, SideSell, lvl, venue); err != nil {
			return fmt.Errorf("initial grid aborted at sell %s: %w", lvl, err)
		}
	}
	mt.log.Info("initial grid placed",
		zap.Int("buys", m.CountSide(SideBuy)),
		zap.Int("sells", m.CountSide(SideSell)),
		zap.Float64("price", price))
	return nil
}

// venueLevelSet 取一次交易所当前挂单档位集合，用于下单幂等检查。
// 拉取失败时退化为仅依赖本地镜像（对账刚跑过，镜像已覆盖交易所集合）。
func (mt *Maintainer) venueLevelSet() map[Level]bool {
	open, err := mt.gw.OpenOrders(mt.cfg.Symbol)
	if err != nil {
		mt.log.Warn("venue level set unavailable, relying on mirror only", zap.Error(err))
		return map[Level]bool{}
	}
	set := make(map[Level]bool, len(open))
	for _, o := range open {
		set[o.Level] = true
	}
	return set
}

// cancelOutOfBand 撤销连续两个周期落在区间外的挂单，撤单必须经轮询确认。
func (mt *Maintainer) cancelOutOfBand(m Mirror, stats *Statistics, band Band) int {
	canceled := 0
	for _, lvl := range sortedLevels(m) {
		ord, ok := m[lvl]
		if !ok || ord.Status != StatusOpen {
			continue
		}
		out := (ord.Side == SideBuy && lvl < band.Low) ||
			(ord.Side == SideSell && lvl > band.High)
		if !out {
			delete(mt.outOfBand, lvl)
			continue
		}
		mt.outOfBand[lvl]++
		if mt.outOfBand[lvl] < 2 {
			mt.log.Debug("level out of band, first strike",
				zap.String("level", lvl.String()),
				zap.String("side", string(ord.Side)))
			continue
		}
		if err := mt.cancelConfirmed(m, stats, ord, "out of band"); err != nil {
			mt.log.Warn("out-of-band cancel not confirmed, will retry",
				zap.String("level", lvl.String()),
				zap.String("orderId", ord.ID),
				zap.Error(err))
			continue
		}
		canceled++
	}
	// 档位已不在镜像里的计数一并清理。
	for lvl := range mt.outOfBand {
		if !m.Has(lvl) {
			delete(mt.outOfBand, lvl)
		}
	}
	return canceled
}

// cancelConfirmed 发出撤单并轮询确认。确认不到绝不假设已撤：
// 订单标记 unknown 留在镜像，下周期重试。
func (mt *Maintainer) cancelConfirmed(m Mirror, stats *Statistics, ord *Order, reason string) error {
	if err := mt.gw.Cancel(ord.ID, mt.cfg.Symbol); err != nil {
		return fmt.Errorf("cancel order %s: %w", ord.ID, err)
	}
	var confirmed Status
	err := Retry(mt.cfg.ConfirmAttempts, mt.cfg.ConfirmDelay, func() (bool, error) {
		st, err := mt.gw.OrderStatus(ord.ID, mt.cfg.Symbol)
		if err != nil {
			return false, err
		}
		if st == StatusCanceled || st == StatusFilled {
			confirmed = st
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		ord.Status = StatusUnknown
		ord.UnknownStreak++
		return fmt.Errorf("confirm cancel %s: %w", ord.ID, ErrAmbiguousState)
	}
	if confirmed == StatusFilled {
		// 撤单窗口内成交了：按成交入账，空出的档位交给补单恢复。
		mt.recordFill(stats, ord)
		mt.log.Info("order filled while canceling",
			zap.String("level", ord.Level.String()),
			zap.String("orderId", ord.ID))
	} else {
		mt.log.Info("order canceled",
			zap.String("level", ord.Level.String()),
			zap.String("orderId", ord.ID),
			zap.String("reason", reason))
		if mt.events != nil {
			mt.events.LogOrder("order_canceled", ord.ID, map[string]interface{}{
				"symbol": mt.cfg.Symbol,
				"level":  ord.Level.String(),
				"reason": reason,
			})
		}
	}
	delete(m, ord.Level)
	delete(mt.outOfBand, ord.Level)
	return nil
}

// processFills 入账已确认成交并做档位回收：买单成交在高一格补买单，
// 卖单成交在低一格补卖单；目标档位被占或出区间则本周期跳过。
func (mt *Maintainer) processFills(m Mirror, stats *Statistics, filled map[Level]*Order, band Band, venue map[Level]bool) int {
	recycled := 0
	lvls := make([]Level, 0, len(filled))
	for lvl := range filled {
		lvls = append(lvls, lvl)
	}
	sort.Slice(lvls, func(i, j int) bool { return lvls[i] < lvls[j] })

	for _, lvl := range lvls {
		ord := filled[lvl]
		mt.recordFill(stats, ord)

		next := lvl.Shift(mt.cfg.Spacing)
		if ord.Side == SideSell {
			next = lvl.Shift(-mt.cfg.Spacing)
		}
		if !band.Contains(next) {
			mt.log.Warn("recycle target outside band, skipping",
				zap.String("filled", lvl.String()),
				zap.String("target", next.String()))
			continue
		}
		if m.Has(next) || venue[next] {
			mt.log.Info("recycle target already occupied, retrying later",
				zap.String("filled", lvl.String()),
				zap.String("target", next.String()))
			continue
		}
		placed, err := mt.place(m, ord.Side, next, venue)
		if err != nil {
			mt.log.Warn("recycle placement failed",
				zap.String("target", next.String()),
				zap.Error(err))
			continue
		}
		if placed {
			recycled++
		}
	}
	return recycled
}

// recordFill 更新统计。卖单成交按一格间距实现利润入账
// （网格的配对买单恰好低一格，一次往返收获一格价差）。
func (mt *Maintainer) recordFill(stats *Statistics, ord *Order) {
	amt := ord.Amount
	if amt <= 0 {
		amt = mt.cfg.Amount
	}
	if ord.Side == SideBuy {
		stats.TotalBuys++
	} else {
		stats.TotalSells++
		stats.NetProfit += mt.cfg.Spacing * amt
	}
	if mt.events != nil {
		mt.events.LogFill("order_filled", map[string]interface{}{
			"symbol": mt.cfg.Symbol,
			"side":   string(ord.Side),
			"level":  ord.Level.String(),
			"amount": amt,
		})
	}
	if mt.notify != nil {
		mt.notify.Notify(EventOrderFilled,
			fmt.Sprintf("%s order filled at %s", ord.Side, ord.Level),
			map[string]interface{}{
				"level":  ord.Level.String(),
				"side":   string(ord.Side),
				"amount": amt,
			})
	}
}

// replenishSide 一次一单地补齐指定方向的档位，每单前重新检查总量上限，
// 单笔失败只中断该方向，不影响其余处理。
func (mt *Maintainer) replenishSide(m Mirror, side Side, planned []Level, venue map[Level]bool) int {
	placed := 0
	for m.CountSide(side) < mt.cfg.Count {
		if len(m) >= mt.cfg.MaxOpenOrders {
			mt.log.Info("order ceiling reached, replenishment stopped",
				zap.Int("open", len(m)),
				zap.Int("max", mt.cfg.MaxOpenOrders))
			break
		}
		lvl, ok := mt.nextLevel(m, side, planned, venue)
		if !ok {
			break
		}
		done, err := mt.place(m, side, lvl, venue)
		if err != nil || !done {
			break
		}
		placed++
		mt.log.Info("replenished missing level",
			zap.String("side", string(side)),
			zap.String("level", lvl.String()))
	}
	return placed
}

// nextLevel 选下一档：优先补规划档位中缺失的（离参考价近的先补），
// 规划档位占满后向外延伸一格。
func (mt *Maintainer) nextLevel(m Mirror, side Side, planned []Level, venue map[Level]bool) (Level, bool) {
	for _, lvl := range planned {
		if lvl > 0 && !m.Has(lvl) && !venue[lvl] {
			return lvl, true
		}
	}
	far, ok := m.Farthest(side)
	if !ok {
		return 0, false
	}
	next := far.Shift(-mt.cfg.Spacing)
	if side == SideSell {
		next = far.Shift(mt.cfg.Spacing)
	}
	if next <= 0 || m.Has(next) || venue[next] {
		return 0, false
	}
	return next, true
}

// enforceBalance 保持买卖侧数量差不超过 1：缺的一侧补单；
// 上限挡住时改为从多的一侧撤掉挂得最久的订单。
func (mt *Maintainer) enforceBalance(m Mirror, stats *Statistics, planned Levels, venue map[Level]bool) int {
	actions := 0
	for {
		buys := m.CountSide(SideBuy)
		sells := m.CountSide(SideSell)
		diff := buys - sells
		if diff >= -1 && diff <= 1 {
			break
		}
		deficient, levels := SideBuy, planned.Buys
		if diff > 0 {
			deficient, levels = SideSell, planned.Sells
		}
		if len(m) < mt.cfg.MaxOpenOrders {
			lvl, ok := mt.nextLevel(m, deficient, levels, venue)
			if !ok {
				break
			}
			done, err := mt.place(m, deficient, lvl, venue)
			if err != nil || !done {
				break
			}
			actions++
			continue
		}
		ord, ok := m.Oldest(deficient.Opposite())
		if !ok {
			break
		}
		if err := mt.cancelConfirmed(m, stats, ord, "side balance"); err != nil {
			mt.log.Warn("balance cancel not confirmed", zap.Error(err))
			break
		}
		actions++
	}
	return actions
}

// place 尝试挂一张限价单。返回 (true,nil) 成功、(false,nil) 幂等跳过；
// 余额不足与交易所失败都已在内部记录并告警。
func (mt *Maintainer) place(m Mirror, side Side, lvl Level, venue map[Level]bool) (bool, error) {
	if lvl <= 0 {
		mt.log.Warn("refusing non-positive level", zap.String("level", lvl.String()))
		return false, nil
	}
	if len(m) >= mt.cfg.MaxOpenOrders {
		return false, ErrCeilingReached
	}
	if m.Has(lvl) || venue[lvl] {
		return false, nil
	}
	if mt.guard != nil {
		if err := mt.guard.Ensure(side, lvl, mt.cfg.Amount); err != nil {
			if errors.Is(err, ErrInsufficientBalance) {
				// 已由 BalanceGuard 告警；档位留空待下周期。
				return false, err
			}
			return false, fmt.Errorf("balance check: %w", err)
		}
	}
	ord, err := mt.gw.PlaceLimit(mt.cfg.Symbol, side, mt.cfg.Amount, lvl.Price())
	if err != nil {
		mt.log.Error("placement failed",
			zap.String("side", string(side)),
			zap.String("level", lvl.String()),
			zap.Error(err))
		if mt.notify != nil {
			mt.notify.Notify(EventPlacementFailed,
				fmt.Sprintf("failed to place %s at %s", side, lvl),
				map[string]interface{}{"level": lvl.String(), "side": string(side), "error": err.Error()})
		}
		return false, err
	}
	if ord.Status == StatusRejected {
		mt.log.Error("venue rejected order",
			zap.String("side", string(side)),
			zap.String("level", lvl.String()),
			zap.String("orderId", ord.ID))
		if mt.notify != nil {
			mt.notify.Notify(EventPlacementFailed,
				fmt.Sprintf("venue rejected %s at %s", side, lvl),
				map[string]interface{}{"level": lvl.String(), "side": string(side)})
		}
		return false, fmt.Errorf("place %s at %s: %w", side, lvl, ErrVenueRejection)
	}
	if ord.Level == 0 {
		ord.Level = lvl
	}
	if ord.Status == "" {
		ord.Status = StatusOpen
	}
	if ord.OpenedAt.IsZero() {
		ord.OpenedAt = time.Now().UTC()
	}
	ord.Side = side
	if ord.Amount == 0 {
		ord.Amount = mt.cfg.Amount
	}
	m.Insert(&ord)
	mt.log.Info("order placed",
		zap.String("side", string(side)),
		zap.String("level", lvl.String()),
		zap.String("orderId", ord.ID))
	if mt.events != nil {
		mt.events.LogOrder("order_placed", ord.ID, map[string]interface{}{
			"symbol": mt.cfg.Symbol,
			"side":   string(side),
			"level":  lvl.String(),
		})
	}
	return true, nil
}

// alertUnresolved 把连续多个周期无法确认状态的订单升级给人工处理。
func (mt *Maintainer) alertUnresolved(m Mirror) {
	if mt.notify == nil {
		return
	}
	for _, ord := range m {
		if ord.Status == StatusUnknown && ord.UnknownStreak == mt.cfg.UnknownAlertCycles {
			mt.notify.Notify(EventCriticalError,
				fmt.Sprintf("order %s at %s unresolved for %d cycles", ord.ID, ord.Level, ord.UnknownStreak),
				map[string]interface{}{
					"orderId": ord.ID,
					"level":   ord.Level.String(),
					"cycles":  ord.UnknownStreak,
				})
		}
	}
}

func sortedLevels(m Mirror) []Level {
	lvls := make([]Level, 0, len(m))
	for l := range m {
		lvls = append(lvls, l)
	}
	sort.Slice(lvls, func(i, j int) bool { return lvls[i] < lvls[j] })
	return lvls
}
