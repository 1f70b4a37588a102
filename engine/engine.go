package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"grid-trader-go/grid"
	"grid-trader-go/metrics"
	"grid-trader-go/store"
)

// Options 汇集引擎依赖，全部必填（Price 与 Notify 可选）。
type Options struct {
	Symbol     string
	Interval   time.Duration
	Gateway    grid.Gateway
	Reconciler *grid.Reconciler
	Maintainer *grid.Maintainer
	Store      *store.SnapshotStore
	Pause      *PauseWatcher
	Notify     grid.Notifier
	Log        *zap.Logger
	Events     grid.EventLogger

	// Price 返回参考价；为空时直接用网关 Ticker。
	// cmd 层通常注入「行情流缓存优先、REST 兜底」的组合。
	Price func() (float64, error)
}

// Engine 驱动网格的主循环：恢复快照、逐周期对账 + 维护 + 落盘。
// 单 goroutine 顺序执行，镜像无并发访问。
type Engine struct {
	opts   Options
	log    *zap.Logger
	mirror grid.Mirror
	stats  grid.Statistics
}

// New 创建引擎。
func New(opts Options) (*Engine, error) {
	if opts.Gateway == nil || opts.Reconciler == nil || opts.Maintainer == nil || opts.Store == nil {
		return nil, errors.New("gateway, reconciler, maintainer and store are required")
	}
	if opts.Pause == nil {
		return nil, errors.New("pause watcher is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Price == nil {
		gw, symbol := opts.Gateway, opts.Symbol
		opts.Price = func() (float64, error) { return gw.Ticker(symbol) }
	}
	return &Engine{opts: opts, log: opts.Log}, nil
}

// Mirror 返回当前镜像（测试用）。
func (e *Engine) Mirror() grid.Mirror {
	return e.mirror
}

// Statistics 返回累计统计。
func (e *Engine) Statistics() grid.Statistics {
	return e.stats
}

// Run 恢复状态后进入周期循环，直到 ctx 取消。退出前尽力落一次盘。
// 返回非 nil 错误仅发生在无法安全继续的情况（如暂停状态不可判定）。
func (e *Engine) Run(ctx context.Context) error {
	if err := e.restore(); err != nil {
		return err
	}

	go func() {
		if err := e.opts.Pause.Run(ctx); err != nil && ctx.Err() == nil {
			e.log.Warn("pause watcher stopped", zap.Error(err))
		}
	}()

	ticker := time.NewTicker(e.opts.Interval)
	defer ticker.Stop()

	for {
		// 停机信号只触发落盘，决不多跑一个周期。
		if ctx.Err() != nil {
			e.flush()
			return ctx.Err()
		}
		if err := e.Step(); err != nil {
			e.flush()
			return err
		}
		select {
		case <-ctx.Done():
			e.flush()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// restore 加载快照。缺失按首次启动处理，损坏则告警后从交易所冷启动，
// 对账会把真实挂单收编回镜像。
func (e *Engine) restore() error {
	m, stats, err := e.opts.Store.Load()
	switch {
	case err == nil:
		e.mirror, e.stats = m, stats
		e.log.Info("state restored from snapshot",
			zap.Int("orders", len(m)),
			zap.Int("totalBuys", stats.TotalBuys),
			zap.Int("totalSells", stats.TotalSells))
	case errors.Is(err, store.ErrNotExists):
		e.mirror = grid.NewMirror()
		e.log.Info("no snapshot found, starting fresh")
	case errors.Is(err, store.ErrCorruptSnapshot):
		e.mirror = grid.NewMirror()
		e.log.Warn("snapshot corrupt, rebuilding state from venue", zap.Error(err))
		if e.opts.Notify != nil {
			e.opts.Notify.Notify(grid.EventCriticalError,
				"snapshot corrupt, state rebuilt from venue", nil)
		}
	default:
		return fmt.Errorf("load snapshot: %w", err)
	}
	return nil
}

// Step 执行一个完整维护周期。周期内的网关失败不致命（跳过本周期），
// 暂停状态不可判定才返回错误。
func (e *Engine) Step() error {
	paused, err := e.opts.Pause.Check()
	if err != nil {
		// 判断不了是否暂停就决不能下单。
		return err
	}
	if paused {
		metrics.SetPaused(true)
		e.log.Info("cycle skipped, trading paused",
			zap.String("symbol", e.opts.Symbol))
		e.emitCycle("cycle_skipped", map[string]interface{}{
			"symbol": e.opts.Symbol,
			"reason": "paused",
		})
		return nil
	}
	metrics.SetPaused(false)

	price, err := e.opts.Price()
	if err != nil {
		metrics.CycleErrors.Inc()
		e.log.Warn("reference price unavailable, skipping cycle", zap.Error(err))
		return nil
	}
	metrics.LastPrice.Set(price)

	res, err := e.opts.Reconciler.Reconcile(e.mirror)
	if err != nil {
		metrics.CycleErrors.Inc()
		e.log.Warn("reconcile failed, mirror untouched, skipping cycle", zap.Error(err))
		return nil
	}
	metrics.ReconcileAdopted.Add(float64(res.Adopted))
	metrics.ReconcileUnresolved.Set(float64(res.Unresolved))
	for _, o := range res.Filled {
		metrics.IncrementFills(string(o.Side))
	}

	if len(e.mirror) == 0 && len(res.Filled) == 0 {
		// 冷启动：交易所也没有挂单，铺设初始网格。
		if err := e.opts.Maintainer.PlaceInitialGrid(e.mirror, price); err != nil {
			metrics.CycleErrors.Inc()
			e.log.Error("initial grid placement aborted", zap.Error(err))
		}
	} else {
		rep := e.opts.Maintainer.RunCycle(e.mirror, &e.stats, price, res.Filled)
		e.log.Info("cycle complete",
			zap.String("symbol", e.opts.Symbol),
			zap.Float64("price", price),
			zap.Int("canceled", rep.Canceled),
			zap.Int("recycled", rep.Recycled),
			zap.Int("replenished", rep.Replenished),
			zap.Int("rebalanced", rep.Rebalanced),
			zap.Int("openBuys", e.mirror.CountSide(grid.SideBuy)),
			zap.Int("openSells", e.mirror.CountSide(grid.SideSell)))
	}

	metrics.UpdateMirror(e.mirror.CountSide(grid.SideBuy), e.mirror.CountSide(grid.SideSell))
	metrics.UpdateStatistics(e.stats.TotalBuys, e.stats.TotalSells, e.stats.NetProfit)
	e.emitCycle("cycle_complete", map[string]interface{}{
		"symbol":     e.opts.Symbol,
		"price":      price,
		"open_buys":  e.mirror.CountSide(grid.SideBuy),
		"open_sells": e.mirror.CountSide(grid.SideSell),
	})

	if err := e.opts.Store.Save(e.mirror, e.stats); err != nil {
		e.log.Error("snapshot save failed", zap.Error(err))
	} else {
		e.emitCycle("snapshot_saved", map[string]interface{}{
			"path":   e.opts.Store.Path,
			"orders": len(e.mirror),
		})
	}
	metrics.CyclesTotal.Inc()
	return nil
}

func (e *Engine) emitCycle(event string, fields map[string]interface{}) {
	if e.opts.Events == nil {
		return
	}
	e.opts.Events.LogCycle(event, fields)
}

// flush 退出路径上的最后一次落盘，失败只记日志。
func (e *Engine) flush() {
	if e.mirror == nil {
		return
	}
	if err := e.opts.Store.Save(e.mirror, e.stats); err != nil {
		e.log.Error("final snapshot save failed", zap.Error(err))
	}
}
