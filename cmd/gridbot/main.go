package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"grid-trader-go/config"
	"grid-trader-go/engine"
	"grid-trader-go/gateway"
	"grid-trader-go/grid"
	"grid-trader-go/infrastructure/alert"
	"grid-trader-go/infrastructure/logger"
	"grid-trader-go/metrics"
	"grid-trader-go/store"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	dryRun := flag.Bool("dryRun", false, "仅日志输出，不真正下单")
	metricsAddr := flag.String("metricsAddr", "", "Prometheus metrics 监听地址，覆盖配置")
	rebalanceTarget := flag.Float64("rebalanceTarget", 0, "启动时把基础货币持仓拉到该数量，0 表示跳过再平衡")
	rebalanceTol := flag.Float64("rebalanceTolerance", 0, "再平衡允许的持仓偏差")
	flag.Parse()

	// .env 仅用于本地开发，缺失不算错误。
	_ = godotenv.Load()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	symbol := strings.ToUpper(cfg.Symbol)

	zl, err := logger.New(logConfig(cfg.Log))
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer zl.Close()

	addr := cfg.Metrics.ListenAddr
	if *metricsAddr != "" {
		addr = *metricsAddr
	}
	if addr != "" {
		metrics.StartMetricsServer(addr)
		zl.Info("metrics server started", zap.String("addr", addr))
	}

	notify := buildNotifier(cfg.Notify)

	rest := gateway.NewVenueClient(
		cfg.Gateway.BaseURL,
		cfg.Gateway.APIKey,
		cfg.Gateway.APISecret,
		cfg.Gateway.RecvWindowMs,
		gateway.NewTokenBucketLimiter(cfg.Gateway.RateLimit, cfg.Gateway.RateBurst),
	)
	gw := &venueGateway{client: rest, dryRun: *dryRun, log: zl.Logger}
	if *dryRun {
		zl.Warn("dry run enabled, orders are simulated locally")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 行情流缓存最新价，REST 兜底。
	cache := &priceCache{maxAge: 15 * time.Second}
	if cfg.Gateway.WsURL != "" {
		stream := gateway.NewTickerStream(cfg.Gateway.WsURL, symbol)
		go func() {
			if err := stream.Run(ctx, cache.set); err != nil && ctx.Err() == nil {
				zl.Warn("ticker stream exited", zap.Error(err))
			}
		}()
	}
	price := func() (float64, error) {
		if p, ok := cache.get(); ok {
			return p, nil
		}
		return gw.Ticker(symbol)
	}

	guard := grid.NewBalanceGuard(gw, symbol, cfg.BaseCurrency, cfg.QuoteCurrency, zl.Logger, notify)
	if *rebalanceTarget > 0 {
		if err := guard.Rebalance(*rebalanceTarget, *rebalanceTol); err != nil {
			zl.Warn("startup rebalance failed, continuing with current holdings", zap.Error(err))
		}
	}
	maintainer := grid.NewMaintainer(grid.MaintainerConfig{
		Symbol:          symbol,
		Spacing:         cfg.Grid.Spacing,
		Count:           cfg.Grid.Levels,
		Amount:          cfg.Grid.Amount,
		MaxOpenOrders:   cfg.Grid.MaxOpenOrders,
		Tolerance:       cfg.Grid.BandTolerance,
		ConfirmAttempts: cfg.Engine.CancelConfirmAttempts,
		ConfirmDelay:    time.Duration(cfg.Engine.CancelConfirmDelayMs) * time.Millisecond,
	}, gw, guard, notify, zl.Logger).WithEvents(zl)

	reconciler := grid.NewReconciler(symbol, gw, zl.Logger)
	reconciler.FillWindow = time.Duration(cfg.Engine.FillWindowMin) * time.Minute

	pause := engine.NewPauseWatcher(cfg.Engine.PausePath, zl.Logger)
	eng, err := engine.New(engine.Options{
		Symbol:     symbol,
		Interval:   time.Duration(cfg.Engine.IntervalSec) * time.Second,
		Gateway:    gw,
		Reconciler: reconciler,
		Maintainer: maintainer,
		Store:      store.New(cfg.Engine.SnapshotPath, zl.Logger),
		Pause:      pause,
		Notify:     notify,
		Log:        zl.Logger,
		Events:     zl,
		Price:      price,
	})
	if err != nil {
		log.Fatalf("初始化引擎失败: %v", err)
	}

	// 配置热更新不在线生效，只提示重启。
	go func() {
		w := config.Watcher{Path: *cfgPath}
		_ = w.Start(ctx, func(config.AppConfig) {
			zl.Warn("config file changed, restart to apply")
		})
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		zl.Info("shutdown signal received")
		cancel()
	}()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	go watchdogLoop(ctx)

	zl.Info("grid trader started",
		zap.String("symbol", symbol),
		zap.Float64("spacing", cfg.Grid.Spacing),
		zap.Int("levels", cfg.Grid.Levels),
		zap.Bool("dryRun", *dryRun))

	err = eng.Run(ctx)
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil && ctx.Err() == nil {
		notify.Notify(grid.EventCriticalError, fmt.Sprintf("engine stopped: %v", err), nil)
		zl.Error("engine stopped", zap.Error(err))
		zl.Close()
		os.Exit(1)
	}
	zl.Info("grid trader exited")
}

func logConfig(lc config.LogConfig) logger.Config {
	cfg := logger.DefaultConfig()
	if lc.Level != "" {
		cfg.Level = lc.Level
	}
	if lc.File != "" {
		cfg.Outputs = []string{"stdout", "file"}
		cfg.OutputFile = lc.File
	}
	return cfg
}

func buildNotifier(nc config.NotifyConfig) *alert.Notifier {
	channels := []alert.Channel{alert.NewLogChannel("log", os.Stdout)}
	if nc.Pushover.Token != "" && nc.Pushover.User != "" {
		channels = append(channels, alert.NewPushoverChannel("pushover", nc.Pushover.Token, nc.Pushover.User))
	}
	mgr := alert.NewManager(channels, time.Duration(nc.ThrottleSec)*time.Second)
	return alert.NewNotifier(mgr)
}

// watchdogLoop 在 systemd 启用 watchdog 时按半周期喂狗。
func watchdogLoop(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}

// priceCache 保存行情流推来的最新价，超龄视为失效。
type priceCache struct {
	mu     sync.RWMutex
	price  float64
	at     time.Time
	maxAge time.Duration
}

func (c *priceCache) set(p float64) {
	c.mu.Lock()
	c.price, c.at = p, time.Now()
	c.mu.Unlock()
	metrics.LastPrice.Set(p)
}

func (c *priceCache) get() (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.price <= 0 || time.Since(c.at) > c.maxAge {
		return 0, false
	}
	return c.price, true
}
