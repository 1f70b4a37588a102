package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"grid-trader-go/grid"
)

// PauseWatcher 监视暂停标记文件：文件存在即暂停交易。
// Check 是周期内的权威判断；Run 里的 fsnotify 监听只负责在周期之间
// 及时更新缓存状态（日志与指标），丢事件也无妨。
type PauseWatcher struct {
	Path string
	Log  *zap.Logger

	// Attempts/Delay 约束 stat 失败时的有限重试。
	Attempts int
	Delay    time.Duration

	OnChange func(paused bool)

	mu     sync.RWMutex
	paused bool
}

// NewPauseWatcher 创建监视器。
func NewPauseWatcher(path string, log *zap.Logger) *PauseWatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &PauseWatcher{
		Path:     path,
		Log:      log,
		Attempts: 3,
		Delay:    500 * time.Millisecond,
	}
}

// Check 读取当前暂停状态。文件系统持续不可读时返回错误，
// 调用方应当把它当作致命问题：无法判断是否暂停就不能继续交易。
func (w *PauseWatcher) Check() (bool, error) {
	var paused bool
	err := grid.Retry(w.Attempts, w.Delay, func() (bool, error) {
		_, err := os.Stat(w.Path)
		if err == nil {
			paused = true
			return true, nil
		}
		if os.IsNotExist(err) {
			paused = false
			return true, nil
		}
		return false, err
	})
	if err != nil {
		return false, fmt.Errorf("pause flag %s unreadable: %w", w.Path, err)
	}
	w.set(paused)
	return paused, nil
}

// Paused 返回缓存的暂停状态。
func (w *PauseWatcher) Paused() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.paused
}

func (w *PauseWatcher) set(paused bool) {
	w.mu.Lock()
	changed := paused != w.paused
	w.paused = paused
	w.mu.Unlock()
	if !changed {
		return
	}
	if paused {
		w.Log.Warn("pause flag detected, trading suspended", zap.String("path", w.Path))
	} else {
		w.Log.Info("pause flag cleared, trading resumes", zap.String("path", w.Path))
	}
	if w.OnChange != nil {
		w.OnChange(paused)
	}
}

// Run 用 fsnotify 监听标记文件所在目录，外加低频轮询兜底，
// 直到 ctx 取消。监听失败只影响状态更新的及时性，不影响 Check 的正确性。
func (w *PauseWatcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.Path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	target := filepath.Clean(w.Path)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	if _, err := w.Check(); err != nil {
		w.Log.Warn("initial pause check failed", zap.Error(err))
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) == target {
				if _, err := w.Check(); err != nil {
					w.Log.Warn("pause check failed after fs event", zap.Error(err))
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.Log.Warn("pause watcher error", zap.Error(err))
		case <-ticker.C:
			if _, err := w.Check(); err != nil {
				w.Log.Warn("periodic pause check failed", zap.Error(err))
			}
		}
	}
}
