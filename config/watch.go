package config

import (
	"context"
	"os"
	"time"
)

// Watcher polls the config file mtime and re-parses on change.
// 启动时先记录当前 mtime，已存在的文件不会触发首次回调；
// 解析或校验失败的版本被跳过，写到一半的文件不会外泄。
type Watcher struct {
	Path     string
	Interval time.Duration
}

// Start blocks until ctx is canceled, invoking onUpdate with each
// successfully re-parsed config.
func (w Watcher) Start(ctx context.Context, onUpdate func(AppConfig)) error {
	interval := w.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	var lastMod time.Time
	if info, err := readFileInfo(w.Path); err == nil {
		lastMod = info.ModTime()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		info, err := readFileInfo(w.Path)
		if err != nil || !info.ModTime().After(lastMod) {
			continue
		}
		lastMod = info.ModTime()
		cfg, err := LoadWithEnvOverrides(w.Path)
		if err != nil {
			continue
		}
		if onUpdate != nil {
			onUpdate(cfg)
		}
	}
}

// readFileInfo is extracted for testing/mocking.
var readFileInfo = func(path string) (info interface{ ModTime() time.Time }, err error) {
	return os.Stat(path)
}
