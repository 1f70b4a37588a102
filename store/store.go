package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"grid-trader-go/grid"
)

// ErrNotExists 表示快照文件尚不存在（首次启动）。
var ErrNotExists = errors.New("snapshot does not exist")

// ErrCorruptSnapshot 表示快照无法解析，调用方应改为从交易所冷启动。
var ErrCorruptSnapshot = errors.New("snapshot corrupt")

// SnapshotStore 把镜像与统计持久化为单个 JSON 文件。
// 写入走 临时文件 + rename，任一时刻磁盘上都只有完整快照，不存在半写状态。
type SnapshotStore struct {
	Path string
	Log  *zap.Logger
}

// New 创建快照存储。
func New(path string, log *zap.Logger) *SnapshotStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &SnapshotStore{Path: path, Log: log}
}

// snapshotFile 是落盘格式。orders 以档位价格字符串为键。
type snapshotFile struct {
	Orders     map[string]orderRecord `json:"orders"`
	Statistics grid.Statistics        `json:"statistics"`
}

type orderRecord struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Side      string    `json:"side"`
	Status    string    `json:"status"`
	Amount    float64   `json:"amount"`
	Remaining float64   `json:"remaining"`
	OpenedAt  time.Time `json:"opened_at"`
}

// Save 原子落盘当前镜像与统计。空镜像写出
// {"orders":{},"statistics":{...}}，与冷启动时 Load 的缺省值互为镜像。
func (s *SnapshotStore) Save(m grid.Mirror, stats grid.Statistics) error {
	file := snapshotFile{
		Orders:     make(map[string]orderRecord, len(m)),
		Statistics: stats,
	}
	for lvl, o := range m {
		file.Orders[lvl.String()] = orderRecord{
			ID:        o.ID,
			Symbol:    o.Symbol,
			Price:     lvl.Price(),
			Side:      string(o.Side),
			Status:    string(o.Status),
			Amount:    o.Amount,
			Remaining: o.Remaining,
			OpenedAt:  o.OpenedAt,
		}
	}

	b, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if dir := filepath.Dir(s.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write snapshot temp: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	s.Log.Debug("snapshot saved",
		zap.String("path", s.Path),
		zap.Int("orders", len(m)))
	return nil
}

// Load 读取快照。文件缺失返回 ErrNotExists，内容无法解析或字段非法
// 返回 ErrCorruptSnapshot；两种情况调用方都应从交易所重建状态。
func (s *SnapshotStore) Load() (grid.Mirror, grid.Statistics, error) {
	var stats grid.Statistics
	b, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, stats, ErrNotExists
		}
		return nil, stats, fmt.Errorf("read snapshot: %w", err)
	}
	if len(b) == 0 {
		return nil, stats, fmt.Errorf("%w: empty file", ErrCorruptSnapshot)
	}

	var file snapshotFile
	if err := json.Unmarshal(b, &file); err != nil {
		return nil, stats, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}

	m := grid.NewMirror()
	for key, rec := range file.Orders {
		if rec.Price <= 0 {
			return nil, stats, fmt.Errorf("%w: order %q has non-positive price", ErrCorruptSnapshot, key)
		}
		side := grid.Side(rec.Side)
		if side != grid.SideBuy && side != grid.SideSell {
			return nil, stats, fmt.Errorf("%w: order %q has invalid side %q", ErrCorruptSnapshot, key, rec.Side)
		}
		status := grid.Status(rec.Status)
		if status == "" {
			status = grid.StatusOpen
		}
		m.Insert(&grid.Order{
			ID:        rec.ID,
			Symbol:    rec.Symbol,
			Side:      side,
			Level:     grid.LevelOf(rec.Price),
			Amount:    rec.Amount,
			Remaining: rec.Remaining,
			Status:    status,
			OpenedAt:  rec.OpenedAt,
		})
	}
	s.Log.Info("snapshot loaded",
		zap.String("path", s.Path),
		zap.Int("orders", len(m)),
		zap.Int("totalBuys", file.Statistics.TotalBuys),
		zap.Int("totalSells", file.Statistics.TotalSells))
	return m, file.Statistics, nil
}
