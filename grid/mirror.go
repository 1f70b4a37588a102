package grid

import "sort"

// Mirror 引擎对交易所挂单的本地映射：每个档位至多一张挂单。
// 周期之间只被 store 持有，周期内被单一维护流程独占，无并发访问。
type Mirror map[Level]*Order

// NewMirror returns an empty mirror.
func NewMirror() Mirror {
	return make(Mirror)
}

// Insert records an order at its level, replacing any previous entry.
func (m Mirror) Insert(o *Order) {
	m[o.Level] = o
}

// Has reports whether any order rests at the level.
func (m Mirror) Has(l Level) bool {
	_, ok := m[l]
	return ok
}

// CountSide 返回指定方向的挂单数量。
func (m Mirror) CountSide(side Side) int {
	n := 0
	for _, o := range m {
		if o.Side == side {
			n++
		}
	}
	return n
}

// SideLevels returns the levels of one side in ascending price order.
func (m Mirror) SideLevels(side Side) []Level {
	levels := make([]Level, 0, len(m))
	for l, o := range m {
		if o.Side == side {
			levels = append(levels, l)
		}
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i] < levels[j] })
	return levels
}

// Farthest 返回离参考价最远的档位：买侧为最低价，卖侧为最高价。
func (m Mirror) Farthest(side Side) (Level, bool) {
	levels := m.SideLevels(side)
	if len(levels) == 0 {
		return 0, false
	}
	if side == SideBuy {
		return levels[0], true
	}
	return levels[len(levels)-1], true
}

// Oldest returns the least-recently-placed order on one side.
func (m Mirror) Oldest(side Side) (*Order, bool) {
	var oldest *Order
	for _, o := range m {
		if o.Side != side {
			continue
		}
		if oldest == nil || o.OpenedAt.Before(oldest.OpenedAt) {
			oldest = o
		}
	}
	return oldest, oldest != nil
}

// Clone 返回镜像的深拷贝（订单按值复制），用于失败回滚与测试比较。
func (m Mirror) Clone() Mirror {
	out := make(Mirror, len(m))
	for l, o := range m {
		cp := *o
		out[l] = &cp
	}
	return out
}
