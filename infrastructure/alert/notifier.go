package alert

import (
	"grid-trader-go/grid"
)

// Notifier 把引擎的事件回调桥接到告警管理器，实现 grid.Notifier。
// 发送为 fire-and-forget：任何通道错误都被吞掉，交易流程不受影响。
type Notifier struct {
	Manager *Manager
}

// NewNotifier 创建桥接器。
func NewNotifier(m *Manager) *Notifier {
	return &Notifier{Manager: m}
}

// Notify 按事件类型映射告警级别后发送。
func (n *Notifier) Notify(event, message string, fields map[string]interface{}) {
	if n == nil || n.Manager == nil {
		return
	}
	go func() {
		_ = n.Manager.SendAlert(Alert{
			Event:   event,
			Level:   levelFor(event),
			Message: message,
			Fields:  fields,
		})
	}()
}

func levelFor(event string) string {
	switch event {
	case grid.EventOrderFilled, grid.EventGridAdjusted:
		return "INFO"
	case grid.EventInsufficientBalance:
		return "WARNING"
	case grid.EventPlacementFailed:
		return "ERROR"
	case grid.EventCriticalError:
		return "CRITICAL"
	default:
		return "WARNING"
	}
}
