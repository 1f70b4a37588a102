package alert

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogChannel 日志告警通道
type LogChannel struct {
	logger *log.Logger
	name   string
}

// NewLogChannel 创建日志告警通道
func NewLogChannel(name string, output *os.File) *LogChannel {
	if output == nil {
		output = os.Stdout
	}
	return &LogChannel{
		logger: log.New(output, "[ALERT] ", log.LstdFlags),
		name:   name,
	}
}

// Send 发送告警到日志
func (c *LogChannel) Send(alert Alert) error {
	msg := fmt.Sprintf("[%s] %s: %s", alert.Level, alert.Event, alert.Message)
	if len(alert.Fields) > 0 {
		msg += " |"
		keys := make([]string, 0, len(alert.Fields))
		for k := range alert.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			msg += fmt.Sprintf(" %s=%v", k, alert.Fields[k])
		}
	}
	c.logger.Println(msg)
	return nil
}

// Name 返回通道名称
func (c *LogChannel) Name() string {
	return c.name
}

// DefaultPushoverURL Pushover 消息接口。
const DefaultPushoverURL = "https://api.pushover.net/1/messages.json"

// PushoverChannel 通过 Pushover 推送手机通知。
// Endpoint 与 HTTPClient 可注入，测试中指向 httptest。
type PushoverChannel struct {
	Token      string
	User       string
	Endpoint   string
	HTTPClient *http.Client
	name       string
}

// NewPushoverChannel 创建 Pushover 通道
func NewPushoverChannel(name, token, user string) *PushoverChannel {
	return &PushoverChannel{
		Token:      token,
		User:       user,
		Endpoint:   DefaultPushoverURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		name:       name,
	}
}

// Send 发送告警到 Pushover。CRITICAL 提升消息优先级。
func (c *PushoverChannel) Send(alert Alert) error {
	form := url.Values{
		"token":   {c.Token},
		"user":    {c.User},
		"title":   {fmt.Sprintf("[%s] %s", alert.Level, alert.Event)},
		"message": {alert.Message},
	}
	if alert.Level == "CRITICAL" {
		form.Set("priority", "1")
	}
	resp, err := c.HTTPClient.Post(c.Endpoint, "application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("pushover post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("pushover status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// Name 返回通道名称
func (c *PushoverChannel) Name() string {
	return c.name
}

// MockChannel 模拟告警通道（用于测试）。并发安全，
// 因为 Notifier 在独立 goroutine 中投递。
type MockChannel struct {
	name      string
	mu        sync.Mutex
	alerts    []Alert
	shouldErr bool
}

// NewMockChannel 创建模拟告警通道
func NewMockChannel(name string) *MockChannel {
	return &MockChannel{
		name:   name,
		alerts: make([]Alert, 0),
	}
}

// Send 记录告警（用于测试验证）
func (c *MockChannel) Send(alert Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shouldErr {
		return fmt.Errorf("mock error")
	}
	c.alerts = append(c.alerts, alert)
	return nil
}

// Name 返回通道名称
func (c *MockChannel) Name() string {
	return c.name
}

// GetAlerts 获取所有接收到的告警
func (c *MockChannel) GetAlerts() []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Alert, len(c.alerts))
	copy(out, c.alerts)
	return out
}

// SetShouldError 设置是否返回错误
func (c *MockChannel) SetShouldError(shouldErr bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shouldErr = shouldErr
}

// Count 返回接收到的告警数量
func (c *MockChannel) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.alerts)
}
