package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env           string        `yaml:"env"`
	Symbol        string        `yaml:"symbol"`
	BaseCurrency  string        `yaml:"baseCurrency"`
	QuoteCurrency string        `yaml:"quoteCurrency"`
	Grid          GridParams    `yaml:"grid"`
	Engine        EngineConfig  `yaml:"engine"`
	Gateway       GatewayConfig `yaml:"gateway"`
	Notify        NotifyConfig  `yaml:"notify"`
	Metrics       MetricsConfig `yaml:"metrics"`
	Log           LogConfig     `yaml:"log"`
}

// GridParams 描述网格几何：围绕参考价等距排布 levels 档买卖单。
type GridParams struct {
	Spacing float64 `yaml:"spacing"` // 相邻档位的绝对价差
	Levels  int     `yaml:"levels"`  // 每侧档位数
	Amount  float64 `yaml:"amount"`  // 每档下单数量（基础货币）
	// MaxOpenOrders 为全局挂单上限，缺省 2*levels。
	MaxOpenOrders int `yaml:"maxOpenOrders"`
	// BandTolerance 为允许挂单区间两端的放宽量，防止边缘档位抖动。
	BandTolerance float64 `yaml:"bandTolerance"`
}

type EngineConfig struct {
	IntervalSec   int    `yaml:"intervalSec"`   // 维护周期（秒）
	SnapshotPath  string `yaml:"snapshotPath"`  // 状态快照文件
	PausePath     string `yaml:"pausePath"`     // 暂停标记文件，存在即暂停
	FillWindowMin int    `yaml:"fillWindowMin"` // 对账回看成交的窗口（分钟）
	// 撤单确认轮询参数
	CancelConfirmAttempts int `yaml:"cancelConfirmAttempts"`
	CancelConfirmDelayMs  int `yaml:"cancelConfirmDelayMs"`
}

type GatewayConfig struct {
	BaseURL      string `yaml:"baseURL"`
	WsURL        string `yaml:"wsURL"`
	APIKey       string `yaml:"apiKey"`
	APISecret    string `yaml:"apiSecret"`
	RecvWindowMs int    `yaml:"recvWindowMs"`
	// REST 限速：每秒令牌数与桶容量。
	RateLimit float64 `yaml:"rateLimit"`
	RateBurst int     `yaml:"rateBurst"`
}

type NotifyConfig struct {
	ThrottleSec int            `yaml:"throttleSec"` // 同类告警的最小间隔
	Pushover    PushoverConfig `yaml:"pushover"`
}

type PushoverConfig struct {
	Token string `yaml:"token"`
	User  string `yaml:"user"`
}

type MetricsConfig struct {
	ListenAddr string `yaml:"listenAddr"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Load reads YAML config from path, applies defaults and validates.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	ApplyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides sensitive fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("GRID_API_KEY"); v != "" {
		cfg.Gateway.APIKey = v
	}
	if v := os.Getenv("GRID_API_SECRET"); v != "" {
		cfg.Gateway.APISecret = v
	}
	if v := os.Getenv("GRID_PUSHOVER_TOKEN"); v != "" {
		cfg.Notify.Pushover.Token = v
	}
	if v := os.Getenv("GRID_PUSHOVER_USER"); v != "" {
		cfg.Notify.Pushover.User = v
	}
	return cfg, Validate(cfg)
}
