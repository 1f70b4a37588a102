package config

// ApplyDefaults fills optional fields that were left out of the YAML.
func ApplyDefaults(cfg *AppConfig) {
	if cfg.Grid.MaxOpenOrders <= 0 {
		cfg.Grid.MaxOpenOrders = cfg.Grid.Levels * 2
	}
	if cfg.Engine.IntervalSec <= 0 {
		cfg.Engine.IntervalSec = 30
	}
	if cfg.Engine.SnapshotPath == "" {
		cfg.Engine.SnapshotPath = "grid-state.json"
	}
	if cfg.Engine.PausePath == "" {
		cfg.Engine.PausePath = "pause.flag"
	}
	if cfg.Engine.FillWindowMin <= 0 {
		cfg.Engine.FillWindowMin = 60
	}
	if cfg.Engine.CancelConfirmAttempts <= 0 {
		cfg.Engine.CancelConfirmAttempts = 5
	}
	if cfg.Engine.CancelConfirmDelayMs <= 0 {
		cfg.Engine.CancelConfirmDelayMs = 2000
	}
	if cfg.Gateway.RecvWindowMs <= 0 {
		cfg.Gateway.RecvWindowMs = 5000
	}
	if cfg.Gateway.RateLimit <= 0 {
		cfg.Gateway.RateLimit = 8
	}
	if cfg.Gateway.RateBurst <= 0 {
		cfg.Gateway.RateBurst = 3
	}
	if cfg.Notify.ThrottleSec <= 0 {
		cfg.Notify.ThrottleSec = 300
	}
	if cfg.Metrics.ListenAddr == "" {
		cfg.Metrics.ListenAddr = ":9091"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}
