package config

import (
	"errors"
	"fmt"
)

// Validate ensures required fields are present and the grid geometry is sane.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return errors.New("env is required")
	}
	if cfg.Symbol == "" {
		return errors.New("symbol is required")
	}
	if cfg.BaseCurrency == "" || cfg.QuoteCurrency == "" {
		return errors.New("baseCurrency/quoteCurrency is required")
	}
	if cfg.Grid.Spacing <= 0 {
		return errors.New("grid.spacing must be > 0")
	}
	if cfg.Grid.Levels <= 0 {
		return errors.New("grid.levels must be > 0")
	}
	if cfg.Grid.Amount <= 0 {
		return errors.New("grid.amount must be > 0")
	}
	if cfg.Grid.MaxOpenOrders < cfg.Grid.Levels {
		return fmt.Errorf("grid.maxOpenOrders (%d) must be >= grid.levels (%d)",
			cfg.Grid.MaxOpenOrders, cfg.Grid.Levels)
	}
	if cfg.Grid.BandTolerance < 0 {
		return errors.New("grid.bandTolerance must be >= 0")
	}
	if cfg.Gateway.BaseURL == "" {
		return errors.New("gateway.baseURL is required")
	}
	if cfg.Gateway.APIKey == "" || cfg.Gateway.APISecret == "" {
		return errors.New("gateway.apiKey/apiSecret is required (or env overrides)")
	}
	if cfg.Notify.Pushover.Token != "" && cfg.Notify.Pushover.User == "" {
		return errors.New("notify.pushover.user is required when token is set")
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug/info/warn/error", cfg.Log.Level)
	}
	return nil
}
