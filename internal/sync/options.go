package sync

import (
	"time"

	"packline/internal/config"
	"packline/internal/models"
)

// OptionsFromConfig builds channel options from the configured tuning knobs.
// Zero knobs fall back to the defaults NewClient applies.
func OptionsFromConfig(cfg config.SyncConfig, url, role string, team models.TeamType) Options {
	return Options{
		URL:          url,
		Role:         role,
		Team:         team,
		PingInterval: time.Duration(cfg.PingIntervalSeconds) * time.Second,
		PongTimeout:  time.Duration(cfg.PongTimeoutSeconds) * time.Second,
		BackoffMin:   time.Duration(cfg.BackoffMinSeconds) * time.Second,
		BackoffMax:   time.Duration(cfg.BackoffMaxSeconds) * time.Second,
	}
}
