package resilience

import "time"

// BreakerFromSettings builds a BreakerConfig from config-file values. Zero or
// negative values keep the defaults.
func BreakerFromSettings(failures, cooldownSecs int) BreakerConfig {
	cfg := DefaultBreakerConfig()
	if failures > 0 {
		cfg.Failures = failures
	}
	if cooldownSecs > 0 {
		cfg.Cooldown = time.Duration(cooldownSecs) * time.Second
	}
	return cfg
}
