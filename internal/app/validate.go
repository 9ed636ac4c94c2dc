package app

import (
	"fmt"

	"tradetalk/pkg/config"
)

// validateConfig performs quick, fail-fast validation of the effective
// configuration before starting long-running services. Keep checks light
// and focused so callers can surface user-friendly errors.
func validateConfig(eff config.EffectiveConfigResult) error {
	if eff.DBPath == "" {
		return fmt.Errorf("database path is empty: set --db flag, TRADETALK_DB_PATH env, or server.db_path in config")
	}
	if eff.Config == nil {
		return fmt.Errorf("effective config missing")
	}
	if ttl := eff.Config.Chat.TypingTTL.Duration(); ttl < 0 {
		return fmt.Errorf("chat.typing_ttl must not be negative")
	}
	if eff.Config.Retention.Enabled && eff.Config.Retention.Period == "" {
		return fmt.Errorf("retention enabled but retention.period is empty")
	}
	return nil
}
