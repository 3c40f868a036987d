package config

import (
	"fmt"
	"net/url"

	"github.com/go-playground/validator/v10"
)

// RegisterCustomValidators registers custom validation functions
func RegisterCustomValidators(v *validator.Validate) error {
	return v.RegisterValidation("redis_url", validateRedisURL)
}

func validateRedisURL(fl validator.FieldLevel) bool {
	raw := fl.Field().String()
	if raw == "" {
		return true
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme == "redis" || u.Scheme == "rediss"
}

// validateCustom performs validation that spans several fields.
func validateCustom(cfg *Config) error {
	if cfg.Bus.Driver == "redis" && cfg.Bus.RedisURL == "" {
		return fmt.Errorf("bus.redis_url is required when bus.driver is redis")
	}
	if cfg.Monitor.StallThreshold <= cfg.Monitor.StallCheckInterval {
		return fmt.Errorf("monitor stall threshold must be greater than the stall check interval")
	}
	if cfg.Monitor.PollTimeout > cfg.Monitor.PollInterval {
		return fmt.Errorf("monitor poll timeout must not exceed the poll interval")
	}
	if cfg.Monitor.Stream.MaxDelay < cfg.Monitor.Stream.BaseDelay {
		return fmt.Errorf("monitor stream max delay must be at least the base delay")
	}
	return nil
}
