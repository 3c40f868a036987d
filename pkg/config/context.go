package config

import "context"

// ContextKey is an alias used for storing values in context
type ContextKey string

const ConfigCtxKey ContextKey = "config"

// ContextWithConfig stores the configuration in the context
func ContextWithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, ConfigCtxKey, cfg)
}

// FromContext returns the configuration attached to ctx, falling back to defaults.
func FromContext(ctx context.Context) *Config {
	if ctx != nil {
		if cfg, ok := ctx.Value(ConfigCtxKey).(*Config); ok && cfg != nil {
			return cfg
		}
	}
	return Default()
}

const ServiceCtxKey ContextKey = "config_service"

// ContextWithService stores the service that loaded the configuration.
func ContextWithService(ctx context.Context, svc Service) context.Context {
	return context.WithValue(ctx, ServiceCtxKey, svc)
}

// ServiceFromContext returns the stored service, or nil.
func ServiceFromContext(ctx context.Context) Service {
	if ctx == nil {
		return nil
	}
	svc, _ := ctx.Value(ServiceCtxKey).(Service)
	return svc
}
