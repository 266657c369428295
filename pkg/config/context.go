package config

import (
	"context"
	"sync"

	"github.com/compozy/flowfix/pkg/logger"
)

// ContextKey is an alias used for storing values in context
type ContextKey string

const (
	// ManagerCtxKey is the context key used to store the *Manager instance
	ManagerCtxKey ContextKey = "config_manager"
)

// ContextWithManager stores the configuration manager in the context
func ContextWithManager(ctx context.Context, m *Manager) context.Context {
	return context.WithValue(ctx, ManagerCtxKey, m)
}

var defaultManager *Manager
var defaultManagerOnce sync.Once

// ManagerFromContext retrieves the configuration manager from the context.
// If none is found, it falls back to a lazily-initialized manager holding
// defaults and environment overrides.
func ManagerFromContext(ctx context.Context) *Manager {
	if ctx != nil {
		if m, ok := ctx.Value(ManagerCtxKey).(*Manager); ok && m != nil {
			return m
		}
	}
	return getDefaultManager(ctx)
}

// FromContext returns the active configuration (*Config) for the provided context.
func FromContext(ctx context.Context) *Config {
	m := ManagerFromContext(ctx)
	if m == nil {
		return nil
	}
	if cfg := m.Get(); cfg != nil {
		return cfg
	}
	return Default()
}

func getDefaultManager(ctx context.Context) *Manager {
	defaultManagerOnce.Do(func() {
		m := NewManager(NewService())
		if _, err := m.Load(ctx, NewDefaultProvider(), NewEnvProvider()); err != nil {
			log := logger.FromContext(ctx)
			log.Warn("failed to load default configuration, using fallback defaults", "error", err)
		}
		defaultManager = m
	})
	return defaultManager
}
