package config

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Manager holds the active configuration and the sources it was loaded from.
type Manager struct {
	Service Service
	current atomic.Value // stores *Config
	sources []Source
	mu      sync.Mutex
}

// NewManager creates a new configuration manager.
func NewManager(service Service) *Manager {
	if service == nil {
		service = NewService()
	}
	return &Manager{Service: service}
}

// Load loads configuration from sources and makes it the active configuration.
func (m *Manager) Load(ctx context.Context, sources ...Source) (*Config, error) {
	m.mu.Lock()
	m.sources = append([]Source(nil), sources...)
	m.mu.Unlock()

	config, err := m.Service.Load(ctx, sources...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	m.current.Store(config)
	return config, nil
}

// Reload loads configuration again from the sources of the last Load.
func (m *Manager) Reload(ctx context.Context) (*Config, error) {
	return m.Load(ctx, m.Sources()...)
}

// Sources returns a copy of the currently configured sources.
func (m *Manager) Sources() []Source {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Source, len(m.sources))
	copy(out, m.sources)
	return out
}

// Get returns the active configuration, or nil before the first Load.
func (m *Manager) Get() *Config {
	if cfg, ok := m.current.Load().(*Config); ok {
		return cfg
	}
	return nil
}
