package plugbus

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/modkit/plugbus/pkg/plugbus/config"
	"github.com/modkit/plugbus/pkg/plugbus/event"
	"github.com/modkit/plugbus/pkg/plugbus/observability"
	"github.com/modkit/plugbus/pkg/plugbus/registry"
	"github.com/modkit/plugbus/pkg/plugbus/statstore"
)

// Services bundles the registry and bus a host hands to its modules.
type Services struct {
	Registry *registry.Registry
	Bus      *event.Bus

	// ownedStore is a stats store opened by NewFromConfigFile; Close
	// releases it. Stores supplied via WithBusConfig stay caller-owned.
	ownedStore statstore.Store
}

// Option configures Services construction.
type Option func(*settings)

type settings struct {
	logger *slog.Logger
	busCfg event.BusConfig
}

// WithLogger sets the structured logger for both registry and bus.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

// WithBusConfig overrides the bus configuration.
func WithBusConfig(cfg event.BusConfig) Option {
	return func(s *settings) {
		s.busCfg = cfg
	}
}

// New constructs the registry and bus with defaults.
func New(opts ...Option) *Services {
	s := settings{busCfg: event.DefaultBusConfig}
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger != nil && s.busCfg.Logger == nil {
		s.busCfg.Logger = s.logger
	}

	var regOpts []registry.Option
	if s.logger != nil {
		regOpts = append(regOpts, registry.WithLogger(s.logger))
	}

	return &Services{
		Registry: registry.New(regOpts...),
		Bus:      event.NewBus(s.busCfg),
	}
}

// NewFromConfigFile constructs Services from a host configuration file
// (YAML or JSON). Recognized keys:
//
//	queue_size:       async delivery queue bound (int)
//	metrics_enabled:  record OpenTelemetry metrics (bool)
//	stats_path:       SQLite file for persisted topic stats (string)
func NewFromConfigFile(path string, opts ...Option) (*Services, error) {
	cfg, err := config.FromFile(path)
	if err != nil {
		return nil, err
	}

	s := settings{busCfg: event.DefaultBusConfig}
	for _, opt := range opts {
		opt(&s)
	}

	busCfg := s.busCfg
	busCfg.QueueSize = cfg.Int("queue_size", busCfg.QueueSize)
	if busCfg.Logger == nil {
		busCfg.Logger = s.logger
	}
	if cfg.Bool("metrics_enabled", false) && busCfg.Metrics == nil {
		busCfg.Metrics = observability.NewMetricsRecorder()
	}

	var owned statstore.Store
	if statsPath := cfg.String("stats_path", ""); statsPath != "" && busCfg.StatsStore == nil {
		store, err := statstore.NewSQLiteStore(statsPath)
		if err != nil {
			return nil, fmt.Errorf("open stats store: %w", err)
		}
		busCfg.StatsStore = store
		owned = store
	}

	var regOpts []registry.Option
	if s.logger != nil {
		regOpts = append(regOpts, registry.WithLogger(s.logger))
	}

	return &Services{
		Registry:   registry.New(regOpts...),
		Bus:        event.NewBus(busCfg),
		ownedStore: owned,
	}, nil
}

// Close shuts down the bus (draining queued deliveries and flushing
// stats) and releases any store opened by NewFromConfigFile.
func (s *Services) Close() error {
	err := s.Bus.Close()
	if s.ownedStore != nil {
		err = errors.Join(err, s.ownedStore.Close())
	}
	return err
}
