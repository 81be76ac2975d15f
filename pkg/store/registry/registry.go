// Package registry manages storage engine connector factories. Engine
// packages register themselves in init and are wired into a binary via
// blank imports.
package registry

import (
	"sync"

	"go.uber.org/zap"

	"github.com/tiendalink/tiendasync/pkg/errors"
	"github.com/tiendalink/tiendasync/pkg/logger"
	"github.com/tiendalink/tiendasync/pkg/store/core"
)

// Factory creates a connector for the given connection parameters.
// Construction never touches the engine; Open does.
type Factory func(params core.Params) core.Connector

// Registry manages engine registration and instantiation
type Registry struct {
	factories map[core.Engine]Factory
	mu        sync.RWMutex
	logger    *zap.Logger
}

// Global registry instance
var globalRegistry = NewRegistry()

// NewRegistry creates a new engine registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[core.Engine]Factory),
		logger:    logger.Get().With(zap.String("component", "engine_registry")),
	}
}

// Register registers an engine connector factory
func (r *Registry) Register(engine core.Engine, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[engine]; exists {
		return errors.Newf(errors.ErrorTypeConfig, "engine %s already registered", engine)
	}

	r.factories[engine] = factory
	r.logger.Info("engine registered", zap.String("engine", string(engine)))
	return nil
}

// Create creates a connector for the named engine
func (r *Registry) Create(engine core.Engine, params core.Params) (core.Connector, error) {
	r.mu.RLock()
	factory, exists := r.factories[engine]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.Newf(errors.ErrorTypeConfig, "engine %s not registered", engine)
	}
	return factory(params), nil
}

// Registered reports whether the engine has a factory
func (r *Registry) Registered(engine core.Engine) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[engine]
	return ok
}

// Register registers a factory in the global registry
func Register(engine core.Engine, factory Factory) error {
	return globalRegistry.Register(engine, factory)
}

// MustRegister registers a factory and panics on conflict. Engine
// packages call this from init.
func MustRegister(engine core.Engine, factory Factory) {
	if err := globalRegistry.Register(engine, factory); err != nil {
		panic(err)
	}
}

// Create creates a connector from the global registry
func Create(engine core.Engine, params core.Params) (core.Connector, error) {
	return globalRegistry.Create(engine, params)
}

// Registered reports whether the engine is registered globally
func Registered(engine core.Engine) bool {
	return globalRegistry.Registered(engine)
}
