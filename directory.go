package pullpay

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/xraph/pullpay/plugin"
	"github.com/xraph/pullpay/registry"
	"github.com/xraph/pullpay/types"
)

// Directory is the pull-payment engine registry: identifier to engine
// mapping, executor account grants and keeper upkeep linkage. Mutations
// are owner-only.
type Directory struct {
	mu      sync.RWMutex
	owner   types.Address
	engines map[string]*Engine
	granted map[types.Address]bool // false = explicitly revoked
	upkeeps map[string]uint64      // engine identifier -> upkeep id
	plugins *plugin.Registry
	logger  *slog.Logger
}

// DirectoryOption configures a Directory.
type DirectoryOption func(*Directory)

// WithDirectoryLogger sets the logger.
func WithDirectoryLogger(logger *slog.Logger) DirectoryOption {
	return func(d *Directory) { d.logger = logger }
}

// WithDirectoryPlugins sets the plugin registry directory events are
// dispatched through.
func WithDirectoryPlugins(plugins *plugin.Registry) DirectoryOption {
	return func(d *Directory) { d.plugins = plugins }
}

// NewDirectory creates a Directory owned by the given address.
func NewDirectory(owner types.Address, opts ...DirectoryOption) *Directory {
	d := &Directory{
		owner:   owner,
		engines: make(map[string]*Engine),
		granted: make(map[types.Address]bool),
		upkeeps: make(map[string]uint64),
		plugins: plugin.NewRegistry(),
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Owner returns the directory owner.
func (d *Directory) Owner() types.Address { return d.owner }

// RegisterEngine binds an engine under an identifier. Re-registration
// overwrites the previous binding; the engine's executor account is
// implicitly granted.
func (d *Directory) RegisterEngine(ctx context.Context, caller types.Address, identifier string, e *Engine) error {
	if caller != d.owner {
		return ErrNotOwner
	}
	if e == nil {
		return ErrInvalidExecutorAddress
	}

	executorAddr := e.executor.Address()

	d.mu.Lock()
	d.engines[identifier] = e
	d.granted[executorAddr] = true
	d.mu.Unlock()

	d.logger.Info("engine registered",
		"identifier", identifier,
		"engine", e.Name(),
		"executor", executorAddr.Hex(),
	)
	d.plugins.EmitRegistryUpdated(ctx, identifier, executorAddr)
	d.plugins.EmitExecutorGranted(ctx, executorAddr)

	return nil
}

// EngineFor returns the engine bound to identifier.
func (d *Directory) EngineFor(identifier string) (*Engine, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	e, ok := d.engines[identifier]
	if !ok {
		return nil, registry.ErrIdentifierNotFound
	}
	return e, nil
}

// EngineForOrDie returns the engine bound to identifier and panics when
// the binding is missing. Deployment wiring only.
func (d *Directory) EngineForOrDie(identifier string) *Engine {
	e, err := d.EngineFor(identifier)
	if err != nil {
		panic(err)
	}
	return e
}

// Identifiers returns the registered identifiers in sorted order.
func (d *Directory) Identifiers() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]string, 0, len(d.engines))
	for identifier := range d.engines {
		out = append(out, identifier)
	}
	sort.Strings(out)
	return out
}

// GrantExecutor marks an executor account as authorized.
func (d *Directory) GrantExecutor(ctx context.Context, caller, executorAddr types.Address) error {
	if caller != d.owner {
		return ErrNotOwner
	}
	if executorAddr == types.ZeroAddress {
		return ErrInvalidExecutorAddress
	}

	d.mu.Lock()
	d.granted[executorAddr] = true
	d.mu.Unlock()

	d.logger.Info("executor granted", "executor", executorAddr.Hex())
	d.plugins.EmitExecutorGranted(ctx, executorAddr)

	return nil
}

// RevokeExecutor withdraws an executor grant. Revoking twice fails.
func (d *Directory) RevokeExecutor(ctx context.Context, caller, executorAddr types.Address) error {
	if caller != d.owner {
		return ErrNotOwner
	}
	if executorAddr == types.ZeroAddress {
		return ErrInvalidExecutorAddress
	}

	d.mu.Lock()
	granted, known := d.granted[executorAddr]
	if !known || !granted {
		d.mu.Unlock()
		return ErrExecutorAlreadyRevoked
	}
	d.granted[executorAddr] = false
	d.mu.Unlock()

	d.logger.Info("executor revoked", "executor", executorAddr.Hex())
	d.plugins.EmitExecutorRevoked(ctx, executorAddr)

	return nil
}

// IsExecutorGranted reports whether an executor account holds a live
// grant.
func (d *Directory) IsExecutorGranted(executorAddr types.Address) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.granted[executorAddr]
}

// SetUpkeepID links a keeper upkeep id to an engine identifier.
func (d *Directory) SetUpkeepID(caller types.Address, identifier string, upkeepID uint64) error {
	if caller != d.owner {
		return ErrNotOwner
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.engines[identifier]; !ok {
		return registry.ErrIdentifierNotFound
	}
	d.upkeeps[identifier] = upkeepID
	return nil
}

// UpkeepID returns the keeper upkeep id linked to an engine identifier.
func (d *Directory) UpkeepID(identifier string) (uint64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	upkeepID, ok := d.upkeeps[identifier]
	if !ok {
		return 0, registry.ErrIdentifierNotFound
	}
	return upkeepID, nil
}
