// Package extension provides the Forge extension adapter for PullPay.
//
// It implements the forge.Extension interface to integrate the pull-payment
// engine directory into a Forge application with automatic dependency
// discovery, DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.pullpay" or "pullpay" keys.
package extension

import (
	"context"
	"errors"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	pullpay "github.com/xraph/pullpay"
	"github.com/xraph/pullpay/billing"
	"github.com/xraph/pullpay/executor"
	"github.com/xraph/pullpay/registry"
	"github.com/xraph/pullpay/store"
	"github.com/xraph/pullpay/store/memory"
	"github.com/xraph/pullpay/swap"
	"github.com/xraph/pullpay/token"
	"github.com/xraph/pullpay/types"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "pullpay"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Recurring pull-payment engine with token conversion"

// ExtensionVersion is the semantic version.
const ExtensionVersion = pullpay.Version

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts PullPay as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	store      store.Store
	ledger     token.Ledger
	router     swap.Router
	factory    swap.Factory
	routerAddr types.Address
	directory  *pullpay.Directory
	registry   *registry.Registry
	executor   *executor.Executor
	engineOpts []pullpay.EngineOption
}

// New creates a new PullPay Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Directory returns the engine directory.
// This is nil until Register is called.
func (e *Extension) Directory() *pullpay.Directory { return e.directory }

// Registry returns the core registry.
// This is nil until Register is called.
func (e *Extension) Registry() *registry.Registry { return e.registry }

// Executor returns the conversion executor.
// This is nil until Register is called.
func (e *Extension) Executor() *executor.Executor { return e.executor }

// Register implements [forge.Extension]. It loads configuration,
// builds the registry, executor, engines and directory, and registers
// them in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if e.config.Owner == "" {
		return errors.New("pullpay: owner address is required")
	}
	owner := types.HexToAddress(e.config.Owner)
	hubToken := types.HexToAddress(e.config.HubToken)

	feeReceiver := owner
	if e.config.FeeReceiver != "" {
		feeReceiver = types.HexToAddress(e.config.FeeReceiver)
	}

	executorAddr := types.HexToAddress(e.config.ExecutorAddress)
	if executorAddr == types.ZeroAddress {
		return errors.New("pullpay: executor address is required")
	}

	// Use memory backends when nothing was provided programmatically.
	if e.store == nil {
		e.store = memory.New()
	}
	if e.ledger == nil {
		e.ledger = token.NewMemory()
	}
	if e.router == nil || e.factory == nil {
		amm := swap.NewMemory(e.ledger, ammAddress)
		e.router = amm
		e.factory = amm
		e.routerAddr = amm.Address()
	}

	e.registry = registry.New(owner, hubToken,
		registry.WithExecutionFee(e.config.ExecutionFee),
		registry.WithFeeReceiver(feeReceiver),
		registry.WithExtensionPeriod(e.config.ExtensionPeriod),
	)

	e.executor = executor.New(e.ledger, e.router, e.factory, e.registry, executorAddr, e.routerAddr)

	e.directory = pullpay.NewDirectory(owner)
	ctx := context.Background()

	for _, kind := range []billing.Kind{
		billing.KindSingle,
		billing.KindRecurring,
		billing.KindRecurringFreeTrial,
		billing.KindRecurringPaidTrial,
	} {
		eng, err := pullpay.NewEngine(kind, e.store, e.executor, e.registry, e.engineOpts...)
		if err != nil {
			return err
		}
		if err := e.directory.RegisterEngine(ctx, owner, eng.Name(), eng); err != nil {
			return err
		}
	}

	if e.config.EnableDynamic {
		for _, kind := range []billing.Kind{billing.KindSingle, billing.KindRecurring} {
			opts := append([]pullpay.EngineOption{pullpay.WithDynamic()}, e.engineOpts...)
			eng, err := pullpay.NewEngine(kind, e.store, e.executor, e.registry, opts...)
			if err != nil {
				return err
			}
			if err := e.directory.RegisterEngine(ctx, owner, eng.Name(), eng); err != nil {
				return err
			}
		}
	}

	if err := vessel.Provide(fapp.Container(), func() (*pullpay.Directory, error) {
		return e.directory, nil
	}); err != nil {
		return err
	}
	return vessel.Provide(fapp.Container(), func() (*registry.Registry, error) {
		return e.registry, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.directory == nil {
		return errors.New("pullpay: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.store.Migrate(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(ctx context.Context) error {
	if e.directory != nil {
		for _, identifier := range e.directory.Identifiers() {
			eng, err := e.directory.EngineFor(identifier)
			if err != nil {
				continue
			}
			if err := eng.Shutdown(ctx); err != nil {
				e.MarkStopped()
				return err
			}
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("pullpay: store not initialized")
	}
	return e.store.Ping(ctx)
}

// ammAddress is the default account the in-memory AMM settles through.
var ammAddress = types.HexToAddress("0x00000000000000000000000000000000000000AA")

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("pullpay: configuration is required but not found in config files; " +
				"ensure 'extensions.pullpay' or 'pullpay' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("pullpay: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("owner", e.config.Owner),
		forge.F("execution_fee", e.config.ExecutionFee),
		forge.F("extension_period", e.config.ExtensionPeriod),
		forge.F("enable_dynamic", e.config.EnableDynamic),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.pullpay" first (namespaced pattern).
	if cm.IsSet("extensions.pullpay") {
		if err := cm.Bind("extensions.pullpay", &cfg); err == nil {
			e.Logger().Debug("pullpay: loaded config from file",
				forge.F("key", "extensions.pullpay"),
			)
			return cfg, true
		}
		e.Logger().Warn("pullpay: failed to bind extensions.pullpay config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "pullpay" key.
	if cm.IsSet("pullpay") {
		if err := cm.Bind("pullpay", &cfg); err == nil {
			e.Logger().Debug("pullpay: loaded config from file",
				forge.F("key", "pullpay"),
			)
			return cfg, true
		}
		e.Logger().Warn("pullpay: failed to bind pullpay config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.ExecutionFee == 0 {
		cfg.ExecutionFee = defaults.ExecutionFee
	}
	if cfg.ExtensionPeriod == 0 {
		cfg.ExtensionPeriod = defaults.ExtensionPeriod
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.EnableDynamic {
		yamlConfig.EnableDynamic = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.Owner == "" && programmaticConfig.Owner != "" {
		yamlConfig.Owner = programmaticConfig.Owner
	}
	if yamlConfig.HubToken == "" && programmaticConfig.HubToken != "" {
		yamlConfig.HubToken = programmaticConfig.HubToken
	}
	if yamlConfig.FeeReceiver == "" && programmaticConfig.FeeReceiver != "" {
		yamlConfig.FeeReceiver = programmaticConfig.FeeReceiver
	}
	if yamlConfig.ExecutorAddress == "" && programmaticConfig.ExecutorAddress != "" {
		yamlConfig.ExecutorAddress = programmaticConfig.ExecutorAddress
	}

	// Numeric fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.ExecutionFee == 0 && programmaticConfig.ExecutionFee != 0 {
		yamlConfig.ExecutionFee = programmaticConfig.ExecutionFee
	}
	if yamlConfig.ExtensionPeriod == 0 && programmaticConfig.ExtensionPeriod != 0 {
		yamlConfig.ExtensionPeriod = programmaticConfig.ExtensionPeriod
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
