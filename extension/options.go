package extension

import (
	pullpay "github.com/xraph/pullpay"
	"github.com/xraph/pullpay/plugin"
	"github.com/xraph/pullpay/store"
	"github.com/xraph/pullpay/swap"
	"github.com/xraph/pullpay/token"
	"github.com/xraph/pullpay/types"
)

// Option configures the PullPay Forge extension.
type Option func(*Extension)

// WithStore sets the store for the pull-payment engines.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithLedger sets the token ledger executions settle against.
func WithLedger(l token.Ledger) Option {
	return func(e *Extension) {
		e.ledger = l
	}
}

// WithAMM sets the swap router and pair factory used for token
// conversion, and the address approvals are granted to.
func WithAMM(router swap.Router, factory swap.Factory, routerAddr types.Address) Option {
	return func(e *Extension) {
		e.router = router
		e.factory = factory
		e.routerAddr = routerAddr
	}
}

// WithEngineOption passes a pullpay.EngineOption through to every engine.
func WithEngineOption(opt pullpay.EngineOption) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugins sets the plugin registry shared by every engine.
func WithPlugins(plugins *plugin.Registry) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, pullpay.WithPlugins(plugins))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithOwner sets the registry and directory owner address.
func WithOwner(owner types.Address) Option {
	return func(e *Extension) { e.config.Owner = owner.Hex() }
}

// WithHubToken sets the intermediate token for two-hop conversion routing.
func WithHubToken(hub types.Address) Option {
	return func(e *Extension) { e.config.HubToken = hub.Hex() }
}

// WithFeeReceiver sets the address execution fees are paid to.
func WithFeeReceiver(addr types.Address) Option {
	return func(e *Extension) { e.config.FeeReceiver = addr.Hex() }
}

// WithExecutorAddress sets the address executions settle through.
func WithExecutorAddress(addr types.Address) Option {
	return func(e *Extension) { e.config.ExecutorAddress = addr.Hex() }
}

// WithExecutionFee sets the fee rate in basis points.
func WithExecutionFee(bps uint16) Option {
	return func(e *Extension) { e.config.ExecutionFee = bps }
}

// WithExtensionPeriod sets the upkeep grace window in seconds.
func WithExtensionPeriod(seconds uint64) Option {
	return func(e *Extension) { e.config.ExtensionPeriod = seconds }
}

// WithDynamicEngines additionally registers the dynamic single and
// recurring engines.
func WithDynamicEngines() Option {
	return func(e *Extension) { e.config.EnableDynamic = true }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
