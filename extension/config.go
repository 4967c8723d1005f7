package extension

// Config holds the PullPay extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.pullpay" or "pullpay" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// Owner is the hex address that owns the registry and engine directory.
	Owner string `json:"owner" mapstructure:"owner" yaml:"owner"`

	// HubToken is the hex address of the intermediate token used for
	// two-hop conversion routing.
	HubToken string `json:"hub_token" mapstructure:"hub_token" yaml:"hub_token"`

	// FeeReceiver is the hex address execution fees are paid to.
	// Defaults to the owner when empty.
	FeeReceiver string `json:"fee_receiver" mapstructure:"fee_receiver" yaml:"fee_receiver"`

	// ExecutorAddress is the hex address executions settle through.
	// Subscribers grant allowances to this address.
	ExecutorAddress string `json:"executor_address" mapstructure:"executor_address" yaml:"executor_address"`

	// ExecutionFee is the fee rate in basis points (default: 1000 = 10%).
	ExecutionFee uint16 `json:"execution_fee" mapstructure:"execution_fee" yaml:"execution_fee"`

	// ExtensionPeriod is the grace window in seconds before upkeep
	// force-cancels an uncollectible subscription (default: 120).
	ExtensionPeriod uint64 `json:"extension_period" mapstructure:"extension_period" yaml:"extension_period"`

	// EnableDynamic additionally registers the dynamic single and
	// recurring engines, which take terms per subscription.
	EnableDynamic bool `json:"enable_dynamic" mapstructure:"enable_dynamic" yaml:"enable_dynamic"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ExecutionFee:    1000,
		ExtensionPeriod: 120,
	}
}
