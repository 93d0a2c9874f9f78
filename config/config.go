package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	tmmath "github.com/tendermint/checkpoint-light/libs/math"
)

const (
	// LogFormatPlain is a format for colored text
	LogFormatPlain = "plain"
	// LogFormatJSON is a format for json output
	LogFormatJSON = "json"

	// DefaultLogLevel defines a default log level as INFO.
	DefaultLogLevel = "info"
)

// NOTE: Most of the structs & relevant comments + the
// default configuration options were used to manually
// generate the config.toml. Please reflect any changes
// made here in the defaultConfigTemplate constant in
// config/toml.go
var (
	DefaultHomeDir   = ".checkpoint-light"
	defaultConfigDir = "config"
	defaultDataDir   = "data"

	defaultConfigFileName  = "config.toml"
	defaultGenesisJSONName = "genesis.json"

	defaultConfigFilePath  = filepath.Join(defaultConfigDir, defaultConfigFileName)
	defaultGenesisJSONPath = filepath.Join(defaultConfigDir, defaultGenesisJSONName)
)

// Config defines the top level configuration for a checkpoint light client
type Config struct {
	// Top level options use an anonymous struct
	BaseConfig `mapstructure:",squash"`

	// Options for services
	Light           *LightConfig           `mapstructure:"light"`
	Sync            *SyncConfig            `mapstructure:"sync"`
	Instrumentation *InstrumentationConfig `mapstructure:"instrumentation"`
}

// DefaultConfig returns a default configuration for a light client
func DefaultConfig() *Config {
	return &Config{
		BaseConfig:      DefaultBaseConfig(),
		Light:           DefaultLightConfig(),
		Sync:            DefaultSyncConfig(),
		Instrumentation: DefaultInstrumentationConfig(),
	}
}

// TestConfig returns a configuration that can be used for testing
func TestConfig() *Config {
	return &Config{
		BaseConfig:      TestBaseConfig(),
		Light:           TestLightConfig(),
		Sync:            TestSyncConfig(),
		Instrumentation: TestInstrumentationConfig(),
	}
}

// SetRoot sets the RootDir for all Config structs
func (cfg *Config) SetRoot(root string) *Config {
	cfg.BaseConfig.RootDir = root
	cfg.Sync.RootDir = root
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *Config) ValidateBasic() error {
	if err := cfg.BaseConfig.ValidateBasic(); err != nil {
		return err
	}
	if err := cfg.Light.ValidateBasic(); err != nil {
		return errors.Wrap(err, "error in [light] section")
	}
	if err := cfg.Sync.ValidateBasic(); err != nil {
		return errors.Wrap(err, "error in [sync] section")
	}
	return errors.Wrap(
		cfg.Instrumentation.ValidateBasic(),
		"error in [instrumentation] section",
	)
}

//-----------------------------------------------------------------------------
// BaseConfig

// BaseConfig defines the base configuration for a light client
type BaseConfig struct {
	// The root directory for all data.
	// This should be set in viper so it can unmarshal into this struct
	RootDir string `mapstructure:"home"`

	// Database backend: goleveldb | cleveldb | boltdb | rocksdb | badgerdb | memdb
	// * goleveldb (github.com/syndtr/goleveldb - most popular implementation)
	//   - pure go
	//   - stable
	// The others need the matching tm-db build tag.
	DBBackend string `mapstructure:"db-backend"`

	// Database directory
	DBPath string `mapstructure:"db-dir"`

	// Output level for logging: debug | info | error
	LogLevel string `mapstructure:"log-level"`

	// Output format: 'plain' (colored text) or 'json'
	LogFormat string `mapstructure:"log-format"`

	// Path to the JSON file holding the genesis committee and checkpoint
	Genesis string `mapstructure:"genesis-file"`
}

// DefaultBaseConfig returns a default base configuration for a light client
func DefaultBaseConfig() BaseConfig {
	return BaseConfig{
		Genesis:   defaultGenesisJSONPath,
		LogLevel:  DefaultLogLevel,
		LogFormat: LogFormatPlain,
		DBBackend: "goleveldb",
		DBPath:    defaultDataDir,
	}
}

// TestBaseConfig returns a base configuration for testing a light client
func TestBaseConfig() BaseConfig {
	cfg := DefaultBaseConfig()
	cfg.DBBackend = "memdb"
	cfg.LogLevel = "debug"
	return cfg
}

// GenesisFile returns the full path to the genesis.json file
func (cfg BaseConfig) GenesisFile() string {
	return rootify(cfg.Genesis, cfg.RootDir)
}

// DBDir returns the full path to the database directory
func (cfg BaseConfig) DBDir() string {
	return rootify(cfg.DBPath, cfg.RootDir)
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg BaseConfig) ValidateBasic() error {
	switch cfg.LogFormat {
	case LogFormatPlain, LogFormatJSON:
	default:
		return errors.New("unknown log-format (must be 'plain' or 'json')")
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log-level %q (must be 'debug', 'info', 'warn' or 'error')", cfg.LogLevel)
	}
	if cfg.DBBackend == "" {
		return errors.New("db-backend can't be empty")
	}
	return nil
}

//-----------------------------------------------------------------------------
// LightConfig

// LightConfig defines how checkpoints are verified and what is kept.
type LightConfig struct {
	// Fraction of the committee's stake the signers must strictly exceed.
	// Must be within [2/3, 1).
	QuorumThreshold string `mapstructure:"quorum-threshold"`

	// Number of most recent epochs whose committees are kept. Older
	// checkpoints can't be used for inclusion proofs once their committee is
	// pruned. 0 keeps every committee.
	PruningHorizon uint64 `mapstructure:"pruning-horizon"`
}

// DefaultLightConfig returns a default configuration for verification.
func DefaultLightConfig() *LightConfig {
	return &LightConfig{
		QuorumThreshold: "2/3",
		PruningHorizon:  0,
	}
}

// TestLightConfig returns a configuration for testing verification.
func TestLightConfig() *LightConfig {
	return DefaultLightConfig()
}

// Quorum parses QuorumThreshold.
func (cfg *LightConfig) Quorum() (tmmath.Fraction, error) {
	fr, err := tmmath.ParseFraction(cfg.QuorumThreshold)
	if err != nil {
		return tmmath.Fraction{}, errors.Wrap(err, "invalid quorum-threshold")
	}
	return fr, nil
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *LightConfig) ValidateBasic() error {
	fr, err := cfg.Quorum()
	if err != nil {
		return err
	}
	var (
		min = tmmath.Fraction{Numerator: 2, Denominator: 3}
		max = tmmath.Fraction{Numerator: 1, Denominator: 1}
	)
	if fr.Cmp(min) < 0 || fr.Cmp(max) >= 0 {
		return fmt.Errorf("quorum-threshold must be within [%v, %v), given %v", min, max, fr)
	}
	return nil
}

//-----------------------------------------------------------------------------
// SyncConfig

// SyncConfig defines where checkpoints come from and how they are fetched.
type SyncConfig struct {
	RootDir string `mapstructure:"home"`

	// Checkpoint archive: an http(s) URL or a local directory holding
	// <seq>.chk files and a "latest" marker.
	Primary string `mapstructure:"primary"`

	// Number of checkpoints fetched in parallel.
	FetchConcurrency int `mapstructure:"fetch-concurrency"`

	// Number of times a transient fetch failure is retried before giving up.
	MaxRetries int `mapstructure:"max-retries"`

	// Delay before the first retry; it doubles on every attempt up to
	// MaxBackoff.
	InitialBackoff time.Duration `mapstructure:"initial-backoff"`
	MaxBackoff     time.Duration `mapstructure:"max-backoff"`

	// How often the archive is polled once the client has caught up.
	PollInterval time.Duration `mapstructure:"poll-interval"`
}

// DefaultSyncConfig returns a default configuration for syncing.
func DefaultSyncConfig() *SyncConfig {
	return &SyncConfig{
		Primary:          "",
		FetchConcurrency: 8,
		MaxRetries:       10,
		InitialBackoff:   100 * time.Millisecond,
		MaxBackoff:       60 * time.Second,
		PollInterval:     time.Second,
	}
}

// TestSyncConfig returns a configuration for testing syncing.
func TestSyncConfig() *SyncConfig {
	cfg := DefaultSyncConfig()
	cfg.FetchConcurrency = 2
	cfg.MaxRetries = 2
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 10 * time.Millisecond
	cfg.PollInterval = 10 * time.Millisecond
	return cfg
}

// PrimaryPath returns Primary unchanged if it is a URL and relative to the
// root directory otherwise.
func (cfg *SyncConfig) PrimaryPath() string {
	if cfg.IsRemote() || cfg.Primary == "" {
		return cfg.Primary
	}
	return rootify(cfg.Primary, cfg.RootDir)
}

// IsRemote reports whether Primary is an http(s) URL.
func (cfg *SyncConfig) IsRemote() bool {
	return strings.HasPrefix(cfg.Primary, "http://") || strings.HasPrefix(cfg.Primary, "https://")
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *SyncConfig) ValidateBasic() error {
	if cfg.FetchConcurrency <= 0 {
		return errors.New("fetch-concurrency must be positive")
	}
	if cfg.MaxRetries < 0 {
		return errors.New("max-retries can't be negative")
	}
	if cfg.InitialBackoff <= 0 {
		return errors.New("initial-backoff must be positive")
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		return errors.New("max-backoff can't be less than initial-backoff")
	}
	if cfg.PollInterval <= 0 {
		return errors.New("poll-interval must be positive")
	}
	return nil
}

//-----------------------------------------------------------------------------
// InstrumentationConfig

// InstrumentationConfig defines the configuration for metrics reporting.
type InstrumentationConfig struct {
	// When true, Prometheus metrics are served under /metrics on
	// PrometheusListenAddr.
	// Check out the documentation for the list of available metrics.
	Prometheus bool `mapstructure:"prometheus"`

	// Address to listen for Prometheus collector(s) connections.
	PrometheusListenAddr string `mapstructure:"prometheus-listen-addr"`

	// Maximum number of simultaneous connections.
	// If you want to accept a larger number than the default, make sure
	// you increase your OS limits.
	// 0 - unlimited.
	MaxOpenConnections int `mapstructure:"max-open-connections"`

	// Instrumentation namespace.
	Namespace string `mapstructure:"namespace"`
}

// DefaultInstrumentationConfig returns a default configuration for metrics
// reporting.
func DefaultInstrumentationConfig() *InstrumentationConfig {
	return &InstrumentationConfig{
		Prometheus:           false,
		PrometheusListenAddr: ":26660",
		MaxOpenConnections:   3,
		Namespace:            "checkpoint_light",
	}
}

// TestInstrumentationConfig returns a default configuration for metrics
// reporting.
func TestInstrumentationConfig() *InstrumentationConfig {
	return DefaultInstrumentationConfig()
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *InstrumentationConfig) ValidateBasic() error {
	if cfg.MaxOpenConnections < 0 {
		return errors.New("max-open-connections can't be negative")
	}
	return nil
}

//-----------------------------------------------------------------------------
// Utils

// helper function to make config creation independent of root dir
func rootify(path, root string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
