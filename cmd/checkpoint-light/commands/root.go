package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tendermint/checkpoint-light/config"
	"github.com/tendermint/checkpoint-light/libs/cli"
	"github.com/tendermint/checkpoint-light/libs/log"
)

// EnvPrefix prefixes the environment variables overriding the config,
// e.g. CKPT_LOG_LEVEL.
const EnvPrefix = "CKPT"

// app is the state shared by all commands once the root command has parsed
// the configuration.
type app struct {
	v      *viper.Viper
	conf   *config.Config
	logger log.Logger
}

// ParseConfig retrieves the configuration from viper, sets up the root
// directory of every section and validates the result.
func ParseConfig(v *viper.Viper, conf *config.Config) (*config.Config, error) {
	if err := v.Unmarshal(conf); err != nil {
		return nil, err
	}

	conf.SetRoot(conf.RootDir)

	if err := conf.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("error in config file: %w", err)
	}
	return conf, nil
}

// NewRootCmd constructs the root command-line entry point with all
// subcommands attached.
func NewRootCmd(v *viper.Viper) *cobra.Command {
	a := &app{
		v:      v,
		conf:   config.DefaultConfig(),
		logger: log.NewNopLogger(),
	}

	cmd := &cobra.Command{
		Use:   "checkpoint-light",
		Short: "Light client following a proof-of-stake chain by its certified checkpoints",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == versionCmdName {
				return nil
			}

			if err := cli.BindFlagsLoadViper(v, cmd); err != nil {
				return err
			}

			conf, err := ParseConfig(v, config.DefaultConfig())
			if err != nil {
				return err
			}
			a.conf = conf

			// stdout is reserved for command output
			logger, err := log.NewDefaultLoggerWithOutput(os.Stderr, conf.LogFormat, conf.LogLevel)
			if err != nil {
				return err
			}
			a.logger = logger
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.String(cli.HomeFlag, os.ExpandEnv(filepath.Join("$HOME", config.DefaultHomeDir)), "directory for config and data")
	flags.Bool(cli.TraceFlag, false, "print out full stack trace on errors")
	flags.String(cli.LogLevelFlag, a.conf.LogLevel, "log level: debug | info | warn | error")
	flags.String(cli.LogFormatFlag, a.conf.LogFormat, "log format: plain | json")
	flags.String(primaryFlag, "", "checkpoint archive: http(s) URL or local directory (overrides sync.primary)")
	// The flag lives at the top level, the setting in [sync].
	if err := v.BindPFlag("sync.primary", flags.Lookup(primaryFlag)); err != nil {
		panic(err)
	}

	cli.InitEnv(v, EnvPrefix)

	cmd.AddCommand(
		newInitCmd(a),
		newSyncCmd(a),
		newStatusCmd(a),
		newVerifyTxCmd(a),
		newExportCmd(a),
		newImportCmd(a),
		newVersionCmd(),
	)
	return cmd
}
