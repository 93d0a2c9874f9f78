package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	HomeFlag      = "home"
	TraceFlag     = "trace"
	LogLevelFlag  = "log-level"
	LogFormatFlag = "log-format"
)

// InitEnv makes v read variables with the given prefix from the
// environment, e.g. CKPT_LOG_LEVEL for log-level.
func InitEnv(v *viper.Viper, prefix string) {
	// This copies all variables like CKPTHOME to CKPT_HOME,
	// so we can support both formats for the user
	prefix = strings.ToUpper(prefix)
	ps := prefix + "_"
	for _, e := range os.Environ() {
		kv := strings.SplitN(e, "=", 2)
		if len(kv) == 2 {
			k, val := kv[0], kv[1]
			if strings.HasPrefix(k, prefix) && !strings.HasPrefix(k, ps) {
				k2 := strings.Replace(k, prefix, ps, 1)
				os.Setenv(k2, val)
			}
		}
	}

	v.SetEnvPrefix(prefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// BindFlagsLoadViper binds all flags of cmd and reads the config file from
// the home directory into v.
func BindFlagsLoadViper(v *viper.Viper, cmd *cobra.Command) error {
	// cmd.Flags() includes flags from this command and all persistent flags from the parent
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	homeDir := v.GetString(HomeFlag)
	v.Set(HomeFlag, homeDir)
	v.SetConfigName("config")                         // name of config file (without extension)
	v.AddConfigPath(homeDir)                          // search root directory
	v.AddConfigPath(filepath.Join(homeDir, "config")) // search root directory /config

	// If a config file is found, read it in.
	if err := v.ReadInConfig(); err != nil {
		// ignore not found error, return other errors
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}
	return nil
}

// Execute runs cmd and reports a failure on stderr, with the stack trace
// attached by github.com/pkg/errors if --trace is set. It returns the exit
// code.
func Execute(cmd *cobra.Command, v *viper.Viper, stderr io.Writer) int {
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	err := cmd.Execute()
	if err == nil {
		return 0
	}
	if v.GetBool(TraceFlag) {
		fmt.Fprintf(stderr, "ERROR: %+v\n", err)
	} else {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
	}
	return 1
}
