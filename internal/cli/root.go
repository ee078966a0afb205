package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pyisolate/guard/internal/config"
)

var (
	cfgFile  string
	logLevel string
	pinPath  string
)

var rootCmd = &cobra.Command{
	Use:   "pyisolate-guard",
	Short: "Kernel enforcement for pyisolate sandboxes",
	Long: `pyisolate-guard loads the eBPF hooks behind pyisolate sandboxes:
an exact-match file-open allow-list, a syscall gate, per-cgroup resource
accounting and a contract harness.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&pinPath, "pin-path", "", "bpffs directory for pinned maps")

	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("pin_path", rootCmd.PersistentFlags().Lookup("pin-path"))

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(policyCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	viper.SetEnvPrefix("PYISOLATE")
	viper.AutomaticEnv()
	if cfgFile == "" {
		cfgFile = viper.GetString("config")
	}
}

// loadConfig merges the config file with flag and PYISOLATE_* overrides.
func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if cfgFile != "" {
		var err error
		if cfg, err = config.Load(cfgFile); err != nil {
			return nil, err
		}
	}

	if v := viper.GetString("log_level"); v != "" {
		cfg.LogLevel = v
	}
	if v := viper.GetString("pin_path"); v != "" {
		cfg.PinPath = v
	}
	if v := viper.GetString("policy_file"); v != "" {
		cfg.PolicyFile = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	logConfig := zap.NewProductionConfig()
	if lvl == zapcore.DebugLevel {
		logConfig = zap.NewDevelopmentConfig()
	}
	logConfig.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := logConfig.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		return nil, err
	}
	return logger, nil
}
