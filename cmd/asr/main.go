package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/asrlabs/asr/pkg/config"
	"github.com/asrlabs/asr/pkg/fetch"
	"github.com/asrlabs/asr/pkg/logger"
	"github.com/asrlabs/asr/pkg/manifest"
	"github.com/asrlabs/asr/pkg/presenter"
	"github.com/asrlabs/asr/pkg/registry"
)

// Exit codes: item-level failures (invalid skills, unreachable sources) use
// exitItemErrors; malformed invocations exitUsage; everything else that
// breaks the run itself exitInternal.
const (
	exitOK         = 0
	exitItemErrors = 1
	exitUsage      = 2
	exitInternal   = 3
)

func init() {
	viper.SetEnvPrefix("ASR")
	viper.AutomaticEnv()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.asr")
	viper.AddConfigPath(".")

	config.SetDefaults(viper.GetViper())

	// Load config file if it exists (ignore errors if it doesn't)
	_ = viper.ReadInConfig()
}

var rootCmd = &cobra.Command{
	Use:   "asr",
	Short: "Agent skills registry",
	Long: `asr manages a registry of agent skills: directories carrying a SKILL.md
manifest. It registers local and remote skills, validates their structure,
snapshots their content to detect drift, and generates editor-specific
delegate files.`,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		if path, err := cmd.Flags().GetString("config"); err == nil && path != "" {
			viper.SetConfigFile(path)
			if err := viper.ReadInConfig(); err != nil {
				presenter.Error(err, "Failed to read config file")
				os.Exit(exitUsage)
			}
		}
		if err := logger.SetLogLevel(viper.GetString("log_level")); err != nil {
			presenter.Error(err, "Invalid log level")
			os.Exit(exitUsage)
		}
		logger.SetLogFormat(viper.GetString("log_format"))

		if quiet, err := cmd.Flags().GetBool("quiet"); err == nil {
			presenter.SetQuiet(quiet)
		}
	},
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
		os.Exit(exitUsage)
	},
}

func main() {
	rootCmd.PersistentFlags().Bool("json", false, "Emit machine-readable JSON output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Suppress informational output")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "Log format (text, json)")
	rootCmd.PersistentFlags().String("config", "", "Path to config file")

	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUsage)
	}
}

// app bundles the state every command needs: resolved config, the state
// home, the registry handle, the manifest tracker, and the fetcher.
type app struct {
	cfg     config.Config
	home    string
	reg     *registry.Registry
	tracker *manifest.Tracker
	fetcher *fetch.Fetcher
}

func newApp() (*app, error) {
	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return nil, err
	}

	home, err := config.StateHome()
	if err != nil {
		return nil, err
	}

	reg, err := registry.Open(home)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:     cfg,
		home:    home,
		reg:     reg,
		tracker: manifest.NewTracker(home),
		fetcher: fetch.New(
			fetch.WithConcurrency(cfg.Fetch.Concurrency),
			fetch.WithTimeout(cfg.Fetch.Timeout),
			fetch.WithRetries(cfg.Fetch.Retries),
		),
	}, nil
}

func (a *app) Close() {
	a.fetcher.Cleanup()
	if err := a.reg.Close(); err != nil {
		logger.L.WithError(err).Warn("failed to release registry lock")
	}
}

// mustApp builds the app or exits with an internal error.
func mustApp() *app {
	a, err := newApp()
	if err != nil {
		presenter.Error(err, "Failed to initialize")
		os.Exit(exitInternal)
	}
	return a
}

func commandContext(cmd *cobra.Command) context.Context {
	if cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		presenter.Error(err, "Failed to encode JSON output")
		os.Exit(exitInternal)
	}
	fmt.Println(string(data))
}
