package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/MeKo-Tech/pogocls/internal/config"
	"github.com/MeKo-Tech/pogocls/internal/models"
	"github.com/MeKo-Tech/pogocls/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Global configuration loader.
	configLoader *config.Loader
	// Global configuration.
	globalConfig *config.Config
	// Configuration file path.
	cfgFile string
)

// NewRootCommand builds the command tree. Each call returns fresh commands
// and flags so that in-process callers can execute it repeatedly.
func NewRootCommand() *cobra.Command {
	configLoader = nil
	globalConfig = nil
	cfgFile = ""

	rootCmd := &cobra.Command{
		Use:   "pogocls",
		Short: "Text-line orientation classification (0/180 degrees)",
		Long: `pogocls classifies cropped text-line images as upright (0) or upside down (180)
and turns the upside-down ones upright before they reach text recognition.

This tool provides:
- Batched ONNX Runtime inference with GPU preference and CPU fallback
- Confidence-gated 180 degree correction of text-line crops
- Text, JSON and CSV reports
- An HTTP and WebSocket classification server

Examples:
  pogocls classify line1.png line2.png
  pogocls classify crops/ --recursive --format json --save-dir corrected/
  pogocls serve --port 8080`,
		Version:       version.String(),
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if globalConfig == nil {
				if err := initConfig(); err != nil {
					return err
				}
			}
			setupLogging(cmd.ErrOrStderr(), globalConfig)
			return nil
		},
	}
	rootCmd.SetVersionTemplate("pogocls version {{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is search in ., $HOME, $HOME/.config/pogocls, /etc/pogocls)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	defaultModelsDir := models.DefaultModelsDir
	if envDir := os.Getenv(models.EnvModelsDir); envDir != "" {
		defaultModelsDir = envDir
	}
	rootCmd.PersistentFlags().String("models-dir", defaultModelsDir,
		"directory containing ONNX models (can also be set via "+models.EnvModelsDir+")")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("models_dir", rootCmd.PersistentFlags().Lookup("models-dir"))

	rootCmd.AddCommand(
		newClassifyCmd(),
		newServeCmd(),
		newConfigCmd(),
		newModelsCmd(),
		newCheckCmd(),
		newBenchCmd(),
	)
	return rootCmd
}

// Execute runs the CLI. It is called by main.main().
func Execute() {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "Error:", err)
		os.Exit(1)
	}
}

// GetRootCommand returns a fresh root command for testing purposes.
// This allows tests to execute commands without calling os.Exit().
func GetRootCommand() *cobra.Command {
	return NewRootCommand()
}

// setupLogging installs a JSON slog handler at the configured level.
func setupLogging(w io.Writer, cfg *config.Config) {
	var logLevel slog.Level
	if cfg.Verbose {
		logLevel = slog.LevelDebug
	} else {
		switch cfg.LogLevel {
		case "debug":
			logLevel = slog.LevelDebug
		case "warn":
			logLevel = slog.LevelWarn
		case "error":
			logLevel = slog.LevelError
		default:
			logLevel = slog.LevelInfo
		}
	}

	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() error {
	configLoader = config.NewLoader()

	var err error
	if cfgFile != "" {
		globalConfig, err = configLoader.LoadWithFile(cfgFile)
	} else {
		globalConfig, err = configLoader.Load()
	}
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	return nil
}

// GetConfig returns the global configuration including CLI flag values.
func GetConfig() (*config.Config, error) {
	if globalConfig == nil {
		if err := initConfig(); err != nil {
			return nil, err
		}
	}

	// Flags are bound after the first load, so resolve once more
	var cfg config.Config
	if err := GetConfigLoader().GetViper().Unmarshal(&cfg); err != nil {
		slog.Warn("Error unmarshaling updated configuration", "error", err)
		return globalConfig, nil
	}
	return &cfg, nil
}

// GetConfigLoader returns the global configuration loader.
func GetConfigLoader() *config.Loader {
	if configLoader == nil {
		configLoader = config.NewLoader()
	}
	return configLoader
}
