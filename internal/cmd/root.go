// Package cmd provides the CLI commands for tether.
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/inercia/tether/internal/appdir"
	"github.com/inercia/tether/internal/approval"
	"github.com/inercia/tether/internal/config"
	"github.com/inercia/tether/internal/logging"
)

var (
	// Global flags
	configPath    string
	modeFlag      string
	debug         bool
	logLevel      string // --log-level flag (debug, info, warn, error)
	logFile       string
	logComponents string
	quiet         bool

	// Loaded configuration
	cfg *config.Config
	// cfgSource is the file cfg was read from. It may not exist yet.
	cfgSource string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tether",
	Short: "tether - drive an agent engine from the terminal",
	Long: `tether connects to an agent engine, submits tasks and answers the
questions and approvals the agent raises along the way.

The engine is a process speaking JSON lines on its stdio, a WebSocket
endpoint, or any Agent Client Protocol agent.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for help and completion commands
		if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "version" {
			return nil
		}

		if err := loadConfig(); err != nil {
			return err
		}
		if modeFlag != "" {
			if _, err := approval.ParsePolicy(modeFlag); err != nil {
				return err
			}
			cfg.Mode = modeFlag
		}
		return initLogging(cmd.Name() == "cli")
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Close()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file path (default: $TETHER_CONFIG or the tether directory's config.yaml)")
	rootCmd.PersistentFlags().StringVar(&modeFlag, "mode", "", "Approval mode: interactive or auto (overrides the configuration)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging (shorthand for --log-level=debug)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default: from configuration)")
	rootCmd.PersistentFlags().StringVarP(&logFile, "logfile", "l", "", "Log file path (logs are also written to stderr)")
	rootCmd.PersistentFlags().StringVar(&logComponents, "log-components", "", "Comma-separated list of components to log (e.g., 'client,approval,acp'). Empty means all components.")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Do not render agent output")
}

// loadConfig loads the configuration named by --config, or the default
// one. A missing default file yields the built-in defaults.
func loadConfig() error {
	if configPath != "" {
		c, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration from %s: %w", configPath, err)
		}
		cfg, cfgSource = c, configPath
		return nil
	}

	if err := appdir.EnsureDir(); err != nil {
		return fmt.Errorf("failed to create tether directory: %w", err)
	}
	c, path, err := config.LoadDefault()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg, cfgSource = c, path
	return nil
}

// initLogging sets up logging from the configuration and the flags.
// Priority: --log-level flag > --debug flag > configuration.
//
// Interactive sessions log to the tether log file by default and keep
// only warnings on stderr, so records do not break the line editor.
func initLogging(interactive bool) error {
	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	} else if debug {
		level = "debug"
	}
	consoleLevel := level

	file := cfg.Log.File
	if logFile != "" {
		file = logFile
	}
	if interactive && file == "" {
		path, err := appdir.LogPath()
		if err != nil {
			return err
		}
		file = path
		if logLevel == "" && !debug {
			consoleLevel = "warn"
		}
	}

	components := cfg.Log.Components
	if logComponents != "" {
		components = splitList(logComponents)
	}

	if err := logging.Initialize(logging.Config{
		Level:     consoleLevel,
		FileLevel: level,
		File: logging.FileConfig{
			Path:       file,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
		},
		JSON:       cfg.Log.JSON,
		Components: components,
	}); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
