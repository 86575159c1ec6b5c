// Package main provides the minutes CLI entry point.
// minutes records or uploads meetings and prints what was decided in them.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/otherjamesbrown/minutes-cli/cmd"
	"github.com/otherjamesbrown/minutes-cli/config"
	"github.com/otherjamesbrown/minutes-cli/pkg/buildinfo"
	"github.com/otherjamesbrown/minutes-cli/pkg/history"
	"github.com/otherjamesbrown/minutes-cli/pkg/logging"
	"github.com/otherjamesbrown/minutes-cli/pkg/observability"
)

// Global flags and state.
var (
	configDir    string
	serverURL    string
	timeout      time.Duration
	outputFormat string
	debug        bool
	insecure     bool
	logFormat    string
	metricsFile  string

	// cfg holds the loaded configuration.
	cfg *config.CLIConfig

	// deps is shared by every subcommand.
	deps = cmd.DefaultDeps()
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "minutes",
	Short: "Meeting assistant - transcribe and summarize meetings",
	Long: `minutes sends meeting recordings and transcripts to the meeting assistant
and prints a summary, action items, decisions and next steps.

COMMON WORKFLOWS:
  Analyze a recording:   minutes upload standup.mp3
  Record a meeting:      minutes record   (press Enter to stop)
  Analyze a transcript:  minutes analyze --file notes.txt
  Export the result:     minutes upload call.m4a --export
  Process a folder:      minutes watch ~/Recordings
  Look back:             minutes history list  ->  minutes history show <id>

Start with 'minutes auth login'. Every command accepts --output json or yaml
for machine-readable output.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(c *cobra.Command, args []string) error {
		// Skip initialization for commands that don't need it.
		if c.Name() == "version" || c.Name() == "help" || c.Name() == "completion" {
			return nil
		}

		if configDir != "" {
			if err := os.Setenv("MINUTES_CONFIG_DIR", configDir); err != nil {
				return fmt.Errorf("setting config dir: %w", err)
			}
		}

		// Load configuration.
		var err error
		cfg, err = config.LoadConfig()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}

		// Override with command-line flags.
		if serverURL != "" {
			cfg.ServerURL = serverURL
		}
		if timeout != 0 {
			cfg.Timeout = timeout
		}
		if outputFormat != "" {
			cfg.OutputFormat = config.OutputFormat(outputFormat)
		}
		if debug {
			cfg.Debug = true
		}
		if insecure {
			cfg.TLS.SkipVerify = true
		}
		if logFormat != "" {
			cfg.LogFormat = logFormat
		}
		if metricsFile != "" {
			cfg.MetricsFile = metricsFile
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		deps.Config = cfg
		deps.Logger = newLogger(cfg)
		logging.SetGlobal(deps.Logger)
		deps.Metrics = observability.NewClientMetrics()
		return nil
	},
}

// newLogger builds the stderr logger for cfg. Debug overrides log_level.
func newLogger(cfg *config.CLIConfig) logging.Logger {
	level, ok := logging.ParseLevel(cfg.LogLevel)
	if !ok {
		level = logging.LevelWarn
	}
	if cfg.Debug {
		level = logging.LevelDebug
	}
	return logging.NewLogger(&logging.Config{
		Level:      level,
		Component:  "cli",
		JSONFormat: cfg.LogFormat == "json",
		NoColor:    !deps.Styled,
		Output:     os.Stderr,
	})
}

// Version command flags.
var versionOutputJSON bool

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print the version, commit hash, and build time of the minutes CLI.

Examples:
  minutes version
  minutes version --output-json`,
	Args: cobra.NoArgs,
	RunE: func(c *cobra.Command, args []string) error {
		info := buildinfo.Get()
		out := c.OutOrStdout()
		if versionOutputJSON || outputFormat == string(config.OutputFormatJSON) {
			return writeJSON(out, info)
		}
		fmt.Fprintf(out, "minutes version %s\n", info.Version)
		fmt.Fprintf(out, "  commit:     %s\n", info.Commit)
		fmt.Fprintf(out, "  built:      %s\n", info.BuildTime)
		fmt.Fprintf(out, "  go:         %s (%s)\n", info.GoVersion, info.Platform)
		return nil
	},
}

// statusCmd checks the connection to the meeting assistant API.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check the connection to the meeting assistant",
	Long: `Check that the meeting assistant API and its AI service are reachable.

This is a lightweight connectivity check. Use 'minutes auth status' to see
who you are logged in as.`,
	Args: cobra.NoArgs,
	RunE: func(c *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(c.Context(), cfg.Timeout)
		defer cancel()

		app, err := deps.Connect(ctx)
		if err != nil {
			return err
		}
		health, err := app.Client.Health(ctx)
		historyState := checkHistory(ctx, cfg)
		out := c.OutOrStdout()

		switch cfg.OutputFormat {
		case config.OutputFormatJSON, config.OutputFormatYAML:
			view := struct {
				Server  string `json:"server" yaml:"server"`
				Healthy bool   `json:"healthy" yaml:"healthy"`
				API     string `json:"api,omitempty" yaml:"api,omitempty"`
				AI      string `json:"ai_service,omitempty" yaml:"ai_service,omitempty"`
				Error   string `json:"error,omitempty" yaml:"error,omitempty"`
				History string `json:"history" yaml:"history"`
			}{Server: cfg.ServerURL, History: historyState}
			if err != nil {
				view.Error = err.Error()
			} else {
				view.Healthy, view.API, view.AI = health.Healthy(), health.API, health.AIService
			}
			if cfg.OutputFormat == config.OutputFormatYAML {
				return writeYAML(out, view)
			}
			return writeJSON(out, view)
		}

		if err != nil {
			fmt.Fprintf(out, "Connection status: UNHEALTHY\n")
			fmt.Fprintf(out, "  Server:      %s\n", cfg.ServerURL)
			fmt.Fprintf(out, "  Error:       %s\n", err)
			fmt.Fprintf(out, "  History:     %s\n", historyState)
			return nil // Don't return error, just report status.
		}
		state := "HEALTHY"
		if !health.Healthy() {
			state = "UNHEALTHY"
		}
		fmt.Fprintf(out, "Connection status: %s\n", state)
		fmt.Fprintf(out, "  Server:      %s\n", cfg.ServerURL)
		fmt.Fprintf(out, "  API:         %s\n", valueOrDefault(health.API, "unknown"))
		fmt.Fprintf(out, "  AI service:  %s\n", valueOrDefault(health.AIService, "unknown"))
		fmt.Fprintf(out, "  History:     %s\n", historyState)
		return nil
	},
}

// checkHistory opens the configured history backend and pings it.
func checkHistory(ctx context.Context, cfg *config.CLIConfig) string {
	store, err := history.Open(ctx, cfg, history.WithLogger(deps.Logger))
	if errors.Is(err, history.ErrDisabled) {
		return "disabled"
	}
	if err != nil {
		return fmt.Sprintf("%s (unavailable: %v)", cfg.History.Backend, err)
	}
	defer store.Close()
	if err := store.Ping(ctx); err != nil {
		return fmt.Sprintf("%s (unavailable: %v)", cfg.History.Backend, err)
	}
	return fmt.Sprintf("%s (ok)", cfg.History.Backend)
}

// configCmd manages CLI configuration.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage CLI configuration",
	Long:  `View and modify the minutes CLI configuration settings.`,
}

// configShowCmd displays current configuration.
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current CLI configuration values, after environment and flag overrides.`,
	Args:  cobra.NoArgs,
	RunE: func(c *cobra.Command, args []string) error {
		out := c.OutOrStdout()
		switch cfg.OutputFormat {
		case config.OutputFormatJSON:
			return writeJSON(out, cfg)
		case config.OutputFormatYAML:
			return writeYAML(out, cfg)
		}

		configPath, _ := config.ConfigPath()
		exportDir, _ := cfg.GetExportDir()
		fmt.Fprintln(out, "Current configuration:")
		fmt.Fprintf(out, "  Config file:     %s\n", configPath)
		fmt.Fprintf(out, "  Server URL:      %s\n", cfg.ServerURL)
		fmt.Fprintf(out, "  Timeout:         %s\n", cfg.Timeout)
		fmt.Fprintf(out, "  Output format:   %s\n", cfg.OutputFormat)
		fmt.Fprintf(out, "  Export dir:      %s\n", exportDir)
		fmt.Fprintf(out, "  Log level:       %s (%s)\n", cfg.LogLevel, cfg.LogFormat)
		fmt.Fprintf(out, "  Debug:           %t\n", cfg.Debug)
		fmt.Fprintf(out, "  Metrics file:    %s\n", valueOrDefault(cfg.MetricsFile, "(not set)"))
		fmt.Fprintf(out, "  TLS CA cert:     %s\n", valueOrDefault(cfg.TLS.CACert, "(system)"))
		fmt.Fprintf(out, "  TLS skip verify: %t\n", cfg.TLS.SkipVerify)
		fmt.Fprintf(out, "  History:         %s (limit %d)\n", cfg.History.Backend, cfg.History.Limit)
		fmt.Fprintf(out, "  Watch:           %s, %s, %d at once\n",
			valueOrDefault(cfg.Watch.Dir, "(no folder)"), cfg.Watch.Kind, cfg.Watch.Concurrency)
		return nil
	},
}

// configInitCmd initializes configuration.
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration file",
	Long:  `Create a new configuration file with default values if one doesn't exist.`,
	Args:  cobra.NoArgs,
	RunE: func(c *cobra.Command, args []string) error {
		out := c.OutOrStdout()
		configPath, err := config.ConfigPath()
		if err != nil {
			return fmt.Errorf("getting config path: %w", err)
		}

		// Check if config already exists.
		if _, err := os.Stat(configPath); err == nil {
			fmt.Fprintf(out, "Configuration file already exists: %s\n", configPath)
			fmt.Fprintln(out, "Use 'minutes config show' to view current settings.")
			return nil
		}

		defaultCfg := config.DefaultConfig()
		if err := config.SaveConfig(defaultCfg); err != nil {
			return fmt.Errorf("saving configuration: %w", err)
		}

		fmt.Fprintf(out, "Created configuration file: %s\n", configPath)
		fmt.Fprintln(out, "\nDefault settings:")
		fmt.Fprintf(out, "  Server URL:     %s\n", defaultCfg.ServerURL)
		fmt.Fprintf(out, "  Timeout:        %s\n", defaultCfg.Timeout)
		fmt.Fprintf(out, "  Output format:  %s\n", defaultCfg.OutputFormat)
		return nil
	},
}

// configSetCmd sets a configuration value.
var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the config file.

Environment variables and flags are not written to the file; the value is
applied to the file's own settings.`,
	Args: cobra.ExactArgs(2),
	ValidArgsFunction: func(c *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) == 0 {
			return config.SettableKeys(), cobra.ShellCompDirectiveNoFileComp
		}
		return nil, cobra.ShellCompDirectiveNoFileComp
	},
	RunE: func(c *cobra.Command, args []string) error {
		fileCfg, err := config.LoadFileConfig()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		if err := fileCfg.Set(args[0], args[1]); err != nil {
			return err
		}
		if err := config.SaveConfig(fileCfg); err != nil {
			return fmt.Errorf("saving configuration: %w", err)
		}
		fmt.Fprintf(c.OutOrStdout(), "Set %s = %s\n", args[0], args[1])
		return nil
	},
}

func init() {
	// Global flags.
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "config directory (default is ~/.minutes or $MINUTES_CONFIG_DIR)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "meeting assistant URL (e.g., https://minutes.example.com)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "request timeout (e.g., 30s, 5m)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "", "output format: text, json, yaml")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&insecure, "insecure", false, "disable TLS verification")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: console, json")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this file at exit")

	versionCmd.Flags().BoolVar(&versionOutputJSON, "output-json", false, "Output version information as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "meetings", Title: "Meetings:"},
		&cobra.Group{ID: "setup", Title: "Setup:"},
	)

	// Meetings
	for _, c := range []*cobra.Command{
		cmd.NewUploadCommand(deps),
		cmd.NewRecordCommand(deps),
		cmd.NewAnalyzeCommand(deps),
		cmd.NewWatchCommand(deps),
		cmd.NewHistoryCommand(deps),
	} {
		c.GroupID = "meetings"
		rootCmd.AddCommand(c)
	}

	// Setup
	authCmd := cmd.NewAuthCommand(deps)
	authCmd.GroupID = "setup"
	rootCmd.AddCommand(authCmd)

	statusCmd.GroupID = "setup"
	rootCmd.AddCommand(statusCmd)

	configCmd.GroupID = "setup"
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configSetCmd)

	rootCmd.AddCommand(versionCmd)
}

func main() {
	// Set up signal handling for graceful shutdown. Commands watch ctx, so
	// a running upload is canceled and a watch drains before exiting. After
	// the first signal the default handling is restored, so a second Ctrl+C
	// exits at once.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		stop()
	}()

	cmdErr := rootCmd.ExecuteContext(ctx)

	if cfg != nil && deps.Metrics != nil {
		if err := deps.Metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	if cmdErr != nil {
		if !cmd.AlreadyReported(cmdErr) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", cmdErr)
		}
		stop()
		os.Exit(1)
	}
}

// writeJSON writes v as indented JSON.
func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeYAML writes v as YAML.
func writeYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(v)
}

// valueOrDefault returns the value if non-empty, otherwise the default.
func valueOrDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}
