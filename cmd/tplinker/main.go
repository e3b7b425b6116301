package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tplinker/internal/command"
	"tplinker/internal/config"
	"tplinker/internal/endpoint"
	"tplinker/internal/errors"
	"tplinker/internal/executor"
	"tplinker/internal/inventory"
	"tplinker/internal/logging"
	"tplinker/internal/output"
	"tplinker/internal/protocol"
)

var (
	// Build-time variables (set via -ldflags)
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"

	// Global configuration
	cfg          *config.Config
	configSource string

	// CLI flags
	jsonOutput    bool
	longOutput    bool
	concurrency   string
	ioTimeout     time.Duration
	logLevel      string
	logFormat     string
	configFile    string
	inventoryFile string
	group         string
	discoverWait  string
	rebootDelay   string
	broadcast     string
)

func main() {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(getExitCode(err))
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tplinker",
		Short: "Discover and interact with TP-Link smart devices on the local network",
		Long: `tplinker discovers TP-Link HS100/HS110 smart plugs and LB110 bulbs, queries
their status and switches or reboots them. Results are printed once, after every
device has answered, as an aligned table or as JSON.

Examples:
  # Find devices on the local network
  tplinker discover

  # Show status of two plugs, with every column
  tplinker --long status 10.0.0.5 10.0.0.6:9999

  # Reboot the kitchen devices from an inventory file in 5 seconds
  tplinker reboot --inventory devices.yaml --group kitchen --delay 5

Environment:
  ` + strings.Join(config.GetEnvVarNames(), "\n  "),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}

			configManager := config.NewManager(configFile)
			loadedCfg, err := configManager.Load()
			if err != nil {
				return &SetupError{Message: fmt.Sprintf("failed to load configuration: %v", err)}
			}
			cfg = loadedCfg
			configSource = "CLI flags and defaults"
			if used := configManager.ConfigFileUsed(); used != "" {
				configSource = "CLI flags and config file: " + used
			}

			if err := overrideConfigWithFlags(cmd, configManager); err != nil {
				return err
			}
			return nil
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Respond with JSON")
	rootCmd.PersistentFlags().BoolVar(&longOutput, "long", false, "Display more information")
	rootCmd.PersistentFlags().StringVar(&concurrency, "concurrency", "auto", "Maximum devices queried at once ('auto' or number)")
	rootCmd.PersistentFlags().DurationVar(&ioTimeout, "io-timeout", 10*time.Second, "Per-request socket timeout (0 disables)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "error", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (json, text)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a configuration file")

	rootCmd.AddCommand(
		newDiscoverCmd(stdout, stderr),
		newStatusCmd(stdout, stderr),
		newRebootCmd(stdout, stderr),
		newPowerCmd("on", true, stdout, stderr),
		newPowerCmd("off", false, stdout, stderr),
		newVersionCmd(stdout),
	)

	return rootCmd
}

func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(stdout, "tplinker %s\n", version)
			fmt.Fprintf(stdout, "Commit: %s\n", commit)
			fmt.Fprintf(stdout, "Built: %s\n", buildTime)
		},
	}
}

func newDiscoverCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Discover devices on the local network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			window, unbounded, err := config.ParseDiscoverTimeout(cfg.Timeout)
			if err != nil {
				return &SetupError{Message: err.Error()}
			}
			if unbounded {
				window = 0
			}

			logger := newLogger(stderr)
			return run(logger, func(ctx context.Context) error {
				opts := protocol.DiscoverOptions{
					BroadcastAddr: cfg.Broadcast,
					Port:          cfg.Port,
					Timeout:       window,
				}
				return newDispatcher(stdout, logger).Discover(ctx, opts)
			})
		},
	}
	cmd.Flags().StringVar(&discoverWait, "timeout", "3", "Timeout after (seconds), or 'never'")
	cmd.Flags().StringVar(&broadcast, "broadcast", protocol.DefaultBroadcastAddr, "Broadcast address to send the discovery query to")
	return cmd
}

func newStatusCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [address...]",
		Short: "Given device addresses, return info + status",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(stderr)
			endpoints, err := targets(args, logger)
			if err != nil {
				return err
			}
			return run(logger, func(ctx context.Context) error {
				return newDispatcher(stdout, logger).Status(ctx, endpoints)
			})
		},
	}
	addInventoryFlags(cmd)
	return cmd
}

func newRebootCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reboot [address...]",
		Short: "Reboot one or more devices",
		RunE: func(cmd *cobra.Command, args []string) error {
			delay, err := config.ParseSeconds(cfg.Delay)
			if err != nil {
				return &SetupError{Message: fmt.Sprintf("invalid delay: %v", err)}
			}

			logger := newLogger(stderr)
			endpoints, err := targets(args, logger)
			if err != nil {
				return err
			}
			return run(logger, func(ctx context.Context) error {
				return newDispatcher(stdout, logger).Reboot(ctx, endpoints, delay)
			})
		},
	}
	cmd.Flags().StringVar(&rebootDelay, "delay", "1", "Schedule the reboot (in seconds)")
	addInventoryFlags(cmd)
	return cmd
}

func newPowerCmd(name string, on bool, stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   name + " [address...]",
		Short: fmt.Sprintf("Switch one or more devices %s", name),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(stderr)
			endpoints, err := targets(args, logger)
			if err != nil {
				return err
			}
			return run(logger, func(ctx context.Context) error {
				return newDispatcher(stdout, logger).Power(ctx, endpoints, on)
			})
		},
	}
	addInventoryFlags(cmd)
	return cmd
}

func addInventoryFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&inventoryFile, "inventory", "", "Add the devices listed in a YAML or JSON inventory file")
	cmd.Flags().StringVar(&group, "group", "", "Only add the inventory devices of this group")
}

func overrideConfigWithFlags(cmd *cobra.Command, configManager config.Manager) error {
	flags := cmd.Flags()
	if flags.Changed("json") {
		cfg.JSON = jsonOutput
	}
	if flags.Changed("long") {
		cfg.Long = longOutput
	}
	if flags.Changed("concurrency") {
		cfg.Concurrency = concurrency
	}
	if flags.Changed("io-timeout") {
		cfg.IOTimeout = ioTimeout
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = logFormat
	}
	if flags.Lookup("timeout") != nil && flags.Changed("timeout") {
		cfg.Timeout = discoverWait
	}
	if flags.Lookup("broadcast") != nil && flags.Changed("broadcast") {
		cfg.Broadcast = broadcast
	}
	if flags.Lookup("delay") != nil && flags.Changed("delay") {
		cfg.Delay = rebootDelay
	}
	if flags.Lookup("inventory") != nil && flags.Changed("inventory") {
		cfg.Inventory = inventoryFile
	}
	if flags.Lookup("group") != nil && flags.Changed("group") {
		cfg.Group = group
	}

	if err := configManager.Validate(cfg); err != nil {
		return &SetupError{Message: fmt.Sprintf("configuration validation failed: %v", err)}
	}
	return nil
}

func newLogger(stderr io.Writer) *logging.Logger {
	logger := logging.NewLoggerFromConfig(cfg.LogLevel, cfg.LogFormat, false, stderr)
	logger.LogConfigLoad(configSource)
	return logger
}

func newDispatcher(stdout io.Writer, logger *logging.Logger) *command.Dispatcher {
	concurrencyValue, _ := executor.ParseConcurrency(cfg.Concurrency)
	return command.New(command.Options{
		Mode:        output.ModeFor(cfg.JSON, cfg.Long),
		Concurrency: concurrencyValue,
		IOTimeout:   cfg.IOTimeout,
		Output:      stdout,
		Logger:      logger,
	})
}

// targets gathers the endpoints of an action or status command before any I/O
func targets(args []string, logger *logging.Logger) ([]endpoint.Endpoint, error) {
	var inv inventory.Provider
	source := "command line"
	if cfg.Inventory != "" {
		loaded, err := inventory.LoadInventoryFromFile(cfg.Inventory)
		if err != nil {
			return nil, &SetupError{Message: fmt.Sprintf("failed to load inventory: %v", err)}
		}
		inv = loaded
		source = fmt.Sprintf("command line and inventory file: %s", loaded.Path())
	}

	endpoints, err := command.Targets(args, inv, cfg.Group)
	if err != nil {
		return nil, &SetupError{Message: err.Error()}
	}
	logger.LogTargetParsing(source, len(endpoints))
	return endpoints, nil
}

// run executes fn under a context that SIGINT and SIGTERM cancel
func run(logger *logging.Logger, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("Received shutdown signal, canceling operations", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := fn(ctx); err != nil {
		if errors.TypeOf(err) == errors.SetupErrorType {
			return &SetupError{Message: err.Error()}
		}
		return &ExecutionError{Message: err.Error()}
	}
	return nil
}

// ExecutionError represents an error while talking to the network or writing results (exit code 1)
type ExecutionError struct {
	Message string
}

func (e *ExecutionError) Error() string {
	return e.Message
}

// SetupError represents an error during setup/configuration (exit code 2)
type SetupError struct {
	Message string
}

func (e *SetupError) Error() string {
	return e.Message
}

// getExitCode determines the appropriate exit code based on error type
// Returns:
//   - 0: Success, including batches where some devices failed
//   - 1: Execution failure (discovery socket, output write)
//   - 2: Setup error (invalid arguments, configuration issues, etc.)
func getExitCode(err error) int {
	if err == nil {
		return 0
	}

	var setupErr *SetupError
	var execErr *ExecutionError
	switch {
	case stderrors.As(err, &setupErr):
		return 2
	case stderrors.As(err, &execErr):
		return 1
	default:
		// cobra's own argument and flag errors
		return 2
	}
}
