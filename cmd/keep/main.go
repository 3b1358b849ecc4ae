// ABOUTME: Entry point for the keep server and its operator subcommands
// ABOUTME: serve runs the server; the other subcommands set it up and probe it

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/2389/coven-keep/internal/config"
	"github.com/2389/coven-keep/internal/gateway"
)

// version is set with -ldflags "-X main.version=..." at build time.
var version = "dev"

const banner = `
  _
 | | _____  ___ _ __
 | |/ / _ \/ _ \ '_ \
 |   <  __/  __/ |_) |
 |_|\_\___|\___| .__/
               |_|
`

// getConfigPath returns the path to the config file.
// Priority: KEEP_CONFIG env var > XDG_CONFIG_HOME/keep/keep.yaml > ~/.config/keep/keep.yaml
func getConfigPath() string {
	if envPath := os.Getenv("KEEP_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "keep.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "keep", "keep.yaml")
}

// getDataPath returns the data directory.
// Priority: XDG_DATA_HOME/keep > ~/.local/share/keep
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "keep")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "keep",
		Short:         "Administrative control plane for a multi-user line server",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: $KEEP_CONFIG or $XDG_CONFIG_HOME/keep/keep.yaml)")

	resolveConfig := func() string {
		if configPath != "" {
			return configPath
		}
		return getConfigPath()
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the server",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(cmd.Context(), resolveConfig())
			},
		},
		newInitCmd(resolveConfig),
		newAddUserCmd(resolveConfig),
		newTokenCmd(resolveConfig),
		newHealthCmd(resolveConfig),
	)
	return root
}

func runServe(ctx context.Context, configPath string) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	printLine := func(label, value string) {
		if value == "" {
			return
		}
		green.Print("    ▶ ")
		fmt.Printf("%-10s %s\n", label+":", value)
	}
	printLine("Config", configPath)
	printLine("Telnet", cfg.Server.TelnetAddr)
	printLine("WebSocket", cfg.Server.WebSocketAddr)
	printLine("Health", cfg.Server.HealthAddr)
	printLine("Database", cfg.Database.Path)
	printLine("Behaviors", cfg.Behaviors.Path)
	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("%-10s ", "Tailscale:")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}
	fmt.Println()

	logger.Info("starting keep",
		"config", configPath,
		"telnet_addr", cfg.Server.TelnetAddr,
		"websocket_addr", cfg.Server.WebSocketAddr,
		"health_addr", cfg.Server.HealthAddr,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	return gw.Run(ctx)
}

func newHealthCmd(resolveConfig func() string) *cobra.Command {
	var addr, name string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Probe the gRPC health service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				cfg, err := config.Load(resolveConfig())
				if err != nil {
					return fmt.Errorf("loading config: %w", err)
				}
				addr = cfg.Server.HealthAddr
			}
			if addr == "" {
				return fmt.Errorf("server.health_addr is not configured")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()

			status, err := gateway.ProbeHealth(ctx, addr, name)
			if err != nil {
				return err
			}
			if status != healthpb.HealthCheckResponse_SERVING {
				return fmt.Errorf("unhealthy: %s", status)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "healthy")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "health server address (default: server.health_addr)")
	cmd.Flags().StringVar(&name, "service", "", "service to check (default: the whole process)")
	return cmd
}
