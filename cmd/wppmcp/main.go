package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/krishhrana/whatsapp-mcp/internal/config"
	"github.com/krishhrana/whatsapp-mcp/internal/daemon"
)

// Build information, set via ldflags.
var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		envFile    string
		overrides  config.Config
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:           "wppmcp",
		Short:         "MCP server over a WhatsApp message archive",
		Long:          "wppmcp serves read-only queries over the bridge's SQLite archive as MCP tools,\nand forwards send/download requests to the bridge HTTP API.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Resolve(configPath, envFile)
			if err != nil {
				return err
			}
			applyFlags(cmd.Flags(), cfg, &overrides, timeout)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			app := fx.New(
				daemon.Module(daemon.Params{Config: cfg, Version: version}),
				fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
					return &fxevent.ZapLogger{Logger: l.Named("fx")}
				}),
			)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&configPath, "config", config.ConfigPath(), "Config file (TOML)")
	f.StringVar(&envFile, "env-file", ".env", "dotenv file; never overrides the real environment")
	f.StringVar(&overrides.StoreLocation, "store", "", "Archive SQLite file")
	f.StringVar(&overrides.Transport, "transport", "", "MCP transport: stdio or http")
	f.StringVar(&overrides.HTTPAddr, "http-addr", "", "Listen address for the http transport")
	f.StringVar(&overrides.HTTPPath, "http-path", "", "Endpoint path for the http transport")
	f.StringVar(&overrides.DeliveryBaseURL, "bridge-url", "", "Bridge HTTP API base URL")
	f.DurationVar(&timeout, "bridge-timeout", 0, "Bridge request timeout")
	f.StringVar(&overrides.LogLevel, "log-level", "", "debug, info, warn or error")
	f.StringVar(&overrides.LogPath, "log-path", "", "JSON log file")
	f.StringVar(&overrides.HealthSocket, "health-socket", "", "Unix socket for the gRPC health service")
	return cmd
}

// applyFlags copies explicitly set flags over cfg.
func applyFlags(fs *pflag.FlagSet, cfg, o *config.Config, timeout time.Duration) {
	set := map[string]func(){
		"store":          func() { cfg.StoreLocation = o.StoreLocation },
		"transport":      func() { cfg.Transport = o.Transport },
		"http-addr":      func() { cfg.HTTPAddr = o.HTTPAddr },
		"http-path":      func() { cfg.HTTPPath = o.HTTPPath },
		"bridge-url":     func() { cfg.DeliveryBaseURL = o.DeliveryBaseURL },
		"bridge-timeout": func() { cfg.DeliveryTimeout = config.Duration{Duration: timeout} },
		"log-level":      func() { cfg.LogLevel = o.LogLevel },
		"log-path":       func() { cfg.LogPath = o.LogPath },
		"health-socket":  func() { cfg.HealthSocket = o.HealthSocket },
	}
	fs.Visit(func(fl *pflag.Flag) {
		if apply, ok := set[fl.Name]; ok {
			apply()
		}
	})
}
