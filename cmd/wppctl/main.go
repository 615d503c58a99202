package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/krishhrana/whatsapp-mcp/internal/config"
	"github.com/krishhrana/whatsapp-mcp/internal/format"
	"github.com/krishhrana/whatsapp-mcp/internal/logging"
	"github.com/krishhrana/whatsapp-mcp/internal/query"
	"github.com/krishhrana/whatsapp-mcp/internal/store"
)

var version = "dev"

// app carries global flags and lazily opened dependencies.
type app struct {
	configPath string
	envFile    string
	storePath  string
	jsonOut    bool
	out        io.Writer

	cfg *config.Config
	db  *store.DB
}

func main() {
	a := &app{out: os.Stdout}
	root := a.rootCmd()
	err := root.Execute()
	a.close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "wppctl",
		Short:         "Query a WhatsApp message archive from the command line",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.out = cmd.OutOrStdout()
			cfg, err := config.Resolve(a.configPath, a.envFile)
			if err != nil {
				return err
			}
			if a.storePath != "" {
				cfg.StoreLocation = a.storePath
			}
			a.cfg = cfg
			return nil
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", config.ConfigPath(), "Config file (TOML)")
	pf.StringVar(&a.envFile, "env-file", ".env", "dotenv file")
	pf.StringVar(&a.storePath, "store", "", "Archive SQLite file (overrides config)")
	pf.BoolVar(&a.jsonOut, "json", false, "JSON output for scripting")

	root.AddCommand(
		a.initCmd(),
		a.messagesCmd(),
		a.chatsCmd(),
		a.contactsCmd(),
		a.healthCmd(),
	)
	return root
}

// service opens the archive read-only on first use.
func (a *app) service() (*query.Service, *format.Formatter, error) {
	if a.db == nil {
		db, err := store.OpenReadOnly(a.cfg.StoreLocation)
		if err != nil {
			return nil, nil, fmt.Errorf("open %s: %w", a.cfg.StoreLocation, err)
		}
		a.db = db
	}
	log, err := logging.New("", "wppctl", zapcore.ErrorLevel)
	if err != nil {
		return nil, nil, err
	}
	svc := query.New(a.db, log)
	return svc, format.New(svc), nil
}

func (a *app) close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}

// emit prints v as indented JSON when --json is set, else text.
func (a *app) emit(v any, text func() string) error {
	if a.jsonOut {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(a.out, text())
	return err
}

func (a *app) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create an empty archive with the bridge schema",
		Long:  "Creates the archive file if needed and applies pending schema migrations.\nExisting data is kept.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := a.cfg.StoreLocation
			if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
				return err
			}
			db, err := store.Open(path)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			res, err := db.Migrate()
			if err != nil {
				return err
			}
			return a.emit(res, func() string {
				if res.Changed {
					return fmt.Sprintf("Archive %s migrated to version %d", path, res.Version)
				}
				return fmt.Sprintf("Archive %s up to date (version %d)", path, res.Version)
			})
		},
	}
}
