// Command newsctl runs newsroom maintenance jobs: schema migration, press
// release collection and rewriting, and CMS account setup.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"kjtimes/internal/app"
	"kjtimes/internal/logger"
)

var (
	cfgFile string
	debug   bool
)

// env is what every subcommand needs once flags are parsed.
type env struct {
	cfg app.Config
	log logger.Logger
	db  *sql.DB
}

func (e *env) close() {
	if e.db != nil {
		_ = e.db.Close()
	}
	_ = e.log.Sync()
}

func setup() (*env, error) {
	cfg, err := app.LoadConfig(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if debug {
		cfg.Log.Level = "debug"
		cfg.Log.Development = true
	}
	lg, err := logger.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	db, err := app.NewDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := app.PingDB(db, 5*time.Second); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &env{cfg: cfg, log: lg, db: db}, nil
}

func rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "newsctl",
		Short:         "광전타임즈 newsroom maintenance",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", os.Getenv("KJTIMES_CONFIG"), "path to an optional YAML config file")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(
		migrateCommand(),
		crawlCommand(),
		feedCommand(),
		processCommand(),
		userCommand(),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "newsctl:", err)
		os.Exit(1)
	}
}
