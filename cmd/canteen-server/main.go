package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/canteen/internal/config"
	"github.com/BrandonDHaskell/canteen/internal/db"
	"github.com/BrandonDHaskell/canteen/internal/logging"
)

func main() {
	root := &cobra.Command{
		Use:   "canteen-server",
		Short: "Canteen admission control",
		Long: `Canteen admission control server.

Configure with CANTEEN_* environment variables, e.g.
CANTEEN_HTTP_ADDR            // default :8080
CANTEEN_GRPC_ADDR            // gRPC health listener; empty disables it
CANTEEN_ENV                  // dev | prod
CANTEEN_DB_PATH              // default ./data/canteen.db
CANTEEN_TIMEZONE             // default Asia/Jakarta
CANTEEN_WRITE_LOCK_TIMEOUT   // default 2s
CANTEEN_RABBIT_URL           // empty disables broker notifications
`,
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd(), migrateCmd(), seedDevCmd())

	// serve is the default action.
	root.RunE = serveCmd().RunE

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap loads config and builds the logger every subcommand needs.
func bootstrap() (config.Config, *zap.Logger, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return config.Config{}, nil, err
	}
	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	return cfg, logger, nil
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			// Open migrates as part of connecting.
			sqlDB, err := db.Open(cmd.Context(), cfg.DB(logger))
			if err != nil {
				return err
			}
			logger.Info("migrations applied", zap.String("db", cfg.DBPath))
			return sqlDB.Close()
		},
	}
}

func seedDevCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed-dev",
		Short: "Load sample tenants, employees and readers into the database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			if cfg.Env != "dev" {
				return fmt.Errorf("seed-dev refuses to run with CANTEEN_ENV=%s", cfg.Env)
			}
			sqlDB, err := db.Open(cmd.Context(), cfg.DB(logger))
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			if err := db.SeedDev(cmd.Context(), sqlDB); err != nil {
				return err
			}
			logger.Info("dev seed loaded", zap.String("db", cfg.DBPath))
			return nil
		},
	}
}
