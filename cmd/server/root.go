package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"fleetbook/internal/allocation/store"
	"fleetbook/internal/platform/config"
	"fleetbook/internal/platform/logger"
)

const defaultConfigPath = "fleetbook.yaml"

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:          "fleetbook",
		Short:        "Vehicle allocation service",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", defaultConfigPath, "configuration file (optional)")

	loadConfig := func() (*config.Config, error) {
		path := cfgPath
		if path == defaultConfigPath && !config.Exists(path) {
			path = ""
		}
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		return cfg, nil
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, cfg, logger.New(cfg.Logging))
		},
	}

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := openDB(cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := store.Migrate(cmd.Context(), db); err != nil {
				return err
			}
			logger.New(cfg.Logging).InfoContext(cmd.Context(), "schema applied")
			return nil
		},
	}

	var employees, vehicles int
	seed := &cobra.Command{
		Use:   "seed",
		Short: "Load employee and vehicle master data into PostgreSQL",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runSeed(cmd.Context(), cfg, employees, vehicles)
		},
	}
	seed.Flags().IntVar(&employees, "employees", store.DefaultSeedSize, "number of employees to seed")
	seed.Flags().IntVar(&vehicles, "vehicles", store.DefaultSeedSize, "number of vehicles to seed")

	root.AddCommand(serve, migrate, seed)
	root.SetContext(context.Background())
	return root
}

func runSeed(ctx context.Context, cfg *config.Config, employees, vehicles int) error {
	if employees < 0 || vehicles < 0 {
		return fmt.Errorf("seed sizes must not be negative")
	}
	db, err := openDB(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.Migrate(ctx, db); err != nil {
		return err
	}
	pg := store.NewPostgres(db)
	if err := pg.Seed(ctx, store.SeedEmployees(employees), store.SeedVehicles(vehicles)); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	logger.New(cfg.Logging).InfoContext(ctx, "seeded master data",
		"employees", employees,
		"vehicles", vehicles,
	)
	return nil
}
