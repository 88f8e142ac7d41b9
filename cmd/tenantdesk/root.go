package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"tenantdesk/config"
	"tenantdesk/core/appbootstrap"
	"tenantdesk/core/store"
	"tenantdesk/core/utils"
)

type rootOptions struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "tenantdesk",
		Short:         "Multi-tenant incident desk",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "tenantdesk.yml", "config file path (optional)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newSeedCommand(opts))
	return cmd
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and realtime server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			logger := utils.NewLogger()
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			app, err := appbootstrap.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()
			return app.Run(ctx)
		},
	}
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			logger := utils.NewLogger()
			db, err := appbootstrap.OpenDatabase(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()
			version, err := store.MigrationVersion(cmd.Context(), db)
			if err != nil {
				return err
			}
			cmd.Printf("schema at version %d\n", version)
			return nil
		},
	}
}

func newSeedCommand(opts *rootOptions) *cobra.Command {
	var fixture string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load demo tenants, users and incidents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if fixture != "" {
				cfg.SeedPath = fixture
			}
			logger := utils.NewLogger()
			db, err := appbootstrap.OpenDatabase(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer db.Close()
			report, err := appbootstrap.Seed(cmd.Context(), db, cfg, logger)
			if err != nil {
				return err
			}
			cmd.Printf("seeded %d tenants, %d users, %d incident types, %d incidents, %d comments\n",
				report.Tenants, report.Users, report.Types, report.Incidents, report.Comments)
			return nil
		},
	}
	cmd.Flags().StringVar(&fixture, "fixture", "", "YAML fixture to load instead of the built-in demo data")
	return cmd
}
