package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"claim-batch/internal/config"
	"claim-batch/internal/database"
	"claim-batch/internal/observability/logging"
)

type app struct {
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "claim-batch",
		Short: "Monthly claims valuation batch and batch reports",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Log)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file path (env CLAIMBATCH_* overrides)")

	cmd.AddCommand(newServeCommand(a), newRunCommand(a), newMigrateCommand(a))
	return cmd
}

func (a *app) openDB(cmd *cobra.Command) (*sql.DB, error) {
	if err := a.cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	return database.Open(cmd.Context(), a.cfg.Database)
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
