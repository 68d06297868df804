package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/okian/rsvp/internal/config"
	"github.com/okian/rsvp/pkg/logger"
)

const serviceName = "rsvp"

// cli carries state shared by every subcommand once the root has run.
type cli struct {
	envFile string
	cfg     *config.Config
	log     logger.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "rsvp",
		Short:         "RSVP landing page for a single event",
		Long:          `Serve the event landing page where visitors RSVP and watch the live guest list.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env",
		"dotenv file applied before configuration is loaded; a missing file is ignored")

	root.AddCommand(
		newServeCmd(c),
		newTokenCmd(c),
		newMigrateCmd(c),
		newLoadtestCmd(c),
	)
	return root
}

// setup loads the env file and configuration, then the global logger.
func (c *cli) setup(ctx context.Context) error {
	if err := loadEnvFile(c.envFile); err != nil {
		return err
	}
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info",
			logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}
	c.cfg = cfg
	c.log = log
	return nil
}

// loadEnvFile exports variables from path without overriding ones already set.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}
