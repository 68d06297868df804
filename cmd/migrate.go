package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okian/rsvp/internal/adapters/repository"
	"github.com/okian/rsvp/internal/config"
	"github.com/okian/rsvp/pkg/logger"
)

func newMigrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations to the configured store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if c.cfg.StoreDriver == config.StoreMemory {
				c.log.Info(ctx, "memory store has no migrations")
				return nil
			}
			if err := repository.MigrateDSN(ctx, c.cfg.StoreDriver, c.cfg.StoreDSN); err != nil {
				return fmt.Errorf("migrate %s: %w", c.cfg.StoreDriver, err)
			}
			c.log.Info(ctx, "migrations applied", logger.String("store", c.cfg.StoreDriver))
			return nil
		},
	}
}
