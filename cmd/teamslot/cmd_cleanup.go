/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/friendsincode/teamslot/internal/db"
	"github.com/friendsincode/teamslot/internal/slotlock"
)

var cleanupLocksCmd = &cobra.Command{
	Use:   "cleanup-locks",
	Short: "Delete expired slot locks once and exit",
	Long: `Run a single pass of the expired lock cleanup that the server performs
periodically. Useful from cron when no server instance is running.`,
	RunE: runCleanupLocks,
}

func init() {
	rootCmd.AddCommand(cleanupLocksCmd)
}

func runCleanupLocks(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	database, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer func() {
		if err := db.Close(database); err != nil {
			logger.Warn().Err(err).Msg("close database")
		}
	}()

	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	locks := slotlock.NewService(database, logger)
	removed, err := slotlock.NewMaintenanceJob(locks, nil, cfg.LockCleanupEvery, logger).RunOnce(context.Background())
	if err != nil {
		return fmt.Errorf("cleanup locks: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired lock(s)\n", removed)
	return nil
}
