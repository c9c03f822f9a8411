package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func purgeCmd() *cobra.Command {
	var sessionsOlderThan time.Duration
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete expired drafts and dead sessions now",
		Args:  cobra.NoArgs,
		RunE: withEnv(func(ctx context.Context, cmd *cobra.Command, e *env, _ []string) error {
			drafts, err := e.Drafts.PurgeExpired(ctx)
			if err != nil {
				return fmt.Errorf("purge drafts: %w", err)
			}
			sessions, err := e.Sessions.PurgeExpired(ctx, time.Now().Add(-sessionsOlderThan))
			if err != nil {
				return fmt.Errorf("purge sessions: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d drafts and %d sessions\n", drafts, sessions)
			return nil
		}),
	}
	cmd.Flags().DurationVar(&sessionsOlderThan, "sessions-older-than", 7*24*time.Hour, "Keep dead sessions this long")
	return cmd
}
