package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mx-space/drafts/internal/modules/draft"
)

func moveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move [old-title] [new-title]",
		Short: "Rename a document and carry its drafts along",
		Args:  cobra.ExactArgs(2),
		RunE: withEnv(func(ctx context.Context, cmd *cobra.Command, e *env, args []string) error {
			if err := e.Docs.Move(ctx, args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "moved %q to %q\n", args[0], args[1])
			return nil
		}),
	}
}

func notifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Broadcast a document event to running instances",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "renamed [old-title] [new-title]",
		Short: "Announce that a document was renamed elsewhere",
		Args:  cobra.ExactArgs(2),
		RunE: withEnv(func(ctx context.Context, cmd *cobra.Command, e *env, args []string) error {
			n, err := notifier(e)
			if err != nil {
				return err
			}
			return n.OnRenamed(ctx, args[0], args[1])
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "published [title] [owner-id]",
		Short: "Announce that a revision was published elsewhere",
		Args:  cobra.ExactArgs(2),
		RunE: withEnv(func(ctx context.Context, cmd *cobra.Command, e *env, args []string) error {
			n, err := notifier(e)
			if err != nil {
				return err
			}
			return n.OnPublished(ctx, args[0], args[1], nil)
		}),
	})
	return cmd
}

func notifier(e *env) (*draft.Notifier, error) {
	if e.rc == nil {
		return nil, errors.New("redis is not configured")
	}
	return draft.NewNotifier(e.rc, e.cfg.Drafts.EventsChannel), nil
}
