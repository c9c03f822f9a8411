package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts",
	}
	cmd.AddCommand(userAddCmd())
	return cmd
}

func userAddCmd() *cobra.Command {
	var password, name string
	cmd := &cobra.Command{
		Use:   "add [username]",
		Short: "Create an account that can sign in and keep drafts",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(ctx context.Context, cmd *cobra.Command, e *env, args []string) error {
			if password == "" {
				return errors.New("--password is required")
			}
			u, err := e.Auth.Register(ctx, args[0], password, name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %s (%s)\n", u.Username, u.ID)
			return nil
		}),
	}
	cmd.Flags().StringVar(&password, "password", "", "Password for the new account")
	cmd.Flags().StringVar(&name, "name", "", "Display name, defaults to the username")
	return cmd
}
