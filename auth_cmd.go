package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newLoginCmd exchanges the configured client credentials for an access
// token and persists it, so later commands start authenticated.
func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authenticate with the configured client credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			// Drop any cached token so a stale one can't mask bad credentials.
			app.tokens.Invalidate()

			if _, err := app.tokens.Token(cmd.Context()); err != nil {
				return err
			}

			fmt.Println("Authenticated successfully.")

			return nil
		},
	}
}

// newLogoutCmd discards the persisted access token.
func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Discard the stored access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newAppContext(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			app.tokens.Invalidate()
			fmt.Println("Logged out.")

			return nil
		},
	}
}
