package cmd

import (
	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage your FieldOps session",
	Long: `Commands for signing in to the FieldOps API and inspecting the current session.

The access token is kept in the configured token store (by default
~/.fieldops/credentials) and reused by every command until it expires
or the server rejects it.

Examples:
  fieldops auth login
  fieldops auth status
  fieldops auth can /visits canEdit
  fieldops auth logout`,
}

func init() {
	rootCmd.AddCommand(authCmd)
}
