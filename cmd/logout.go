package cmd

import (
	"github.com/spf13/cobra"
)

// topLogoutCmd is a top-level alias for "fieldops auth logout"
var topLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session and remove the stored token",
	Long: `End the current session. Same as 'fieldops auth logout'.

Examples:
  fieldops logout`,
	RunE: runLogout,
}

func init() {
	rootCmd.AddCommand(topLogoutCmd)
}
