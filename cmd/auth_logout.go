package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session and remove the stored token",
	Long: `End the current session.

The server is asked to drop its session first; whether or not that
succeeds, the stored token is removed locally. You will need to run
'fieldops auth login' again to authenticate.

Examples:
  fieldops auth logout`,
	RunE: runLogout,
}

func init() {
	authCmd.AddCommand(logoutCmd)
}

func runLogout(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	st, err := s.bootstrap(ctx)
	if err != nil {
		return err
	}
	if !st.IsAuthenticated() {
		fmt.Fprintln(cmd.OutOrStdout(), "Not currently authenticated.")
		return nil
	}

	s.manager.Logout(ctx)
	fmt.Fprintln(cmd.OutOrStdout(), "Logged out successfully.")
	return nil
}
