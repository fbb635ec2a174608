package cmd

import (
	"github.com/spf13/cobra"
)

// topLoginCmd is a top-level alias for "fieldops auth login"
var topLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store an access token",
	Long: `Sign in to the FieldOps API. Same as 'fieldops auth login'.

Examples:
  fieldops login --token eyJhbGciOiJIUzI1NiIs...`,
	RunE: runLogin,
}

func init() {
	rootCmd.AddCommand(topLoginCmd)
	topLoginCmd.Flags().StringVarP(&loginToken, "token", "t", "", "access token")
	topLoginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "development server account")
	topLoginCmd.Flags().BoolVar(&loginRemember, "remember", false, "save the server to the config file after signing in")
}
