package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var canCmd = &cobra.Command{
	Use:   "can <form> [flag]",
	Short: "Check whether you may use a form",
	Long: `Answer whether the signed-in user has a permission record for a form,
and optionally whether a specific flag on that record is set.

Form keys are matched case-insensitively. Flag names may be given in
camelCase or PascalCase (canView and CanView are the same flag).

The command exits with an error when the permission is not granted.

Examples:
  fieldops auth can /visits
  fieldops auth can /visits canEdit`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runCan,
}

func init() {
	authCmd.AddCommand(canCmd)
}

func runCan(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	st, err := s.bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	if !st.IsAuthenticated() {
		return fmt.Errorf("not authenticated. Run 'fieldops auth login' first")
	}

	form, flag := args[0], ""
	if len(args) == 2 {
		flag = args[1]
	}

	what := form
	if flag != "" {
		what = form + " " + flag
	}
	if !s.manager.HasFormPermission(form, flag) {
		if st.MinimalProfile {
			return fmt.Errorf("denied: %s (profile not loaded, form permissions unknown)", what)
		}
		return fmt.Errorf("denied: %s", what)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "allowed: %s\n", what)
	return nil
}
