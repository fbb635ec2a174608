package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldops/cli/internal/auth"
	"github.com/fieldops/cli/internal/identity"
	"github.com/fieldops/cli/internal/session"
)

var (
	statusFormat  string
	statusRefresh bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current authentication status",
	Long: `Restore the session and display who you are signed in as.

The stored token is used when there is one; otherwise the server is
asked to mint a new token from its session cookie. The user profile is
then loaded from the server. When the profile endpoint is unreachable
the user is derived from the token claims and form permissions are
unavailable; --refresh retries the profile explicitly.

Examples:
  fieldops auth status
  fieldops auth status --refresh
  fieldops auth status --format json`,
	RunE: runStatus,
}

func init() {
	authCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringVar(&statusFormat, "format", "table", "Output format (table|json)")
	statusCmd.Flags().BoolVar(&statusRefresh, "refresh", false, "Reload the user profile from the server")
}

func runStatus(cmd *cobra.Command, args []string) error {
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
	if statusRefresh && st.IsAuthenticated() {
		if _, err := s.manager.RefreshProfile(ctx); err != nil {
			s.logger.Warn("profile refresh failed", "error", err)
		}
		st = s.manager.State()
	}

	out := cmd.OutOrStdout()
	if statusFormat == "json" {
		return writeStatusJSON(out, s.cfg.Host, st)
	}
	printStatus(out, s.cfg.Host, st, time.Now())
	return nil
}

type statusReport struct {
	Server         string         `json:"server"`
	Status         string         `json:"status"`
	MinimalProfile bool           `json:"minimalProfile"`
	ExpiresAt      *time.Time     `json:"expiresAt,omitempty"`
	User           *identity.User `json:"user,omitempty"`
}

func writeStatusJSON(out io.Writer, server string, st session.State) error {
	report := statusReport{
		Server:         server,
		Status:         st.Phase.String(),
		MinimalProfile: st.MinimalProfile,
		User:           st.User,
	}
	if exp, ok := tokenExpiry(st.Token); ok {
		report.ExpiresAt = &exp
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func printStatus(out io.Writer, server string, st session.State, now time.Time) {
	fmt.Fprintf(out, "Server: %s\n\n", server)

	if !st.IsAuthenticated() {
		fmt.Fprintln(out, "Status: Not authenticated")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "To authenticate, run:")
		fmt.Fprintln(out, "  fieldops auth login")
		return
	}

	fmt.Fprintln(out, "Status: Authenticated")
	u := st.User
	if u != nil {
		fmt.Fprintf(out, "  User:     %s\n", u.ID)
		if u.Username != "" {
			fmt.Fprintf(out, "  Username: %s\n", u.Username)
		}
		if u.FullName != "" {
			fmt.Fprintf(out, "  Name:     %s\n", u.FullName)
		}
		if u.Email != "" {
			fmt.Fprintf(out, "  Email:    %s\n", u.Email)
		}
		if len(u.Roles) > 0 {
			fmt.Fprintf(out, "  Roles:    %s\n", strings.Join(u.Roles, ", "))
		}
		if len(u.Permissions) > 0 {
			fmt.Fprintf(out, "  Permissions: %s\n", strings.Join(u.Permissions, ", "))
		}
		if u.Employee != nil {
			fmt.Fprintf(out, "  Employee: %s %s\n", u.Employee.ID, u.Employee.FullName)
		}
	}

	if exp, ok := tokenExpiry(st.Token); ok {
		fmt.Fprintf(out, "  Expires:  %s\n", exp.Format(time.RFC3339))
		if remaining := exp.Sub(now); remaining < 5*time.Minute {
			fmt.Fprintf(out, "\n  Warning: Token expires in %s\n", remaining.Round(time.Second))
		}
	}

	fmt.Fprintln(out)
	if st.MinimalProfile {
		fmt.Fprintln(out, "Profile: unavailable (derived from token claims)")
		fmt.Fprintln(out, "  Run 'fieldops auth status --refresh' to retry.")
		return
	}
	if u != nil && len(u.FormPermissions) > 0 {
		fmt.Fprintln(out, "Forms:")
		keys := make([]string, 0, len(u.FormPermissions))
		for k := range u.FormPermissions {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(out, "  %-20s %s\n", k, grantedFlags(u.FormPermissions[k]))
		}
	}
}

// grantedFlags lists the Can* flags that are set on a form record.
func grantedFlags(flags identity.Flags) string {
	var granted []string
	for _, f := range []string{"canView", "canEdit", "canCreate", "canDelete", "canPrint"} {
		if flags.Allows(f) {
			granted = append(granted, f)
		}
	}
	if len(granted) == 0 {
		return "-"
	}
	return strings.Join(granted, ", ")
}

func tokenExpiry(token string) (time.Time, bool) {
	claims := auth.DecodeUnverified(token)
	if claims == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt()
}
