package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldops/cli/internal/auth"
	"github.com/fieldops/cli/internal/identity"
)

var inspectTokenCmd = &cobra.Command{
	Use:   "inspect [token]",
	Short: "Inspect a JWT token to view its claims",
	Long: `Decode and display the claims of a JWT token without validation.

With no argument the stored access token is inspected. This is useful for:
  - Checking when the current token expires
  - Seeing which roles and permissions the token carries
  - Debugging tokens issued by another environment

The token signature is NOT validated - this only decodes the payload,
exactly as the CLI itself does when deriving the user from a token.

Examples:
  fieldops auth inspect
  fieldops auth inspect eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9...
  fieldops auth inspect <token> --format json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInspectToken,
}

var inspectTokenFormat string

func init() {
	authCmd.AddCommand(inspectTokenCmd)
	inspectTokenCmd.Flags().StringVar(&inspectTokenFormat, "format", "table", "Output format (table|json)")
}

func runInspectToken(cmd *cobra.Command, args []string) error {
	var token string
	if len(args) == 1 {
		token = args[0]
	} else {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		store, closeStore, err := openStore(cfg.Storage)
		if err != nil {
			return err
		}
		defer closeStore()
		token, err = store.Load(cmd.Context())
		if err != nil {
			return err
		}
		if token == "" {
			return errors.New("no stored token. Run 'fieldops auth login' or pass a token")
		}
	}

	claims := auth.DecodeUnverified(token)
	if claims == nil {
		return errors.New("invalid token format")
	}

	out := cmd.OutOrStdout()
	if inspectTokenFormat == "json" {
		output, err := json.MarshalIndent(claims, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode claims: %w", err)
		}
		fmt.Fprintln(out, string(output))
		return nil
	}
	printTokenClaims(out, claims, time.Now())
	return nil
}

func printTokenClaims(out io.Writer, claims auth.Claims, now time.Time) {
	fmt.Fprintln(out, "Token Claims:")
	fmt.Fprintln(out, "-----------------------------------------")

	known := map[string]bool{}
	keyFields := []struct {
		key   string
		label string
	}{
		{"jti", "JTI (JWT ID)"},
		{"sub", "Subject"},
		{"iss", "Issuer"},
		{"aud", "Audience"},
		{"iat", "Issued At"},
		{"exp", "Expires At"},
		{"nbf", "Not Before"},
	}
	for _, field := range keyFields {
		known[field.key] = true
		val, ok := claims[field.key]
		if !ok || val == nil {
			continue
		}
		if n, isNum := val.(float64); isNum && field.key != "aud" && field.key != "jti" {
			val = time.Unix(int64(n), 0).UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(out, "  %-14s %v\n", field.label+":", val)
	}

	var other []string
	for key := range claims {
		if !known[key] {
			other = append(other, key)
		}
	}
	if len(other) > 0 {
		sort.Strings(other)
		fmt.Fprintln(out, "\nOther Claims:")
		for _, key := range other {
			fmt.Fprintf(out, "  %-14s %v\n", key+":", claims[key])
		}
	}

	fmt.Fprintln(out, "-----------------------------------------")

	if claims.IsExpired(now) {
		fmt.Fprintln(out, "\nThis token has expired.")
	}
	if u := identity.FromClaims(claims); u.ID != "" {
		fmt.Fprintf(out, "\nDerived user: %s", u.ID)
		if u.Username != "" {
			fmt.Fprintf(out, " (%s)", u.Username)
		}
		fmt.Fprintln(out)
	}
}
