package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fieldops/cli/internal/session"
)

var (
	fetchMethod  string
	fetchData    string
	fetchHeaders []string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <path>",
	Short: "Send an authorized request to the API",
	Long: `Send a request to the FieldOps API as the signed-in user and print the
JSON response.

Paths are relative to the configured server unless a full URL is given.
The request carries the current access token. If the server answers 401
the session is ended and the stored token removed.

Examples:
  fieldops fetch /api/forms
  fieldops fetch /api/visits -X POST -d '{"siteId": 12}'
  fieldops fetch /api/visits -H 'X-Tenant: north'`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().StringVarP(&fetchMethod, "method", "X", "GET", "HTTP method")
	fetchCmd.Flags().StringVarP(&fetchData, "data", "d", "", "request body (sent as is)")
	fetchCmd.Flags().StringArrayVarP(&fetchHeaders, "header", "H", nil, "extra header as 'Name: value' (repeatable)")
}

func runFetch(cmd *cobra.Command, args []string) error {
	headers, err := parseHeaders(fetchHeaders)
	if err != nil {
		return err
	}

	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	if _, err := s.bootstrap(ctx); err != nil {
		return err
	}

	req := session.Request{
		URL:     args[0],
		Method:  fetchMethod,
		Headers: headers,
	}
	if fetchData != "" {
		req.Data = fetchData
	}

	result, err := s.manager.Fetch(ctx, req)
	if err != nil {
		if errors.Is(err, session.ErrUnauthorized) {
			return fmt.Errorf("session expired or rejected. Run 'fieldops auth login' to re-authenticate")
		}
		return err
	}

	output, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format response: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(output))
	return nil
}

func parseHeaders(raw []string) (map[string]string, error) {
	headers := make(map[string]string, len(raw))
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q, expected 'Name: value'", h)
		}
		headers[name] = strings.TrimSpace(value)
	}
	return headers, nil
}
