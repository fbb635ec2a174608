package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fieldops/cli/internal/config"
	"github.com/fieldops/cli/internal/session"
)

// loginPath is the password-less sign-in endpoint of the development server.
const loginPath = "/auth/login"

var (
	loginToken    string
	loginUsername string
	loginRemember bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store an access token",
	Long: `Sign in to the FieldOps API.

Provide an access token issued by your organization with --token, or
enter it when prompted. Against a development server, --username signs
in as one of its fixture accounts and also stores the returned profile.

The user is derived from the token's claims until the profile endpoint
answers, so roles are available right away but form permissions may
need 'fieldops auth status --refresh'.

Examples:
  fieldops auth login
  fieldops auth login --token eyJhbGciOiJIUzI1NiIs...
  fieldops auth login --server http://127.0.0.1:8787 --username advisor
  fieldops auth login --server https://api.fieldops.example.org --remember`,
	RunE: runLogin,
}

func init() {
	authCmd.AddCommand(loginCmd)
	loginCmd.Flags().StringVarP(&loginToken, "token", "t", "", "access token")
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "development server account")
	loginCmd.Flags().BoolVar(&loginRemember, "remember", false, "save the server to the config file after signing in")
}

func runLogin(cmd *cobra.Command, args []string) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx := cmd.Context()
	switch {
	case loginUsername != "":
		var resp struct {
			AccessToken string         `json:"accessToken"`
			User        map[string]any `json:"user"`
		}
		body := map[string]string{"username": loginUsername}
		if err := s.client.Post(ctx, loginPath, body, &resp); err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
		if resp.AccessToken == "" {
			return errors.New("login failed: server returned no access token")
		}
		s.manager.SetAuth(ctx, resp.AccessToken, resp.User)

	default:
		token := loginToken
		if token == "" {
			token, err = promptToken(cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
		}
		s.manager.Login(ctx, token)
	}

	st := s.manager.State()
	if !st.IsAuthenticated() {
		return errors.New("login failed: the token could not be decoded")
	}
	printSignedIn(cmd.OutOrStdout(), st)

	if loginRemember {
		return rememberServer(cmd, s.cfg)
	}
	return nil
}

// rememberServer writes cfg back to the file named by --config, or to the
// global config file.
func rememberServer(cmd *cobra.Command, cfg *config.Config) error {
	path, _ := cmd.Flags().GetString("config")

	var err error
	if path != "" {
		err = cfg.SaveTo(path)
	} else {
		err = cfg.Save()
		path, _ = config.GlobalConfigPath()
	}
	if err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Server %s saved to %s\n", cfg.Host, path)
	return nil
}
