// Package auth implements recyctl's login and logout commands.
package auth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/recychain/recychain/cmd/cli/config"
)

// InitAuth attaches the session commands to the root command.
func InitAuth(rootCmd *cobra.Command) {
	rootCmd.AddCommand(loginCmd(), logoutCmd())
}

// credentials is the body for both register and login calls; empty fields
// stay off the wire.
type credentials struct {
	Username string `json:"username"`
	Password string `json:"password,omitempty"`
	Role     string `json:"role,omitempty"`
}

func loginCmd() *cobra.Command {
	var creds credentials
	var register bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the RecyChain API",
		Long:  "Authenticate with the RecyChain API and store a JWT token for subsequent CLI commands.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if creds.Username == "" {
				return fmt.Errorf("username is required")
			}

			if register {
				if err := postJSON("/v1/auth/register", creds, nil); err != nil {
					return fmt.Errorf("register: %w", err)
				}
			}

			login := creds
			login.Role = ""
			var resp struct {
				Token string `json:"token"`
			}
			if err := postJSON("/v1/auth/login", login, &resp); err != nil {
				return fmt.Errorf("login: %w", err)
			}
			if resp.Token == "" {
				return fmt.Errorf("no token in login response")
			}
			if err := config.SaveToken(resp.Token); err != nil {
				return fmt.Errorf("save token: %w", err)
			}

			fmt.Println("Logged in. Token saved.")
			return nil
		},
	}

	cmd.Flags().StringVar(&creds.Username, "username", "", "Username to authenticate as")
	cmd.Flags().StringVar(&creds.Password, "password", "", "Password (omit for passwordless accounts)")
	cmd.Flags().StringVar(&creds.Role, "role", "", "Role when registering (admin, technician, viewer)")
	cmd.Flags().BoolVar(&register, "register", false, "Create the account before logging in")

	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out and discard the stored token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.ClearToken(); err != nil {
				return fmt.Errorf("remove token: %w", err)
			}
			fmt.Println("Logged out.")
			return nil
		},
	}
}

// postJSON posts body to the API and decodes a 2xx response into out when
// out is non-nil. Other statuses become errors carrying the response text.
func postJSON(path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := http.Post(config.APIURL()+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
