package users

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/recychain/recychain/cmd/cli/config"
	"github.com/recychain/recychain/cmd/cli/output"
	"github.com/recychain/recychain/internal/models"
)

// InitUsers registers user administration commands on the root command.
// These require an admin token.
func InitUsers(rootCmd *cobra.Command) {
	usersCmd := &cobra.Command{
		Use:   "users",
		Short: "Administer API users",
	}

	usersCmd.AddCommand(
		listUsersCmd(),
		setRoleCmd(),
	)

	rootCmd.AddCommand(usersCmd)
}

func listUsersCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		Run: func(cmd *cobra.Command, args []string) {
			token, ok := loadToken()
			if !ok {
				return
			}

			var envelope struct {
				Items  []models.User `json:"items"`
				Total  int64         `json:"total"`
				Limit  int           `json:"limit"`
				Offset int           `json:"offset"`
			}
			if err := getJSON(token, "/v1/users", &envelope); err != nil {
				fmt.Println(err)
				return
			}

			if asJSON {
				b, _ := json.MarshalIndent(envelope.Items, "", "  ")
				fmt.Println(string(b))
				return
			}

			rows := make([][]interface{}, 0, len(envelope.Items))
			for _, u := range envelope.Items {
				rows = append(rows, []interface{}{u.ID, u.Username, u.Role, u.WalletAddress})
			}
			output.RenderTable([]string{"ID", "Username", "Role", "Wallet"}, rows)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print raw JSON instead of a table")

	return cmd
}

func setRoleCmd() *cobra.Command {
	var role string

	cmd := &cobra.Command{
		Use:   "set-role [id]",
		Short: "Change a user's role",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			token, ok := loadToken()
			if !ok {
				return
			}

			data, _ := json.Marshal(map[string]string{"role": role})
			req, err := http.NewRequest("PUT", config.APIURL()+"/v1/users/"+args[0]+"/role", bytes.NewBuffer(data))
			if err != nil {
				fmt.Println(err)
				return
			}
			req.Header.Set("Authorization", "Bearer "+token)
			req.Header.Set("Content-Type", "application/json")

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				fmt.Println(err)
				return
			}
			defer resp.Body.Close()

			body, _ := io.ReadAll(resp.Body)
			if resp.StatusCode != http.StatusOK {
				fmt.Printf("status %d: %s\n", resp.StatusCode, string(body))
				return
			}

			var u models.User
			if err := json.Unmarshal(body, &u); err != nil {
				fmt.Println(err)
				return
			}
			fmt.Printf("User %s is now %s\n", u.Username, u.Role)
		},
	}

	cmd.Flags().StringVar(&role, "role", "", "New role (admin, technician, viewer)")

	return cmd
}

// loadToken returns the stored token, printing a login hint when missing.
func loadToken() (string, bool) {
	token, err := config.LoadToken()
	if err != nil {
		fmt.Println("Please login first")
		return "", false
	}
	return token, true
}

// getJSON performs an authenticated GET and decodes the JSON response into out.
func getJSON(token, path string, out any) error {
	req, err := http.NewRequest("GET", config.APIURL()+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}
	return json.Unmarshal(body, out)
}
