package evidence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/recychain/recychain/cmd/cli/config"
)

// InitEvidence registers evidence commands on the root command.
func InitEvidence(rootCmd *cobra.Command) {
	evidenceCmd := &cobra.Command{
		Use:   "evidence",
		Short: "Store and fetch sanitization evidence",
	}

	evidenceCmd.AddCommand(
		putEvidenceCmd(),
		getEvidenceCmd(),
	)

	rootCmd.AddCommand(evidenceCmd)
}

// Upload stores the file at path in the evidence store and returns the
// evidence reference. Shared with `assets sanitize --file`.
func Upload(token, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequest("POST", config.APIURL()+"/v1/evidence", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}

	var out struct {
		EvidenceRef string `json:"evidence_ref"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	return out.EvidenceRef, nil
}

func putEvidenceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put [file]",
		Short: "Upload an evidence file and print its reference",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			token, err := config.LoadToken()
			if err != nil {
				fmt.Println("Please login first")
				return
			}

			ref, err := Upload(token, args[0])
			if err != nil {
				fmt.Println(err)
				return
			}
			fmt.Println(ref)
		},
	}
}

func getEvidenceCmd() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "get [ref]",
		Short: "Fetch stored evidence by reference",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			token, err := config.LoadToken()
			if err != nil {
				fmt.Println("Please login first")
				return
			}

			req, _ := http.NewRequest("GET", config.APIURL()+"/v1/evidence/"+args[0], nil)
			req.Header.Set("Authorization", "Bearer "+token)

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

			if outPath != "" {
				if err := os.WriteFile(outPath, body, 0644); err != nil {
					fmt.Println(err)
					return
				}
				fmt.Printf("Saved %d bytes to %s\n", len(body), outPath)
				return
			}
			_, _ = os.Stdout.Write(body)
		},
	}

	cmd.Flags().StringVar(&outPath, "out", "", "Write evidence to this file instead of stdout")

	return cmd
}
