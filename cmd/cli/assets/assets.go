package assets

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/recychain/recychain/cmd/cli/config"
	"github.com/recychain/recychain/cmd/cli/evidence"
	"github.com/recychain/recychain/cmd/cli/output"
	"github.com/recychain/recychain/internal/models"
)

// InitAssets registers the asset lifecycle commands on the root command.
func InitAssets(rootCmd *cobra.Command) {
	assetsCmd := &cobra.Command{
		Use:   "assets",
		Short: "Manage tracked assets",
	}

	assetsCmd.AddCommand(
		registerAssetCmd(),
		listAssetsCmd(),
		getAssetCmd(),
		historyCmd(),
		sanitizeCmd(),
		recycleCmd(),
		transferCmd(),
		importAssetsCmd(),
		summaryCmd(),
	)

	rootCmd.AddCommand(assetsCmd)
}

func registerAssetCmd() *cobra.Command {
	var serial string
	var model string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new asset",
		Run: func(cmd *cobra.Command, args []string) {
			token, ok := loadToken()
			if !ok {
				return
			}

			payload := map[string]string{
				"serial_number": serial,
				"model":         model,
			}

			var asset models.Asset
			if err := postJSON(token, "/v1/assets", payload, &asset); err != nil {
				fmt.Println(err)
				return
			}
			printJSON(asset)
		},
	}

	cmd.Flags().StringVar(&serial, "serial", "", "Device serial number")
	cmd.Flags().StringVar(&model, "model", "", "Device model")

	return cmd
}

func listAssetsCmd() *cobra.Command {
	var status string
	var limit int
	var offset int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List assets",
		Run: func(cmd *cobra.Command, args []string) {
			token, ok := loadToken()
			if !ok {
				return
			}

			q := url.Values{}
			if status != "" {
				q.Set("status", status)
			}
			q.Set("limit", strconv.Itoa(limit))
			q.Set("offset", strconv.Itoa(offset))

			var assets []models.Asset
			if err := getJSON(token, "/v1/assets?"+q.Encode(), &assets); err != nil {
				fmt.Println(err)
				return
			}

			if asJSON {
				printJSON(assets)
				return
			}

			rows := make([][]interface{}, 0, len(assets))
			for _, a := range assets {
				rows = append(rows, []interface{}{a.ID, a.SerialNumber, a.Model, a.Status, a.Owner})
			}
			output.RenderTable([]string{"ID", "Serial", "Model", "Status", "Owner"}, rows)
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by lifecycle status (registered, sanitized, recycled)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "Page offset")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print raw JSON instead of a table")

	return cmd
}

func getAssetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [id]",
		Short: "Show one asset",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			token, ok := loadToken()
			if !ok {
				return
			}

			var asset models.Asset
			if err := getJSON(token, "/v1/assets/"+args[0], &asset); err != nil {
				fmt.Println(err)
				return
			}
			printJSON(asset)
		},
	}
}

func historyCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history [id]",
		Short: "Show an asset's transition trail",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			token, ok := loadToken()
			if !ok {
				return
			}

			var history models.AssetHistory
			if err := getJSON(token, "/v1/assets/"+args[0]+"/history", &history); err != nil {
				fmt.Println(err)
				return
			}

			if asJSON {
				printJSON(history)
				return
			}

			fmt.Printf("Asset %d (%s) is %s\n", history.Asset.ID, history.Asset.SerialNumber, history.Asset.Status)
			rows := make([][]interface{}, 0, len(history.Transitions))
			for _, tr := range history.Transitions {
				rows = append(rows, []interface{}{tr.Kind, string(tr.FromStatus), string(tr.ToStatus), tr.Actor, tr.EvidenceRef, tr.Confirmed})
			}
			output.RenderTable([]string{"Kind", "From", "To", "Actor", "Evidence", "Confirmed"}, rows)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print raw JSON instead of a table")

	return cmd
}

func sanitizeCmd() *cobra.Command {
	var evidenceRef string
	var file string

	cmd := &cobra.Command{
		Use:   "sanitize [id]",
		Short: "Record a sanitization for an asset",
		Long:  "Advance an asset to Sanitized, binding wipe evidence by reference or by uploading a file.",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			token, ok := loadToken()
			if !ok {
				return
			}

			ref := evidenceRef
			if file != "" {
				uploaded, err := evidence.Upload(token, file)
				if err != nil {
					fmt.Println(err)
					return
				}
				ref = uploaded
			}

			var receipt models.TransitionReceipt
			if err := postJSON(token, "/v1/assets/"+args[0]+"/sanitize", map[string]string{"evidence_ref": ref}, &receipt); err != nil {
				fmt.Println(err)
				return
			}
			printJSON(receipt)
		},
	}

	cmd.Flags().StringVar(&evidenceRef, "evidence-ref", "", "Reference to already-stored evidence")
	cmd.Flags().StringVar(&file, "file", "", "Evidence file to upload before sanitizing")

	return cmd
}

func recycleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recycle [id]",
		Short: "Mark a sanitized asset as recycled",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			token, ok := loadToken()
			if !ok {
				return
			}

			var receipt models.TransitionReceipt
			if err := postJSON(token, "/v1/assets/"+args[0]+"/recycle", nil, &receipt); err != nil {
				fmt.Println(err)
				return
			}
			printJSON(receipt)
		},
	}
}

func transferCmd() *cobra.Command {
	var newOwner string

	cmd := &cobra.Command{
		Use:   "transfer [id]",
		Short: "Transfer asset ownership",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			token, ok := loadToken()
			if !ok {
				return
			}

			if err := postJSON(token, "/v1/assets/"+args[0]+"/transfer", map[string]string{"new_owner": newOwner}, nil); err != nil {
				fmt.Println(err)
				return
			}
			fmt.Println("Ownership transferred")
		},
	}

	cmd.Flags().StringVar(&newOwner, "new-owner", "", "Wallet address of the new owner")

	return cmd
}

func importAssetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import [csv-file]",
		Short: "Bulk-register assets from a CSV file",
		Long:  "Register many assets at once from a CSV file with serial_number,model columns.",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			token, ok := loadToken()
			if !ok {
				return
			}

			f, err := os.Open(args[0])
			if err != nil {
				fmt.Println(err)
				return
			}
			defer f.Close()

			records, err := csv.NewReader(f).ReadAll()
			if err != nil {
				fmt.Println(err)
				return
			}

			type importRow struct {
				SerialNumber string `json:"serial_number"`
				Model        string `json:"model"`
			}
			rows := make([]importRow, 0, len(records))
			for i, rec := range records {
				if i == 0 && len(rec) > 0 && strings.EqualFold(rec[0], "serial_number") {
					continue // header row
				}
				if len(rec) < 2 {
					fmt.Printf("line %d: want serial_number,model\n", i+1)
					return
				}
				rows = append(rows, importRow{SerialNumber: rec[0], Model: rec[1]})
			}

			var result struct {
				Imported int `json:"imported"`
				Failed   int `json:"failed"`
				Results  []struct {
					SerialNumber string `json:"serial_number"`
					AssetID      int64  `json:"asset_id"`
					Error        string `json:"error"`
				} `json:"results"`
			}
			if err := postJSON(token, "/v1/assets/import", rows, &result); err != nil {
				fmt.Println(err)
				return
			}

			fmt.Printf("Imported %d, failed %d\n", result.Imported, result.Failed)
			for _, r := range result.Results {
				if r.Error != "" {
					fmt.Printf("  %s: %s\n", r.SerialNumber, r.Error)
				}
			}
		},
	}
}

func summaryCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show asset counts per lifecycle status",
		Run: func(cmd *cobra.Command, args []string) {
			token, ok := loadToken()
			if !ok {
				return
			}

			var summary models.StatusSummary
			if err := getJSON(token, "/v1/assets/summary", &summary); err != nil {
				fmt.Println(err)
				return
			}

			if asJSON {
				printJSON(summary)
				return
			}

			output.RenderTable([]string{"Status", "Count"}, [][]interface{}{
				{"Registered", summary.Registered},
				{"Sanitized", summary.Sanitized},
				{"Recycled", summary.Recycled},
				{"Total", summary.Total},
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print raw JSON instead of a table")

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
	return do(req, out)
}

// postJSON performs an authenticated POST with a JSON payload and decodes the
// response into out. Both payload and out may be nil.
func postJSON(token, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest("POST", config.APIURL()+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return do(req, out)
}

func do(req *http.Request, out any) error {
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}
	if out != nil && len(body) > 0 {
		return json.Unmarshal(body, out)
	}
	return nil
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}
