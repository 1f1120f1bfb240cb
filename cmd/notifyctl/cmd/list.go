package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List delivery records",
	Long: `List delivery records with optional filters.

Example:
  notifyctl list --status error --channel email --limit 50`,
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		for flag, param := range map[string]string{
			"status":     "status",
			"channel":    "channel",
			"event-type": "event_type",
			"start":      "start",
			"end":        "end",
			"limit":      "limit",
			"offset":     "offset",
		} {
			if v, _ := cmd.Flags().GetString(flag); v != "" {
				q.Set(param, v)
			}
		}
		userID, _ := cmd.Flags().GetString("user")

		path := "/v1/notifications"
		if userID != "" {
			path = "/v1/users/" + url.PathEscape(userID) + "/notifications"
		}
		if len(q) > 0 {
			path += "?" + q.Encode()
		}

		resp, err := makeHTTPRequest("GET", path, nil)
		if err != nil {
			return fmt.Errorf("failed to list records: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, readErrorBody(resp))
		}

		var result struct {
			Total   int64    `json:"total"`
			Records []record `json:"records"`
		}
		data, _ := io.ReadAll(resp.Body)
		if err := json.Unmarshal(data, &result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}

		if outputJSON {
			printOutput(result)
			return nil
		}

		if len(result.Records) == 0 {
			fmt.Println("No records found")
			return nil
		}
		if result.Total > 0 {
			fmt.Printf("Records (%d total):\n", result.Total)
		} else {
			fmt.Println("Records:")
		}
		for _, rec := range result.Records {
			line := fmt.Sprintf("  %d  %-10s %-9s %-24s %s", rec.ID, rec.Channel, rec.Status, rec.EventType, rec.UserID)
			if rec.ErrorMessage != "" {
				line += "  (" + rec.ErrorMessage + ")"
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().String("status", "", "filter by status (pending|sent|error|retrying)")
	listCmd.Flags().String("channel", "", "filter by channel")
	listCmd.Flags().String("event-type", "", "filter by event type")
	listCmd.Flags().String("user", "", "list records for one user")
	listCmd.Flags().String("start", "", "only records created after this RFC3339 timestamp")
	listCmd.Flags().String("end", "", "only records created before this RFC3339 timestamp")
	listCmd.Flags().String("limit", "", "page size")
	listCmd.Flags().String("offset", "", "page offset")

	rootCmd.AddCommand(listCmd)
}
