package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

// record mirrors the API's delivery record payload.
type record struct {
	ID           int64  `json:"id"`
	UserID       string `json:"user_id"`
	EventType    string `json:"event_type"`
	Channel      string `json:"channel"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	CreatedAt    string `json:"created_at"`
	SentAt       string `json:"sent_at,omitempty"`
}

// getCmd represents the get command
var getCmd = &cobra.Command{
	Use:   "get [record-id]",
	Short: "Get a delivery record",
	Long: `Fetch one delivery record by id.

Example:
  notifyctl get 1234`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]

		resp, err := makeHTTPRequest("GET", "/v1/notifications/"+id, nil)
		if err != nil {
			return fmt.Errorf("failed to get record: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("record %s not found", id)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, readErrorBody(resp))
		}

		var rec record
		data, _ := io.ReadAll(resp.Body)
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}

		if outputJSON {
			printOutput(rec)
		} else {
			printRecord(rec)
		}
		return nil
	},
}

func printRecord(rec record) {
	fmt.Printf("Record %d:\n", rec.ID)
	fmt.Printf("  User: %s\n", rec.UserID)
	fmt.Printf("  Event type: %s\n", rec.EventType)
	fmt.Printf("  Channel: %s\n", rec.Channel)
	fmt.Printf("  Status: %s\n", rec.Status)
	if rec.ErrorMessage != "" {
		fmt.Printf("  Error: %s\n", rec.ErrorMessage)
	}
	fmt.Printf("  Created: %s\n", rec.CreatedAt)
	if rec.SentAt != "" {
		fmt.Printf("  Sent: %s\n", rec.SentAt)
	}
}

func init() {
	rootCmd.AddCommand(getCmd)
}
