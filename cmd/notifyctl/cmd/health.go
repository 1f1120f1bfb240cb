package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// healthCmd represents the health command
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the health of the notification service",
	Long:  `Check the health status of the notification service and its database.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := makeHTTPRequest("GET", "/healthz", nil)
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
		defer resp.Body.Close()

		var status struct {
			Status        string `json:"status"`
			Database      bool   `json:"database"`
			Notifications *struct {
				Total   int64 `json:"total"`
				Pending int64 `json:"pending"`
				Sent    int64 `json:"sent"`
				Error   int64 `json:"error"`
			} `json:"notifications"`
		}
		data, _ := io.ReadAll(resp.Body)
		_ = json.Unmarshal(data, &status)

		if outputJSON {
			printOutput(json.RawMessage(data))
			return nil
		}

		if resp.StatusCode == 200 && status.Status == "UP" {
			fmt.Println("✓ Service is healthy")
		} else {
			fmt.Printf("✗ Service is unhealthy (HTTP %d, status %s)\n", resp.StatusCode, status.Status)
		}
		if status.Notifications != nil {
			fmt.Printf("  Records: total=%d pending=%d sent=%d error=%d\n",
				status.Notifications.Total, status.Notifications.Pending,
				status.Notifications.Sent, status.Notifications.Error)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
