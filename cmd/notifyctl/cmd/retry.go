package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

// retryCmd represents the retry command
var retryCmd = &cobra.Command{
	Use:   "retry [record-id]",
	Short: "Retry a failed delivery record",
	Long: `Retry a delivery record that is in the error state. The record is
reconstructed from its stored payload snapshot and resent on its channel.

Example:
  notifyctl retry 1234`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]

		resp, err := makeHTTPRequest("POST", "/v1/notifications/"+id+"/retry", nil)
		if err != nil {
			return fmt.Errorf("failed to retry record: %w", err)
		}
		defer resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK:
			fmt.Printf("✓ Record %s retried successfully\n", id)
			return nil
		case http.StatusNotFound:
			return fmt.Errorf("record %s not found", id)
		case http.StatusConflict:
			return fmt.Errorf("record %s is not in error state", id)
		case http.StatusUnprocessableEntity:
			return fmt.Errorf("record %s has a malformed payload snapshot: %s", id, readErrorBody(resp))
		default:
			return fmt.Errorf("retry failed (%d): %s", resp.StatusCode, readErrorBody(resp))
		}
	},
}

func init() {
	rootCmd.AddCommand(retryCmd)
}
