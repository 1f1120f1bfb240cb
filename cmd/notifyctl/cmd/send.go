package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send [event-type]",
	Short: "Queue a notification request",
	Long: `Queue a notification request for dispatch. Recipients are resolved by
the worker according to the recipient types.

Example:
  notifyctl send PROJECT_READY_REVIEW --entity-id proj-42 \
    --channels email,whatsapp --recipients project_owner,admins \
    --context '{"projectTitle":"Website Redesign"}'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eventType := args[0]

		entityType, _ := cmd.Flags().GetString("entity-type")
		entityID, _ := cmd.Flags().GetString("entity-id")
		channels, _ := cmd.Flags().GetString("channels")
		recipients, _ := cmd.Flags().GetString("recipients")
		contextJSON, _ := cmd.Flags().GetString("context")

		body := map[string]any{
			"event_type":      eventType,
			"entity_type":     entityType,
			"entity_id":       entityID,
			"channels":        splitList(channels),
			"recipient_types": splitList(recipients),
		}
		if contextJSON != "" {
			var ctx map[string]any
			if err := json.Unmarshal([]byte(contextJSON), &ctx); err != nil {
				return fmt.Errorf("invalid context JSON: %w", err)
			}
			body["context"] = ctx
		}

		resp, err := makeHTTPRequest("POST", "/v1/notifications", body)
		if err != nil {
			return fmt.Errorf("failed to send notification: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusAccepted {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, readErrorBody(resp))
		}

		var result map[string]any
		data, _ := io.ReadAll(resp.Body)
		_ = json.Unmarshal(data, &result)

		if outputJSON {
			printOutput(result)
		} else {
			fmt.Printf("✓ Notification queued (event type %s)\n", eventType)
		}
		return nil
	},
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func init() {
	sendCmd.Flags().String("entity-type", "project", "entity type the event refers to")
	sendCmd.Flags().String("entity-id", "", "entity id the event refers to")
	sendCmd.Flags().String("channels", "email", "comma-separated channels (email,whatsapp,sms,in_app)")
	sendCmd.Flags().String("recipients", "project_owner", "comma-separated recipient types")
	sendCmd.Flags().String("context", "", "event context as a JSON object")
	_ = sendCmd.MarkFlagRequired("entity-id")

	rootCmd.AddCommand(sendCmd)
}
