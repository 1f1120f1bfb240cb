package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/spf13/cobra"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show dispatch statistics",
	Long: `Show delivery statistics for the recent period: totals by status,
success rate, and breakdowns by channel, event type and day.

Example:
  notifyctl stats --days 30`,
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")

		resp, err := makeHTTPRequest("GET", fmt.Sprintf("/v1/statistics?days=%d", days), nil)
		if err != nil {
			return fmt.Errorf("failed to get statistics: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, readErrorBody(resp))
		}

		var stats struct {
			PeriodDays  int              `json:"period_days"`
			Total       int64            `json:"total"`
			Sent        int64            `json:"sent"`
			Error       int64            `json:"error"`
			Pending     int64            `json:"pending"`
			SuccessRate string           `json:"success_rate"`
			ByChannel   map[string]int64 `json:"by_channel"`
			ByEventType map[string]int64 `json:"by_event_type"`
			ByDay       map[string]int64 `json:"by_day"`
		}
		data, _ := io.ReadAll(resp.Body)
		if err := json.Unmarshal(data, &stats); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}

		if outputJSON {
			printOutput(stats)
			return nil
		}

		fmt.Printf("Statistics for the last %d days:\n", stats.PeriodDays)
		fmt.Printf("  Total: %d\n", stats.Total)
		fmt.Printf("  Sent: %d\n", stats.Sent)
		fmt.Printf("  Error: %d\n", stats.Error)
		fmt.Printf("  Pending: %d\n", stats.Pending)
		fmt.Printf("  Success rate: %s\n", stats.SuccessRate)

		if len(stats.ByChannel) > 0 {
			fmt.Println("\n  By channel:")
			printSorted(stats.ByChannel)
		}
		if len(stats.ByEventType) > 0 {
			fmt.Println("\n  By event type:")
			printSorted(stats.ByEventType)
		}
		if len(stats.ByDay) > 0 {
			fmt.Println("\n  By day:")
			printSorted(stats.ByDay)
		}
		return nil
	},
}

func printSorted(m map[string]int64) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("    %s: %d\n", k, m[k])
	}
}

func init() {
	statsCmd.Flags().Int("days", 7, "statistics window in days")

	rootCmd.AddCommand(statsCmd)
}
