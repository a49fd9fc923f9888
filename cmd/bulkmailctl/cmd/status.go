package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var (
	statusWatch    bool
	statusInterval time.Duration
)

type batchStatusView struct {
	BatchID    string `json:"batch_id"`
	Recipients []struct {
		Recipient string `json:"recipient"`
		Status    string `json:"status"`
		Error     string `json:"error,omitempty"`
	} `json:"recipients"`
	Pending         int  `json:"pending"`
	Succeeded       int  `json:"succeeded"`
	Failed          int  `json:"failed"`
	OverallComplete bool `json:"overall_complete"`
}

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status <batch-id>",
	Short: "Show delivery status for a batch",
	Long: `Fetch the per-recipient delivery status of a submitted batch.

With --watch the command polls the API until every recipient has reached a
terminal state.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		batchID := args[0]
		for {
			done, err := fetchAndPrint(batchID)
			if err != nil {
				return err
			}
			if !statusWatch || done {
				return nil
			}
			time.Sleep(statusInterval)
		}
	},
}

func fetchAndPrint(batchID string) (bool, error) {
	status, body, err := doRequest(http.MethodGet, "/v1/batches/"+batchID, nil)
	if err != nil {
		return false, fmt.Errorf("status request failed: %w", err)
	}
	if status != http.StatusOK {
		return false, apiError(status, body)
	}

	if outputJSON {
		printJSON(body)
		var v struct {
			OverallComplete bool `json:"overall_complete"`
		}
		_ = json.Unmarshal(body, &v)
		return v.OverallComplete, nil
	}

	var v batchStatusView
	if err := json.Unmarshal(body, &v); err != nil {
		return false, fmt.Errorf("parse response: %w", err)
	}

	fmt.Printf("Batch %s: %d succeeded, %d failed, %d pending\n",
		v.BatchID, v.Succeeded, v.Failed, v.Pending)
	for _, r := range v.Recipients {
		line := fmt.Sprintf("  %-10s %s", r.Status, r.Recipient)
		if r.Error != "" {
			line += "  (" + r.Error + ")"
		}
		fmt.Println(line)
	}
	if v.OverallComplete {
		fmt.Println("Batch complete")
	}
	return v.OverallComplete, nil
}

func init() {
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "poll until the batch completes")
	statusCmd.Flags().DurationVar(&statusInterval, "interval", 2*time.Second, "poll interval for --watch")
	rootCmd.AddCommand(statusCmd)
}
