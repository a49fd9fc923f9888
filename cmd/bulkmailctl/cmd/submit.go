package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var (
	submitFile       string
	submitRecipients []string
	submitSubject    string
	submitBody       string
)

type submitPayload struct {
	Recipients      []string                     `json:"recipients"`
	Subject         string                       `json:"subject"`
	Body            string                       `json:"body"`
	Defaults        map[string]string            `json:"defaults,omitempty"`
	Personalization map[string]map[string]string `json:"personalization,omitempty"`
}

// submitCmd represents the submit command
var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a batch of mail for delivery",
	Long: `Submit a batch request to the BulkMail API. The batch is either read
from a JSON file (--file) or assembled from the --to/--subject/--body flags.

The file uses the same shape as the API:

  {
    "recipients": ["e1@example.com", "e2@example.com"],
    "subject": "Hi {name}",
    "body": "Hello {name}!",
    "defaults": {"name": "friend"},
    "personalization": {"e1@example.com": {"name": "Alice"}}
  }`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var payload submitPayload
		if submitFile != "" {
			b, err := os.ReadFile(submitFile)
			if err != nil {
				return fmt.Errorf("read batch file: %w", err)
			}
			if err := json.Unmarshal(b, &payload); err != nil {
				return fmt.Errorf("parse batch file: %w", err)
			}
		} else {
			if len(submitRecipients) == 0 {
				return fmt.Errorf("either --file or at least one --to is required")
			}
			payload = submitPayload{
				Recipients: submitRecipients,
				Subject:    submitSubject,
				Body:       submitBody,
			}
		}

		status, body, err := doRequest(http.MethodPost, "/v1/batches", payload)
		if err != nil {
			return fmt.Errorf("submit failed: %w", err)
		}
		if status != http.StatusAccepted {
			return apiError(status, body)
		}

		if outputJSON {
			printJSON(body)
			return nil
		}
		var resp struct {
			BatchID string `json:"batch_id"`
		}
		if err := json.Unmarshal(body, &resp); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
		fmt.Printf("Batch accepted: %s\n", resp.BatchID)
		fmt.Printf("Poll with: bulkmailctl status %s\n", resp.BatchID)
		return nil
	},
}

func init() {
	submitCmd.Flags().StringVarP(&submitFile, "file", "f", "", "JSON file with the batch request")
	submitCmd.Flags().StringArrayVar(&submitRecipients, "to", nil, "recipient address (repeatable)")
	submitCmd.Flags().StringVar(&submitSubject, "subject", "", "mail subject template")
	submitCmd.Flags().StringVar(&submitBody, "body", "", "mail body template")
	rootCmd.AddCommand(submitCmd)
}
