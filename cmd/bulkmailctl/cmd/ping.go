package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

// pingCmd represents the ping command
var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Ping the BulkMail service",
	Long:  `Send a health check request to verify the BulkMail API is running and its result store is reachable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		status, body, err := doRequest(http.MethodGet, "/healthz", nil)
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}
		if outputJSON {
			printJSON(body)
			return nil
		}
		if status != http.StatusOK {
			return apiError(status, body)
		}
		fmt.Println("Pong! Service is running")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pingCmd)
}
