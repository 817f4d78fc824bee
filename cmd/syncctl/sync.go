package main

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show scheduler status and the sync backlog",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := newClient()

	var status struct {
		Running       bool     `json:"running"`
		ActiveIDs     []string `json:"activeIds"`
		MaxConcurrent int      `json:"maxConcurrent"`
		DueCount      int64    `json:"dueCount"`
		NextSyncAt    string   `json:"nextSyncAt"`
	}
	if err := client.getJSON("/api/sync/v1alpha1/status", &status); err != nil {
		return fmt.Errorf("server unreachable: %w", err)
	}

	if outputFmt != "table" {
		return printOutput(status)
	}

	nextSync := status.NextSyncAt
	if nextSync == "" {
		nextSync = "-"
	}

	headers := []string{"Field", "Value"}
	rows := [][]string{
		{"Running", strconv.FormatBool(status.Running)},
		{"Active syncs", fmt.Sprintf("%d/%d", len(status.ActiveIDs), status.MaxConcurrent)},
		{"Due", strconv.FormatInt(status.DueCount, 10)},
		{"Next sync at", nextSync},
	}
	if len(status.ActiveIDs) > 0 {
		rows = append(rows, []string{"Active IDs", strings.Join(status.ActiveIDs, ", ")})
	}

	printTable(headers, rows)
	return nil
}

var triggerCmd = &cobra.Command{
	Use:   "trigger <integration-id>",
	Short: "Trigger an immediate sync for an integration",
	Args:  cobra.ExactArgs(1),
	RunE:  runTrigger,
}

func runTrigger(cmd *cobra.Command, args []string) error {
	client := newClient()

	var result struct {
		Queued bool   `json:"queued"`
		Reason string `json:"reason"`
	}
	path := fmt.Sprintf("/api/sync/v1alpha1/integrations/%s:trigger", url.PathEscape(args[0]))
	if err := client.postJSON(path, nil, &result); err != nil {
		return err
	}

	if outputFmt != "table" {
		return printOutput(result)
	}

	if result.Queued {
		fmt.Printf("Sync queued for integration %s\n", args[0])
	} else {
		fmt.Printf("Sync not queued: %s\n", result.Reason)
	}
	return nil
}

var testCmd = &cobra.Command{
	Use:   "test <integration-id>",
	Short: "Test an integration's vendor connection",
	RunE:  runTest,
	Args:  cobra.ExactArgs(1),
}

func runTest(cmd *cobra.Command, args []string) error {
	client := newClient()

	var result struct {
		Success   bool   `json:"success"`
		LatencyMs int64  `json:"latencyMs"`
		Error     string `json:"error"`
	}
	path := fmt.Sprintf("/api/sync/v1alpha1/integrations/%s:test", url.PathEscape(args[0]))
	if err := client.postJSON(path, nil, &result); err != nil {
		return err
	}

	if outputFmt != "table" {
		return printOutput(result)
	}

	if result.Success {
		fmt.Printf("Connection OK (%d ms)\n", result.LatencyMs)
	} else {
		fmt.Printf("Connection FAILED: %s\n", result.Error)
	}
	return nil
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect <integration-id>",
	Short: "Disconnect an integration and discard its credentials",
	Args:  cobra.ExactArgs(1),
	RunE:  runDisconnect,
}

func runDisconnect(cmd *cobra.Command, args []string) error {
	client := newClient()

	var result map[string]string
	path := fmt.Sprintf("/api/sync/v1alpha1/integrations/%s:disconnect", url.PathEscape(args[0]))
	if err := client.postJSON(path, nil, &result); err != nil {
		return err
	}

	if outputFmt != "table" {
		return printOutput(result)
	}

	fmt.Printf("Integration %s disconnected\n", args[0])
	return nil
}

var (
	logsPageSize  int
	logsPageToken string
)

var logsCmd = &cobra.Command{
	Use:   "logs <integration-id>",
	Short: "List sync logs for an integration, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogs,
}

func init() {
	logsCmd.Flags().IntVar(&logsPageSize, "page-size", 20, "Number of logs per page")
	logsCmd.Flags().StringVar(&logsPageToken, "page-token", "", "Continuation token from a previous page")
}

func runLogs(cmd *cobra.Command, args []string) error {
	client := newClient()

	query := url.Values{}
	query.Set("pageSize", strconv.Itoa(logsPageSize))
	if logsPageToken != "" {
		query.Set("pageToken", logsPageToken)
	}

	var resp struct {
		Logs []struct {
			ID             string `json:"id"`
			Operation      string `json:"operation"`
			Status         string `json:"status"`
			ItemsProcessed int    `json:"itemsProcessed"`
			ItemsFailed    int    `json:"itemsFailed"`
			StartedAt      string `json:"startedAt"`
			DurationMs     int64  `json:"durationMs"`
		} `json:"logs"`
		NextPageToken string `json:"nextPageToken"`
	}
	path := fmt.Sprintf("/api/sync/v1alpha1/integrations/%s/logs?%s", url.PathEscape(args[0]), query.Encode())
	if err := client.getJSON(path, &resp); err != nil {
		return err
	}

	if outputFmt != "table" {
		return printOutput(resp)
	}

	headers := []string{"ID", "Operation", "Status", "Processed", "Failed", "Started", "Duration"}
	rows := make([][]string, len(resp.Logs))
	for i, l := range resp.Logs {
		rows[i] = []string{
			truncate(l.ID, 12),
			l.Operation,
			l.Status,
			strconv.Itoa(l.ItemsProcessed),
			strconv.Itoa(l.ItemsFailed),
			l.StartedAt,
			fmt.Sprintf("%dms", l.DurationMs),
		}
	}
	printTable(headers, rows)

	if resp.NextPageToken != "" {
		fmt.Printf("\nNext page: --page-token %s\n", resp.NextPageToken)
	}
	return nil
}
