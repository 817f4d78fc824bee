package main

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Control health scores",
}

var healthGetCmd = &cobra.Command{
	Use:   "get <control-id>",
	Short: "Show a control's current health score",
	Args:  cobra.ExactArgs(1),
	RunE:  runHealthGet,
}

var healthReviewCmd = &cobra.Command{
	Use:   "review <control-id>",
	Short: "Record a review of a control and recompute its score",
	Args:  cobra.ExactArgs(1),
	RunE:  runHealthReview,
}

var healthRefreshCmd = &cobra.Command{
	Use:   "refresh <control-id>",
	Short: "Recompute and log a control's health score",
	Args:  cobra.ExactArgs(1),
	RunE:  runHealthRefresh,
}

var healthHistoryCmd = &cobra.Command{
	Use:   "history <control-id>",
	Short: "Show a control's score history, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runHealthHistory,
}

var (
	reviewReviewer string
	historyLimit   int
)

func init() {
	healthReviewCmd.Flags().StringVar(&reviewReviewer, "reviewer", "", "Name of the reviewer (required)")
	_ = healthReviewCmd.MarkFlagRequired("reviewer")
	healthHistoryCmd.Flags().IntVar(&historyLimit, "limit", 50, "Max history entries to return")

	healthCmd.AddCommand(healthGetCmd)
	healthCmd.AddCommand(healthReviewCmd)
	healthCmd.AddCommand(healthRefreshCmd)
	healthCmd.AddCommand(healthHistoryCmd)
}

type healthResult struct {
	ControlID    string `json:"controlId"`
	OverallScore int    `json:"overallScore"`
	Factors      struct {
		Verification float64 `json:"verification"`
		Freshness    float64 `json:"freshness"`
		Coverage     float64 `json:"coverage"`
		Review       float64 `json:"review"`
	} `json:"factors"`
	Recommendations []string `json:"recommendations"`
}

func runHealthGet(cmd *cobra.Command, args []string) error {
	client := newClient()

	var result healthResult
	path := fmt.Sprintf("/api/health/v1alpha1/controls/%s", url.PathEscape(args[0]))
	if err := client.getJSON(path, &result); err != nil {
		return err
	}
	return printHealthResult(result)
}

func runHealthReview(cmd *cobra.Command, args []string) error {
	client := newClient()

	var result healthResult
	path := fmt.Sprintf("/api/health/v1alpha1/controls/%s:review", url.PathEscape(args[0]))
	if err := client.postJSON(path, map[string]string{"reviewer": reviewReviewer}, &result); err != nil {
		return err
	}
	return printHealthResult(result)
}

func runHealthRefresh(cmd *cobra.Command, args []string) error {
	client := newClient()

	var result healthResult
	path := fmt.Sprintf("/api/health/v1alpha1/controls/%s:refresh", url.PathEscape(args[0]))
	if err := client.postJSON(path, nil, &result); err != nil {
		return err
	}
	return printHealthResult(result)
}

func printHealthResult(result healthResult) error {
	if outputFmt != "table" {
		return printOutput(result)
	}

	headers := []string{"Factor", "Score"}
	rows := [][]string{
		{"Overall", strconv.Itoa(result.OverallScore)},
		{"Verification", fmt.Sprintf("%.2f", result.Factors.Verification)},
		{"Freshness", fmt.Sprintf("%.2f", result.Factors.Freshness)},
		{"Coverage", fmt.Sprintf("%.2f", result.Factors.Coverage)},
		{"Review", fmt.Sprintf("%.2f", result.Factors.Review)},
	}
	printTable(headers, rows)

	if len(result.Recommendations) > 0 {
		fmt.Println("\nRecommendations:")
		for _, r := range result.Recommendations {
			fmt.Printf("  - %s\n", r)
		}
	}
	return nil
}

func runHealthHistory(cmd *cobra.Command, args []string) error {
	client := newClient()

	var resp struct {
		History []struct {
			ID           string `json:"id"`
			OverallScore int    `json:"overallScore"`
			TriggeredBy  string `json:"triggeredBy"`
			CreatedAt    string `json:"createdAt"`
		} `json:"history"`
	}
	path := fmt.Sprintf("/api/health/v1alpha1/controls/%s/history?limit=%d", url.PathEscape(args[0]), historyLimit)
	if err := client.getJSON(path, &resp); err != nil {
		return err
	}

	if outputFmt != "table" {
		return printOutput(resp)
	}

	headers := []string{"ID", "Score", "Triggered By", "At"}
	rows := make([][]string, len(resp.History))
	for i, e := range resp.History {
		rows[i] = []string{
			truncate(e.ID, 12),
			strconv.Itoa(e.OverallScore),
			e.TriggeredBy,
			e.CreatedAt,
		}
	}
	printTable(headers, rows)
	return nil
}
