package cli

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"dynaquery/internal/api"
)

func newHistoryCmd(client *Client) *cobra.Command {
	var (
		status    string
		since     time.Duration
		limit     int
		pageToken string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List your recent query runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			q := url.Values{}
			if status != "" {
				q.Set("status", status)
			}
			if since > 0 {
				q.Set("from", time.Now().Add(-since).UTC().Format(time.RFC3339))
			}
			if limit > 0 {
				q.Set("max_results", strconv.Itoa(limit))
			}
			if pageToken != "" {
				q.Set("page_token", pageToken)
			}

			var res api.HistoryResponse
			if err := client.Do(cmd.Context(), http.MethodGet, "/v1/queries/history", q, nil, &res, nil); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(out, res)
			}
			if len(res.Runs) == 0 {
				fmt.Fprintln(out, "No query runs found.")
				return nil
			}

			rows := make([][]string, 0, len(res.Runs))
			for _, r := range res.Runs {
				stage, rowCount := "", ""
				if r.FailedStage != nil {
					stage = *r.FailedStage
				}
				if r.RowCount != nil {
					rowCount = strconv.FormatInt(*r.RowCount, 10)
				}
				rows = append(rows, []string{
					shortID(r.ID),
					r.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					r.Status,
					stage,
					rowCount,
					truncate(r.Request, 48),
				})
			}
			if err := printTable(out, []string{"ID", "CREATED", "STATUS", "FAILED STAGE", "ROWS", "REQUEST"}, rows); err != nil {
				return err
			}
			fmt.Fprintf(out, "%d of %d run(s)\n", len(res.Runs), res.Total)
			if res.NextPageToken != "" {
				fmt.Fprintf(out, "More results: --page-token %s\n", res.NextPageToken)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (SUCCEEDED, FAILED)")
	cmd.Flags().DurationVar(&since, "since", 0, "Only runs newer than this (e.g. 24h)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list")
	cmd.Flags().StringVar(&pageToken, "page-token", "", "Page token from a previous listing")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
