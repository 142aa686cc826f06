package cli

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"dynaquery/internal/api"
	"dynaquery/internal/domain"
	"dynaquery/internal/service/query"
)

// askResult mirrors the pipeline result returned by POST /v1/queries.
type askResult struct {
	RunID       string                  `json:"run_id"`
	Success     bool                    `json:"success"`
	FailedStage string                  `json:"failed_stage,omitempty"`
	Error       string                  `json:"error,omitempty"`
	Errors      []string                `json:"errors,omitempty"`
	Explanation string                  `json:"explanation,omitempty"`
	SQL         string                  `json:"sql,omitempty"`
	Execution   *askExecution           `json:"execution,omitempty"`
	Report      *domain.FormattedReport `json:"report,omitempty"`
	Delivery    *query.DeliveryOutcome  `json:"delivery,omitempty"`
}

type askExecution struct {
	RowCount        int   `json:"row_count"`
	Truncated       bool  `json:"truncated"`
	ExecutionTimeMs int64 `json:"execution_time_ms"`
}

func newAskCmd(client *Client) *cobra.Command {
	var (
		format    string
		deliverTo string
	)

	cmd := &cobra.Command{
		Use:   "ask <question...>",
		Short: "Ask a question of your store's data",
		Example: `  dq ask how many orders did we ship last week
  dq ask --format csv "top 10 customers by revenue" > top.csv
  dq ask --deliver-to ops@example.com "refunds this month"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return fmt.Errorf("question must not be empty")
			}

			var raw string
			err := withSpinner("Generating and running query...", func() error {
				return client.Do(cmd.Context(), http.MethodPost, "/v1/queries", nil, api.RunQueryRequest{
					Question:  question,
					Format:    format,
					DeliverTo: deliverTo,
				}, &raw, func(int) bool { return true })
			})
			if err != nil {
				return err
			}

			res, err := decodeAskResult(raw)
			if err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				if err := PrintJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
			} else {
				printAskResult(cmd, res)
			}
			if !res.Success {
				return fmt.Errorf("query failed at %s stage: %s", res.FailedStage, res.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "display", "Report format (display, voice, email, csv, summary)")
	cmd.Flags().StringVar(&deliverTo, "deliver-to", "", "Email the report to this address")
	return cmd
}

// decodeAskResult parses a pipeline result, or the API error the server
// sent instead of one.
func decodeAskResult(raw string) (*askResult, error) {
	var res askResult
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if res.RunID != "" {
		return &res, nil
	}
	apiErr := &APIError{}
	if err := json.Unmarshal([]byte(raw), apiErr); err != nil || apiErr.Code == 0 {
		return nil, errors.New("unexpected response from server")
	}
	apiErr.HTTPStatus = apiErr.Code
	return nil, apiErr
}

func printAskResult(cmd *cobra.Command, res *askResult) {
	out := cmd.OutOrStdout()
	if !res.Success {
		fmt.Fprintf(out, "Query failed at %s stage: %s\n", res.FailedStage, res.Error)
		for _, e := range res.Errors {
			fmt.Fprintf(out, "  - %s\n", e)
		}
		return
	}

	rep := res.Report
	if rep == nil {
		return
	}
	// csv goes to stdout untouched so it can be redirected to a file.
	if rep.Format == domain.FormatCSV {
		fmt.Fprint(out, rep.Text)
		return
	}

	if res.Explanation != "" {
		fmt.Fprintln(out, res.Explanation)
	}
	fmt.Fprintln(out, pterm.Gray(res.SQL))
	fmt.Fprintln(out)

	switch {
	case rep.Table != nil && len(rep.Table.Headers) > 0:
		if err := printTable(out, rep.Table.Headers, rep.Table.Rows); err != nil {
			fmt.Fprintln(out, rep.Summary)
		}
	case rep.Text != "":
		fmt.Fprintln(out, rep.Text)
	}
	fmt.Fprintln(out, rep.Summary)

	if res.Execution != nil && res.Execution.Truncated {
		fmt.Fprintf(out, "Results were capped at %d rows.\n", res.Execution.RowCount)
	}
	if d := res.Delivery; d != nil {
		if d.Delivered {
			fmt.Fprintf(out, "Report emailed to %s.\n", d.To)
		} else {
			fmt.Fprintf(out, "Email delivery to %s failed: %s\n", d.To, d.Error)
		}
	}
}
