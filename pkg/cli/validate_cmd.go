package cli

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"dynaquery/internal/api"
	"dynaquery/internal/domain"
)

func newValidateCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [sql]",
		Short: "Check SQL against the server's query rules without running it",
		Long: "Sends SQL to the validator and prints the statement that would be executed for your tenant. " +
			"Reads from stdin when no argument is given.",
		Example: `  dq validate "SELECT id, total FROM orders"
  cat query.sql | dq validate`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sql, err := readSQL(cmd, args)
			if err != nil {
				return err
			}

			var res domain.ValidationResult
			err = client.Do(cmd.Context(), http.MethodPost, "/v1/queries/validate", nil,
				api.ValidateQueryRequest{SQL: sql}, &res,
				func(status int) bool { return status == http.StatusUnprocessableEntity })
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if getOutputFormat(cmd) == "json" {
				if err := PrintJSON(out, res); err != nil {
					return err
				}
			} else if res.Valid {
				fmt.Fprintln(out, "Query is valid. It will run as:")
				fmt.Fprintln(out, "  "+res.SQL)
			} else {
				fmt.Fprintf(out, "Query was rejected with %d error(s):\n", len(res.Errors))
				for _, e := range res.Errors {
					fmt.Fprintf(out, "  - %s\n", e)
				}
			}
			if !res.Valid {
				return fmt.Errorf("query rejected")
			}
			return nil
		},
	}
}

func readSQL(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return strings.TrimSpace(args[0]), nil
	}
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && isTerminal(f) {
		return "", fmt.Errorf("provide SQL as an argument or on stdin")
	}
	data, err := io.ReadAll(io.LimitReader(in, 64<<10))
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	sql := strings.TrimSpace(string(data))
	if sql == "" {
		return "", fmt.Errorf("no SQL given")
	}
	return sql, nil
}
