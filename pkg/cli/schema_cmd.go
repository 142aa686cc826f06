package cli

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"dynaquery/internal/domain"
)

func newSchemaCmd(client *Client) *cobra.Command {
	var prompt bool

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Show the tables and columns available to your tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if prompt {
				var text string
				if err := client.Do(cmd.Context(), http.MethodGet, "/v1/schema", url.Values{"format": {"prompt"}}, nil, &text, nil); err != nil {
					return err
				}
				fmt.Fprint(out, text)
				return nil
			}

			var snap domain.SchemaSnapshot
			if err := client.Do(cmd.Context(), http.MethodGet, "/v1/schema", nil, nil, &snap, nil); err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(out, snap)
			}

			var rows [][]string
			for _, name := range snap.TableNames() {
				for _, c := range snap.Tables[name].Columns {
					nullable := "no"
					if c.Nullable {
						nullable = "yes"
					}
					rows = append(rows, []string{name, c.Name, strings.ToUpper(c.Type), nullable})
				}
			}
			if len(rows) == 0 {
				fmt.Fprintln(out, "No tables are available.")
				return nil
			}
			return printTable(out, []string{"TABLE", "COLUMN", "TYPE", "NULLABLE"}, rows)
		},
	}

	cmd.Flags().BoolVar(&prompt, "prompt", false, "Print the schema text given to the query generator")
	cmd.AddCommand(newSchemaRefreshCmd(client))
	return cmd
}

func newSchemaRefreshCmd(client *Client) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Drop the cached schema so the next query re-reads it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := client.Do(cmd.Context(), http.MethodDelete, "/v1/schema/cache", nil, nil, nil, nil); err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(cmd.OutOrStdout(), map[string]string{"status": "ok"})
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schema cache cleared.")
			return nil
		},
	}
}
