// Package cli implements the dq command-line client for the dynaquery API.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	root := newRootCmd()
	err := root.Execute()
	if err == nil {
		return 0
	}
	if format, _ := root.PersistentFlags().GetString("output"); format == "json" {
		report := struct {
			Error      string `json:"error"`
			HTTPStatus int    `json:"http_status,omitempty"`
			Code       int    `json:"code,omitempty"`
		}{Error: err.Error()}
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			report.HTTPStatus = apiErr.HTTPStatus
			report.Code = apiErr.Code
		}
		_ = PrintJSON(os.Stdout, report)
	} else {
		_, _ = fmt.Fprintf(os.Stderr, "dq: %v\n", err)
	}
	return 1
}

// setting binds a persistent flag to its environment variable and profile
// field. Explicit flags win, then the environment, then the profile.
type setting struct {
	flag    string
	env     string
	target  *string
	profile func(Profile) string
}

func (s setting) resolve(cmd *cobra.Command, p Profile) {
	if cmd.Flags().Changed(s.flag) {
		return
	}
	if v, ok := os.LookupEnv(s.env); ok && v != "" {
		*s.target = v
		return
	}
	if v := s.profile(p); v != "" {
		*s.target = v
	}
}

func newRootCmd() *cobra.Command {
	var host, token, tenant, output, profile string
	client := NewClient("", "", "")

	settings := []setting{
		{"host", "DQ_HOST", &host, func(p Profile) string { return p.Host }},
		{"token", "DQ_TOKEN", &token, func(p Profile) string { return p.Token }},
		{"tenant", "DQ_TENANT", &tenant, func(p Profile) string { return p.Tenant }},
		{"output", "DQ_OUTPUT", &output, func(p Profile) string { return p.Output }},
	}

	root := &cobra.Command{
		Use:           "dq",
		Short:         "Ask questions of store data in plain language",
		Long:          "dq talks to a dynaquery server: it turns questions into tenant-scoped SQL, runs them and prints the report.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			profiles, err := loadProfiles()
			if err != nil {
				return err
			}
			active := profiles.Resolve(profile)
			for _, s := range settings {
				s.resolve(cmd, active)
			}
			if err := validateOutputFormat(output); err != nil {
				return err
			}
			client.BaseURL, client.Token, client.Tenant = host, token, tenant
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&host, "host", "http://localhost:8080", "dynaquery server URL")
	pf.StringVar(&token, "token", "", "Bearer token")
	pf.StringVar(&tenant, "tenant", "", "Tenant id sent as X-Tenant-ID to development servers")
	pf.StringVarP(&output, "output", "o", "table", "Output format: table or json")
	pf.StringVarP(&profile, "profile", "p", "", "Profile from the config file")

	root.AddCommand(
		newAskCmd(client),
		newValidateCmd(client),
		newSchemaCmd(client),
		newHistoryCmd(client),
		newConfigCmd(),
		newAuthCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the CLI version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(cmd.OutOrStdout(), struct {
					Version string `json:"version"`
					Commit  string `json:"commit"`
				}{version, commit})
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "dq version %s (%s)\n", version, commit)
			return nil
		},
	}
}
