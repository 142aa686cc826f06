package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage connection profiles",
	}
	cmd.AddCommand(newConfigListCmd(), newConfigSetCmd(), newConfigUseCmd(), newConfigRemoveCmd())
	return cmd
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List profiles with tokens masked",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			profiles, err := loadProfiles()
			if err != nil {
				return err
			}
			names := make([]string, 0, len(profiles.Entries))
			for name := range profiles.Entries {
				names = append(names, name)
			}
			sort.Strings(names)

			if getOutputFormat(cmd) == "json" {
				masked := Profiles{Current: profiles.Current, Entries: make(map[string]Profile, len(names))}
				for _, name := range names {
					p := profiles.Entries[name]
					p.Token = maskSecret(p.Token)
					masked.Entries[name] = p
				}
				return PrintJSON(cmd.OutOrStdout(), masked)
			}

			rows := make([][]string, 0, len(names))
			for _, name := range names {
				p := profiles.Entries[name]
				marker := ""
				if name == profiles.Current {
					marker = "*"
				}
				rows = append(rows, []string{marker, name, p.Host, p.Tenant, maskSecret(p.Token), p.Output})
			}
			return printTable(cmd.OutOrStdout(), []string{"", "NAME", "HOST", "TENANT", "TOKEN", "OUTPUT"}, rows)
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	var host, token, tenant, output string

	cmd := &cobra.Command{
		Use:   "set <profile>",
		Short: "Create or update a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("default-output") {
				if err := validateOutputFormat(output); err != nil {
					return err
				}
			}
			profiles, err := loadProfiles()
			if err != nil {
				return err
			}
			profiles.Update(args[0], func(p *Profile) {
				if flags.Changed("url") {
					p.Host = strings.TrimRight(host, "/")
				}
				if flags.Changed("bearer-token") {
					p.Token = token
				}
				if flags.Changed("tenant-id") {
					p.Tenant = tenant
				}
				if flags.Changed("default-output") {
					p.Output = output
				}
			})
			if err := profiles.save(); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Saved profile %s.\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "url", "", "API base URL")
	cmd.Flags().StringVar(&token, "bearer-token", "", "Bearer token")
	cmd.Flags().StringVar(&tenant, "tenant-id", "", "Tenant id sent to development servers")
	cmd.Flags().StringVar(&output, "default-output", "", "Default output format")
	return cmd
}

func newConfigUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <profile>",
		Short: "Switch the active profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			profiles, err := loadProfiles()
			if err != nil {
				return err
			}
			if _, ok := profiles.Entries[args[0]]; !ok {
				return fmt.Errorf("unknown profile %q", args[0])
			}
			profiles.Current = args[0]
			if err := profiles.save(); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Using profile %s.\n", args[0])
			return nil
		},
	}
}

func newConfigRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <profile>",
		Aliases: []string{"rm"},
		Short:   "Delete a profile",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			profiles, err := loadProfiles()
			if err != nil {
				return err
			}
			if _, ok := profiles.Entries[args[0]]; !ok {
				return fmt.Errorf("unknown profile %q", args[0])
			}
			delete(profiles.Entries, args[0])
			if profiles.Current == args[0] {
				profiles.Current = defaultProfile
			}
			if err := profiles.save(); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Removed profile %s.\n", args[0])
			return nil
		},
	}
}

// maskSecret keeps only the last four characters of s.
func maskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "********"
	default:
		return "********" + s[len(s)-4:]
	}
}
