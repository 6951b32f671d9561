package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/event/bus"
	"github.com/nafnafnaf59/Arduino-Gestion-Classe/internal/hosts"
)

var (
	// hostsTag filters the listing by tag
	hostsTag string
	// hostsOut is the path the normalized roster is written to
	hostsOut string
)

// newHostsCmd creates the hosts command with subcommands.
func newHostsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hosts",
		Short: "Inspect and convert workstation rosters",
	}

	cmd.AddCommand(newHostsListCmd())
	cmd.AddCommand(newHostsCheckCmd())
	cmd.AddCommand(newHostsConvertCmd())

	return cmd
}

// newHostsListCmd creates the hosts list subcommand.
func newHostsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <roster.csv>",
		Short: "List the hosts in a roster",
		Args:  cobra.ExactArgs(1),
		Example: `  classdeploy hosts list classroom.csv
  classdeploy hosts list --tag row-1 classroom.csv`,
		RunE: runHostsList,
	}
	cmd.Flags().StringVar(&hostsTag, "tag", "", "only show hosts carrying this tag")
	return cmd
}

func runHostsList(cmd *cobra.Command, args []string) error {
	registry, _, err := loadRoster(cmd, args[0])
	if err != nil {
		return err
	}

	var listed []hosts.Host
	if hostsTag != "" {
		listed = registry.FindByTag(hostsTag)
	} else {
		listed = registry.Snapshot().Hosts
	}

	if outputFormat == "json" {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(listed)
	}

	for _, h := range listed {
		fmt.Fprintf(cmd.OutOrStdout(), "%-12s %-20s %-16s %s\n", h.ID, h.Name, h.Address, h.OS)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d host(s)\n", len(listed))
	return nil
}

// newHostsCheckCmd creates the hosts check subcommand.
func newHostsCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <roster.csv>",
		Short: "Validate a roster and report row outcomes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, result, err := loadRoster(cmd, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added=%d updated=%d skipped=%d\n",
				result.Added, result.Updated, result.Skipped)
			if result.Skipped > 0 {
				return fmt.Errorf("%d row(s) skipped", result.Skipped)
			}
			return nil
		},
	}
}

// newHostsConvertCmd creates the hosts convert subcommand.
func newHostsConvertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert <roster.csv>",
		Short: "Normalize a roster into the canonical CSV layout",
		Long: `Read a roster, possibly with French column headings or loose OS
names, and write it back with canonical columns and values.`,
		Args: cobra.ExactArgs(1),
		RunE: runHostsConvert,
	}
	cmd.Flags().StringVar(&hostsOut, "out", "", "output file (default stdout)")
	return cmd
}

func runHostsConvert(cmd *cobra.Command, args []string) error {
	registry, _, err := loadRoster(cmd, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if hostsOut != "" {
		f, err := os.Create(hostsOut)
		if err != nil {
			return fmt.Errorf("create %s: %w", hostsOut, err)
		}
		defer f.Close()
		out = f
	}
	return registry.ExportCSV(out)
}

// loadRoster imports one CSV file into a fresh registry.
func loadRoster(cmd *cobra.Command, path string) (*hosts.Registry, hosts.ImportResult, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, hosts.ImportResult{}, err
	}
	logger := newLogger(cfg)

	registry := hosts.NewRegistry(
		hosts.WithEventBus(bus.NewEventBus(logger.WithModule("events"))),
		hosts.WithLogger(logger.WithModule("hosts")),
	)

	f, err := os.Open(path)
	if err != nil {
		return nil, hosts.ImportResult{}, fmt.Errorf("open roster %s: %w", path, err)
	}
	defer f.Close()

	result, err := registry.ImportCSV(cmd.Context(), f)
	if err != nil {
		return nil, hosts.ImportResult{}, fmt.Errorf("import roster %s: %w", path, err)
	}
	return registry, result, nil
}
