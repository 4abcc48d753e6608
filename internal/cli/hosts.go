package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/martijn/vmorch/internal/sshconfig"
)

var hostsTimeout time.Duration

var hostsCmd = &cobra.Command{
	Use:   "hosts",
	Short: "Inspect ssh hosts",
	Long:  "List the host aliases of the ssh config and test connections to them",
}

var hostsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured hosts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		resolver := sshconfig.NewResolver(cfg.SSHConfigPath, cfg.SSHConnectTimeout, log)

		hosts, err := resolver.List()
		if err != nil {
			return fmt.Errorf("failed to list hosts: %w", err)
		}

		if len(hosts) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No hosts found in %s\n", resolver.Path())
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ALIAS\tHOST\tUSER\tPORT\tIDENTITY")
		for _, h := range hosts {
			identity := h.IdentityFile
			if identity == "" {
				identity = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", h.Alias, h.Host, h.User, h.Port, identity)
		}
		return w.Flush()
	},
}

var hostsTestCmd = &cobra.Command{
	Use:   "test <alias>",
	Short: "Test the connection to a host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resolver := sshconfig.NewResolver(cfg.SSHConfigPath, cfg.SSHConnectTimeout, log)

		res, err := resolver.Probe(cmd.Context(), args[0], hostsTimeout)
		if err != nil {
			return err
		}

		if !res.Success {
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s): connection failed: %s\n", res.Alias, res.Host, res.Error)
			return &ExitError{Code: 1}
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s): %s in %s\n",
			res.Alias, res.Host, res.Output, res.Latency.Round(time.Millisecond))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hostsCmd)
	hostsCmd.AddCommand(hostsListCmd, hostsTestCmd)
	hostsTestCmd.Flags().DurationVar(&hostsTimeout, "timeout", sshconfig.DefaultProbeTimeout, "connection timeout")
}
