package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/martijn/vmorch/internal/presets"
)

var commandsCmd = &cobra.Command{
	Use:   "commands",
	Short: "List command presets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := presets.Load(cfg.PresetsFile)
		if err != nil {
			return err
		}

		if catalog.Len() == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No command presets configured")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tTYPE\tHOST\tCOMMAND\tDESCRIPTION")
		for _, e := range catalog.List() {
			host := e.HostAlias
			if host == "" {
				host = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.Key, e.Type, host, truncate(e.Cmd, 50), e.Description)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(commandsCmd)
}
