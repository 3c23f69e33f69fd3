package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sofmeright/verbuild/src/config"
)

var listSort bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured versions and their refs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		versions := cfg.Versions
		if listSort {
			versions = config.SortedBySemver(versions)
		}

		width := len("NAME")
		for _, v := range versions {
			if len(v.Name) > width {
				width = len(v.Name)
			}
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%-*s  %s\n", width, "NAME", "REF")
		for _, v := range versions {
			fmt.Fprintf(w, "%-*s  %s\n", width, v.Name, v.Ref)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().BoolVar(&listSort, "sort", false, "order semver-named versions by precedence")
	rootCmd.AddCommand(listCmd)
}
