package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"tabfold-mcp-server/internal/reconcile"
)

var foldersSource string

var foldersCmd = &cobra.Command{
	Use:   "folders",
	Short: "List bookmark folders that contain links",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, closer, err := openRuntime(cmd.Context())
		if err != nil {
			return err
		}
		defer closer()

		sets, err := loadSource(rt.Config.Reconcile.Source, foldersSource)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		qualifying := reconcile.Qualifying(sets)
		if len(qualifying) == 0 {
			fmt.Fprintln(out, "No bookmark folders with links found.")
			return nil
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		for _, set := range qualifying {
			fmt.Fprintf(out, "%s  %s %s\n", cyan(set.ID), set.Label(),
				gray(fmt.Sprintf("(%d links, %d unique)", len(set.Links), len(reconcile.Compile(set)))))
		}
		return nil
	},
}

func init() {
	foldersCmd.Flags().StringVar(&foldersSource, "source", "", "Bookmarks JSON or folders YAML (default: reconcile.source)")
	rootCmd.AddCommand(foldersCmd)
}
