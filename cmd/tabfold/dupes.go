package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"tabfold-mcp-server/internal/dupes"
)

var (
	dupesThreshold float64
	dupesClose     bool
)

var dupesCmd = &cobra.Command{
	Use:   "dupes",
	Short: "Find tabs with the same or near-identical content",
	Long: `Find open tabs that show the same page. Tabs with the same normalized URL
always match; others are compared by the words of their title and text.
With --close each cluster's extra tabs are closed after you confirm.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rt, closer, err := openBrowser(ctx)
		if err != nil {
			return err
		}
		defer closer()

		threshold := dupesThreshold
		if threshold == 0 {
			threshold = rt.Config.Duplicates.Threshold
		}
		if threshold <= 0 || threshold > 1 {
			return fmt.Errorf("threshold must be in (0, 1], got %v", threshold)
		}

		items, err := dupes.Collect(ctx, rt.Tabs, rt.Tabs)
		if err != nil {
			return err
		}
		byID := make(map[string]dupes.Item, len(items))
		for _, it := range items {
			byID[it.TabID] = it
		}

		detector := dupes.JaccardDetector{MinTokens: rt.Config.Duplicates.MinTokens}
		clusters := detector.Detect(items, threshold)

		out := cmd.OutOrStdout()
		if len(clusters) == 0 {
			fmt.Fprintf(out, "No duplicates among %d tabs.\n", len(items))
			return nil
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		for i, c := range clusters {
			fmt.Fprintf(out, "%s %s\n", cyan(fmt.Sprintf("Cluster %d", i+1)), gray(fmt.Sprintf("(score %.2f)", c.AvgScore)))
			for _, id := range c.IDs {
				marker := " "
				if id == c.Keep {
					marker = "*"
				}
				fmt.Fprintf(out, "  %s %s %s\n", marker, dupes.Label(byID[id]), gray(byID[id].URL))
			}
		}
		if !dupesClose {
			return nil
		}

		var approver promptApprover
		if !assumeYes {
			rl, err := newReadline()
			if err != nil {
				return err
			}
			defer rl.Close()
			approver = promptApprover{rl: rl, out: out}
		}

		green := color.New(color.FgGreen).SprintFunc()
		for _, c := range clusters {
			closing := c.Closing()
			if !assumeYes {
				ok, err := approver.Approve(ctx, dupes.ClosePreview(len(closing), byID[c.Keep]))
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
			}
			closed, err := dupes.CloseDuplicates(ctx, rt.Tabs, c.Keep, closing)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s closed %d tab(s), kept %s\n", green("✓"), len(closed), dupes.Label(byID[c.Keep]))
		}
		return nil
	},
}

func init() {
	dupesCmd.Flags().Float64Var(&dupesThreshold, "threshold", 0, "Similarity in (0, 1] (default: duplicates.threshold)")
	dupesCmd.Flags().BoolVar(&dupesClose, "close", false, "Close the extra tabs of each cluster")
	rootCmd.AddCommand(dupesCmd)
}
