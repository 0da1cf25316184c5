package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"tabfold-mcp-server/internal/bookmarks"
	"tabfold-mcp-server/internal/mangle"
	"tabfold-mcp-server/internal/reconcile"
)

var (
	reconcileSource string
	reconcileDryRun bool
)

// groupError is how a failed run is reported to the user.
type groupError struct {
	err error
}

func (e groupError) Error() string { return "Failed to group tabs: " + e.err.Error() }
func (e groupError) Unwrap() error { return e.err }

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [folder-id...]",
	Short: "Open missing bookmarks and group tabs by folder",
	Long: `Make tab groups match bookmark folders. Links that are not open yet are
opened, then each folder's tabs are grouped per window under the folder title.
New groups take the next color from the palette.

With several folders and no ids you are asked to pick. Use "tabfold folders"
to list ids.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := runReconcile(cmd.Context(), cmd.OutOrStdout(), args); err != nil {
			return groupError{err: err}
		}
		return nil
	},
}

func init() {
	reconcileCmd.Flags().StringVar(&reconcileSource, "source", "", "Bookmarks JSON or folders YAML (default: reconcile.source)")
	reconcileCmd.Flags().BoolVar(&reconcileDryRun, "dry-run", false, "Only show what would change")
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(ctx context.Context, out io.Writer, selected []string) error {
	rt, closer, err := openBrowser(ctx)
	if err != nil {
		return err
	}
	defer closer()

	sets, err := loadSource(rt.Config.Reconcile.Source, reconcileSource)
	if err != nil {
		return err
	}
	if err := rt.Engine.ReplacePredicates(ctx, mangle.FolderPredicates, mangle.FolderFacts(sets)); err != nil {
		log.Printf("warning: failed to publish folder facts: %v", err)
	}

	engine, err := rt.Reconciler()
	if err != nil {
		return err
	}

	if reconcileDryRun {
		summary, err := engine.Preview(ctx, sets, selected)
		if err != nil {
			return err
		}
		printSummary(out, summary)
		return nil
	}

	var approver reconcile.Approver = reconcile.AutoApprove
	var rl lineReader
	if !assumeYes {
		inst, err := newReadline()
		if err != nil {
			return err
		}
		defer inst.Close()
		rl = inst
		approver = promptApprover{rl: inst, out: out}
	}

	summary, err := engine.Reconcile(ctx, sets, selected, approver)
	if err != nil {
		return err
	}
	if summary.Status == reconcile.StatusSelectionNeeded {
		if rl == nil {
			return errors.New("several folders have links; pass folder ids")
		}
		ids, err := chooseFolders(rl, out, summary.Candidates)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Fprintln(out, "Nothing selected.")
			return nil
		}
		if summary, err = engine.Reconcile(ctx, sets, ids, approver); err != nil {
			return err
		}
	}

	printSummary(out, summary)
	return nil
}

func loadSource(configured, override string) ([]reconcile.TargetSet, error) {
	path := override
	if path == "" {
		path = configured
	}
	if path == "" {
		return nil, errors.New("no folder source: pass --source or set reconcile.source")
	}
	return bookmarks.Load(path)
}

func printSummary(out io.Writer, summary reconcile.Summary) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	switch summary.Status {
	case reconcile.StatusApplied:
		fmt.Fprintf(out, "%s %s\n", green("✓"), summary.Notice)
		r := summary.Result
		fmt.Fprintf(out, "  opened %d, created %d, renamed %d, skipped %d, failed %d\n",
			r.Opened, r.Created, r.Renamed, r.Skipped, r.Failed)
	case reconcile.StatusUpToDate:
		fmt.Fprintf(out, "%s Tabs already match the bookmark folders.\n", green("✓"))
	case reconcile.StatusNeedsApproval:
		fmt.Fprintln(out, yellow(summary.Decision.Preview))
		for _, p := range summary.Plans {
			fmt.Fprintf(out, "  %-24s %d to open, %d open\n", p.Title, p.ToOpen, len(p.Reusable))
		}
	case reconcile.StatusDeclined:
		fmt.Fprintln(out, gray("Cancelled. Nothing changed."))
	case reconcile.StatusSelectionNeeded:
		fmt.Fprintf(out, "%s %d folders have links; pass folder ids.\n", yellow("!"), len(summary.Candidates))
	default:
		fmt.Fprintf(out, "%s %s\n", yellow("!"), summary.Notice)
	}
}
