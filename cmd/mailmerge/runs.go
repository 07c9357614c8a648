package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var runsListLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Run report commands",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run_id>",
	Short: "Show the itemized report for one run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

func init() {
	runsListCmd.Flags().IntVar(&runsListLimit, "limit", 20, "Maximum number of runs to show")

	runsCmd.AddCommand(runsListCmd, runsShowCmd)
	rootCmd.AddCommand(runsCmd)
}

func runRunsList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	runs, err := a.Reports().ListRuns(runsListLimit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tTOTAL\tSENT\tFAILED\tHALTED\tSKIPPED")
	fmt.Fprintln(w, "--\t-------\t-----\t----\t------\t------\t-------")
	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
			run.ID, run.StartedAt.Format("2006-01-02 15:04:05"),
			run.Total, run.Sent, run.Failed, run.Halted, run.SkippedAlreadySent)
	}
	return w.Flush()
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	run, err := a.Reports().GetRun(args[0])
	if err != nil {
		return fmt.Errorf("failed to load run: %w", err)
	}
	if run == nil {
		return fmt.Errorf("run %s not found", args[0])
	}

	fmt.Printf("Run %s\n", run.ID)
	fmt.Printf("  started:  %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("  finished: %s\n", run.FinishedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("  sent: %d, failed: %d, halted: %d, already sent: %d\n\n",
		run.Sent, run.Failed, run.Halted, run.SkippedAlreadySent)

	items, err := a.Reports().ItemsForRun(run.ID)
	if err != nil {
		return fmt.Errorf("failed to load run items: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "POS\tRECIPIENT\tSTATUS\tMESSAGE\tNOTE")
	fmt.Fprintln(w, "---\t---------\t------\t-------\t----")
	for _, item := range items {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			item.Position, item.Recipient, item.Status, item.Message, item.Note)
	}
	return w.Flush()
}
