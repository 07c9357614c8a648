package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/foxzi/mailmerge/internal/pipeline"
)

var (
	dataFile   string
	sendDryRun bool
	previewRow int
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send personalized emails to every eligible row",
	RunE:  runSend,
}

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Render one row without sending",
	RunE:  runPreview,
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Partition dataset rows by readiness",
	RunE:  runAnalyze,
}

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Verify SMTP credentials without sending",
	RunE:  runTest,
}

func init() {
	sendCmd.Flags().StringVar(&dataFile, "data", "", "CSV file with recipients")
	sendCmd.Flags().BoolVar(&sendDryRun, "dry-run", false, "Build the candidate plan without sending")
	sendCmd.MarkFlagRequired("data")

	previewCmd.Flags().StringVar(&dataFile, "data", "", "CSV file with recipients")
	previewCmd.Flags().IntVar(&previewRow, "row", 2, "Spreadsheet row to render (header is row 1)")
	previewCmd.MarkFlagRequired("data")

	analyzeCmd.Flags().StringVar(&dataFile, "data", "", "CSV file with recipients")
	analyzeCmd.MarkFlagRequired("data")

	rootCmd.AddCommand(sendCmd, previewCmd, analyzeCmd, testCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ds, err := a.LoadDataset(dataFile)
	if err != nil {
		return fmt.Errorf("failed to load dataset: %w", err)
	}

	spec, err := a.MessageSpec()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if sendDryRun {
		printPlan(a.Plan(ctx, ds, spec))
		return nil
	}

	run, err := a.Send(ctx, ds, spec)
	if err != nil {
		return err
	}
	printRun(run)
	return nil
}

func printPlan(plan *pipeline.BuildResult) {
	fmt.Printf("Plan: %d to send, %d already sent, %d without email\n\n",
		len(plan.Candidates), plan.SkippedAlreadySent, plan.SkippedNoEmail)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TO\tSUBJECT\tNOTE")
	fmt.Fprintln(w, "--\t-------\t----")
	for _, c := range plan.Candidates {
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.To, c.Subject, c.Note)
	}
	w.Flush()
}

func printRun(run *pipeline.RunResult) {
	fmt.Printf("Run %s finished in %s\n", run.RunID, run.Finished.Sub(run.Started).Round(time.Second))
	fmt.Printf("  sent: %d, failed: %d, halted: %d, already sent: %d\n\n",
		run.Sent, run.Failed, run.Halted, run.SkippedAlreadySent)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TO\tSTATUS\tMESSAGE\tNOTE")
	fmt.Fprintln(w, "--\t------\t-------\t----")
	for _, r := range run.Results {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.To, r.Status, r.Message, r.Note)
	}
	w.Flush()
}

func runPreview(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ds, err := a.LoadDataset(dataFile)
	if err != nil {
		return fmt.Errorf("failed to load dataset: %w", err)
	}

	spec, err := a.MessageSpec()
	if err != nil {
		return err
	}

	// Spreadsheet numbering: header on row 1, first data row on row 2.
	cand, err := pipeline.Preview(ds, spec, previewRow-2)
	if err != nil {
		return err
	}

	fmt.Printf("To:      %s\n", cand.To)
	fmt.Printf("Subject: %s\n", cand.Subject)
	if cand.Note != "" {
		fmt.Printf("Note:    %s\n", cand.Note)
	}
	fmt.Printf("\n%s\n", cand.Body)
	return nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ds, err := a.LoadDataset(dataFile)
	if err != nil {
		return fmt.Errorf("failed to load dataset: %w", err)
	}

	spec, err := a.MessageSpec()
	if err != nil {
		return err
	}

	analysis := a.Analyze(ds, spec)
	fmt.Printf("Rows: %d total, %d complete, %d with empty values, %d without email\n",
		analysis.Total, analysis.Complete, analysis.HasEmpty, analysis.NoEmail)

	if len(analysis.EmptyDetails) > 0 {
		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ROW\tEMAIL\tEMPTY COLUMNS")
		fmt.Fprintln(w, "---\t-----\t-------------")
		for _, d := range analysis.EmptyDetails {
			fmt.Fprintf(w, "%d\t%s\t%v\n", d.RowNumber, d.Email, d.EmptyVars)
		}
		w.Flush()
	}
	return nil
}

func runTest(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ok, detail := a.TestConnection(ctx)
	if !ok {
		return fmt.Errorf("connection test failed: %s", detail)
	}
	fmt.Printf("Connection OK: %s\n", detail)
	return nil
}
