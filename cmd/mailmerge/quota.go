package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Daily quota commands",
}

var quotaShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show today's counter state",
	RunE:  runQuotaShow,
}

var quotaSetLimitCmd = &cobra.Command{
	Use:   "set-limit <n>",
	Short: "Change the daily send limit",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuotaSetLimit,
}

func init() {
	quotaCmd.AddCommand(quotaShowCmd, quotaSetLimitCmd)
	rootCmd.AddCommand(quotaCmd)
}

func runQuotaShow(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	state := a.Quota().Snapshot()
	fmt.Printf("Date:      %s\n", state.Date)
	fmt.Printf("Limit:     %d\n", state.Limit)
	fmt.Printf("Sent:      %d\n", state.SentCount)
	fmt.Printf("Remaining: %d\n", a.Quota().Remaining())
	return nil
}

func runQuotaSetLimit(cmd *cobra.Command, args []string) error {
	limit, err := strconv.Atoi(args[0])
	if err != nil || limit < 0 {
		return fmt.Errorf("limit must be a non-negative integer")
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Quota().SetLimit(limit); err != nil {
		return fmt.Errorf("failed to set limit: %w", err)
	}

	fmt.Printf("Daily limit set to %d\n", limit)
	return nil
}
