package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	historyClearYes   bool
	historyCountToday bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Sent-history commands",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all addresses in the sent history",
	RunE:  runHistoryList,
}

var historyCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Show how many addresses are recorded",
	RunE:  runHistoryCount,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every recorded address",
	RunE:  runHistoryClear,
}

func init() {
	historyClearCmd.Flags().BoolVarP(&historyClearYes, "yes", "y", false, "Skip confirmation prompt")
	historyCountCmd.Flags().BoolVar(&historyCountToday, "today", false, "Count only addresses recorded since midnight")

	historyCmd.AddCommand(historyListCmd, historyCountCmd, historyClearCmd)
	rootCmd.AddCommand(historyCmd)
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sent, err := a.History().SentAddresses(context.Background())
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}

	if len(sent) == 0 {
		fmt.Println("History is empty")
		return nil
	}

	addrs := make([]string, 0, len(sent))
	for addr := range sent {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	for _, addr := range addrs {
		fmt.Println(addr)
	}
	return nil
}

func runHistoryCount(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()

	if historyCountToday {
		now := time.Now()
		midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		count, err := a.History().CountSince(ctx, midnight)
		if err != nil {
			return fmt.Errorf("failed to count history: %w", err)
		}
		fmt.Printf("%d addresses recorded today\n", count)
		return nil
	}

	count, err := a.History().Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count history: %w", err)
	}

	fmt.Printf("%d addresses recorded\n", count)
	return nil
}

func runHistoryClear(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if !historyClearYes {
		fmt.Print("Clear the entire sent history? Every address becomes eligible again. [y/N]: ")
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Println("Aborted")
			return nil
		}
	}

	if err := a.History().Clear(context.Background()); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}

	fmt.Println("History cleared")
	return nil
}
