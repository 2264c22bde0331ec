package main

import (
	"fmt"
	"strconv"
	"time"

	"autocode/internal/history"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

var (
	historyKey     string
	historySession string
	historyLimit   int
	historySource  bool
	historyOlder   time.Duration
)

// historyCmd shows the generation ledger
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded generation attempts",
	Long: `Lists generation attempts from the history ledger, newest first.
Recording is enabled with history.enabled in .autocode.yaml.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old attempts from the ledger",
	Args:  cobra.NoArgs,
	RunE:  runHistoryPrune,
}

func init() {
	historyCmd.Flags().StringVar(&historyKey, "key", "", "Only attempts for this cache key (e.g. ids/add)")
	historyCmd.Flags().StringVar(&historySession, "session", "", "Only attempts of one generation")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum rows (0 = all)")
	historyCmd.Flags().BoolVar(&historySource, "source", false, "Print the source of each attempt")
	historyPruneCmd.Flags().DurationVar(&historyOlder, "older-than", 30*24*time.Hour, "Delete attempts older than this")
}

func openHistory() (*history.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return history.Open(cfg.HistoryPath())
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	attempts, err := store.List(ctx, history.Filter{Key: historyKey, Session: historySession, Limit: historyLimit})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(attempts) == 0 {
		fmt.Fprintln(out, "No recorded attempts")
		return nil
	}

	if historySource {
		for _, a := range attempts {
			fmt.Fprintf(out, "## %s attempt %d (%s) %s\n%s\n", a.Key, a.Attempt, a.Outcome, a.CreatedAt.Format(time.RFC3339), a.Source)
		}
		return nil
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return lipgloss.NewStyle()
		}).
		Headers("TIME", "KEY", "#", "OUTCOME", "AGENT", "MS", "MESSAGE")
	for _, a := range attempts {
		t.Row(
			a.CreatedAt.Local().Format("01-02 15:04:05"),
			a.Key,
			strconv.Itoa(a.Attempt),
			a.Outcome,
			a.Agent,
			strconv.FormatInt(a.DurationMs, 10),
			truncate(a.Message, 60),
		)
	}
	fmt.Fprintln(out, t.Render())
	return nil
}

func runHistoryPrune(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	store, err := openHistory()
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.Prune(ctx, time.Now().Add(-historyOlder))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "pruned %d attempt(s)\n", n)
	return nil
}
