package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/0x6d61/fluent/internal/journal"
	"github.com/0x6d61/fluent/internal/report"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect the exchange journal",
	Long: `History lists, shows, deletes and prunes the exchanges recorded in the
journal given with --journal.`,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded exchanges, newest first",
	Args:  cobra.NoArgs,
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Print a recorded response",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a recorded exchange",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryDelete,
}

var historyCleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete exchanges older than --older-than",
	Args:  cobra.NoArgs,
	RunE:  runHistoryCleanup,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd, historyShowCmd, historyDeleteCmd, historyCleanupCmd)

	historyListCmd.Flags().Int("limit", 20, "Maximum number of exchanges (0 = all)")
	historyCleanupCmd.Flags().Duration("older-than", 7*24*time.Hour, "Minimum age of deleted exchanges")
}

// openJournal opens the store named by --journal.
func openJournal(cmd *cobra.Command) (*journal.SQLiteStore, error) {
	path, _ := cmd.Flags().GetString("journal")
	if path == "" {
		return nil, fmt.Errorf("journal path is required (use --journal)")
	}
	store, err := journal.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal %q: %w", path, err)
	}
	return store, nil
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	store, err := openJournal(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	summaries, err := store.List(cmd.Context(), limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTIME\tSTATUS\tMETHOD\tURL")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			s.ID, s.CreatedAt.Local().Format(time.DateTime), s.Status, s.Method, s.URL)
	}
	return tw.Flush()
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	verbose, _ := cmd.Flags().GetInt("verbose")

	reporter, err := report.New(format)
	if err != nil {
		return fmt.Errorf("unknown report format %q: %w", format, err)
	}
	if tr, ok := reporter.(*report.TextReporter); ok {
		tr.Verbose = verbose
	}

	store, err := openJournal(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	ex, err := store.LoadByID(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if ex == nil {
		return fmt.Errorf("exchange %q not found", args[0])
	}

	if verbose > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "> %s %s\n", ex.Method, ex.URL)
	}
	resp, err := ex.Response()
	if err != nil {
		return err
	}
	return reporter.Generate(cmd.Context(), resp, cmd.OutOrStdout())
}

func runHistoryDelete(cmd *cobra.Command, args []string) error {
	store, err := openJournal(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	return store.Delete(cmd.Context(), args[0])
}

func runHistoryCleanup(cmd *cobra.Command, args []string) error {
	maxAge, _ := cmd.Flags().GetDuration("older-than")

	store, err := openJournal(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.Cleanup(cmd.Context(), maxAge)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d exchange(s)\n", n)
	return nil
}
