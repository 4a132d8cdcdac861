package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/0x6d61/fluent"
)

// Build information (set by build flags)
var (
	commit = "none"
	date   = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "fluent",
	Short: "Fluent HTTP client with mockable endpoints",
	Long: `fluent - Fluent HTTP client with mockable endpoints

Send HTTP requests from the command line, serve them from YAML mock
fixtures, and record every exchange in a SQLite journal that can later be
replayed offline.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(versionCmd)

	// Request flags
	rootCmd.PersistentFlags().StringArrayP("header", "H", nil, "Extra header (repeatable, e.g., -H 'X-Custom: value')")
	rootCmd.PersistentFlags().String("proxy", "", "Proxy URL (http://host:port or socks5://host:port)")
	rootCmd.PersistentFlags().Duration("timeout", fluent.DefaultTimeout, "Request timeout")

	// Output flags
	rootCmd.PersistentFlags().IntP("verbose", "v", 0, "Verbosity level (0-3)")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Output file path")
	rootCmd.PersistentFlags().StringP("format", "f", "text", "Output format (text, json, raw)")

	// Journal
	rootCmd.PersistentFlags().String("journal", "", "SQLite journal file recording every exchange")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "fluent %s (commit: %s, built: %s)\n", fluent.Version, commit, date)
	},
}

// newLogger maps the --verbose level onto a slog text handler writing to w.
func newLogger(verbose int, w io.Writer) *slog.Logger {
	level := slog.LevelError
	switch {
	case verbose >= 3:
		level = slog.LevelDebug
	case verbose >= 2:
		level = slog.LevelInfo
	case verbose >= 1:
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

