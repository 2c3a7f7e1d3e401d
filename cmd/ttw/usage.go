package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/goodtune/ttw/internal/config"
	"github.com/goodtune/ttw/internal/stats"
	"github.com/goodtune/ttw/internal/storage"
	"github.com/spf13/cobra"
)

const defaultRecent = 10

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Report recorded usage",
	Long:  `Report how much time each application or window title had focus.`,
}

var usageLastCmd = &cobra.Command{
	Use:   "last <n|c> <duration> [pattern]",
	Short: "Usage over the most recent duration",
	Long: `Report usage between now minus duration and now, grouped by class (c) or
by window title (n). Durations are an integer followed by ms, s, m, h, d or w.
An optional regular expression keeps only matching keys.`,
	Example: `  ttw usage last c 8h
  ttw usage last n 1w 'main\.go'`,
	Args: rangeArgs(2, 3),
	RunE: runUsageLast,
}

var usageSpanCmd = &cobra.Command{
	Use:   "span <n|c> <begin> <end> [pattern]",
	Short: "Usage between two UTC timestamps",
	Long:  `Report usage between two UTC timestamps written as "YYYY-MM-DD HH:MM:SS".`,
	Example: `  ttw usage span c "2024-03-01 00:00:00" "2024-03-02 00:00:00"
  ttw usage span n "2024-03-01 09:00:00" "2024-03-01 17:00:00" firefox`,
	Args: rangeArgs(3, 4),
	RunE: runUsageSpan,
}

var usageRecentCmd = &cobra.Command{
	Use:   "recent [n]",
	Short: "Show the most recent sessions",
	Long:  fmt.Sprintf(`Show the last n recorded sessions (default %d), oldest first.`, defaultRecent),
	Args:  rangeArgs(0, 1),
	RunE:  runUsageRecent,
}

func init() {
	usageCmd.AddCommand(usageLastCmd, usageSpanCmd, usageRecentCmd)
	rootCmd.AddCommand(usageCmd)
}

func runUsageLast(cmd *cobra.Command, args []string) error {
	groupBy, err := stats.ParseGroupBy(args[0])
	if err != nil {
		return err
	}
	d, err := stats.ParseDuration(args[1])
	if err != nil {
		return err
	}
	pattern, err := stats.ParsePattern(optionalArg(args, 2))
	if err != nil {
		return err
	}

	now := time.Now().UnixMilli()
	return report(cmd, stats.Query{
		Range:   stats.Last(now, d),
		GroupBy: groupBy,
		Pattern: pattern,
		Now:     now,
	})
}

func runUsageSpan(cmd *cobra.Command, args []string) error {
	groupBy, err := stats.ParseGroupBy(args[0])
	if err != nil {
		return err
	}
	begin, err := stats.ParseTimestamp(args[1])
	if err != nil {
		return err
	}
	end, err := stats.ParseTimestamp(args[2])
	if err != nil {
		return err
	}
	r, err := stats.Span(begin, end)
	if err != nil {
		return err
	}
	pattern, err := stats.ParsePattern(optionalArg(args, 3))
	if err != nil {
		return err
	}

	return report(cmd, stats.Query{
		Range:   r,
		GroupBy: groupBy,
		Pattern: pattern,
		Now:     time.Now().UnixMilli(),
	})
}

func runUsageRecent(cmd *cobra.Command, args []string) error {
	n := defaultRecent
	if len(args) == 1 {
		parsed, err := strconv.Atoi(args[0])
		if err != nil || parsed < 1 {
			return fmt.Errorf("%w: count %q must be a positive integer", stats.ErrArgument, args[0])
		}
		n = parsed
	}

	store, err := openQueryStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	var sessions []storage.Session
	for s, err := range store.Sessions().ReadTail(contextOf(cmd), n) {
		if err != nil {
			return err
		}
		sessions = append(sessions, s)
	}

	printSessions(cmd.OutOrStdout(), sessions, time.Now().UnixMilli())
	return nil
}

// report runs a query against the configured store and prints the result
func report(cmd *cobra.Command, q stats.Query) error {
	store, err := openQueryStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := stats.Aggregate(store.Sessions().ReadAll(contextOf(cmd)), q)
	if err != nil {
		return err
	}

	printEntries(cmd.OutOrStdout(), entries, q.GroupBy)
	return nil
}

// openQueryStore opens the store read-only. Queries fall back to defaults
// when the configuration cannot be loaded.
func openQueryStore(cmd *cobra.Command) (storage.Store, error) {
	logger := quietLogger()

	cfg, err := config.Load(configPath)
	if err != nil {
		yellow := color.New(color.FgYellow)
		_, _ = yellow.Fprintf(cmd.ErrOrStderr(), "Warning: %v; using default configuration\n", err)
		cfg = config.Default()
	}

	store, err := openStorage(cfg.Storage, true)
	if err != nil {
		logger.Error().Err(err).Str("type", cfg.Storage.Type).Msg("Failed to open storage")
		return nil, err
	}
	return store, nil
}

// printEntries prints one "key: duration" line per entry, padded to the
// longest key
func printEntries(w io.Writer, entries []stats.Entry, groupBy stats.GroupBy) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No usage recorded in this range.")
		return
	}

	labels := make([]string, len(entries))
	width := 0
	for i, e := range entries {
		labels[i] = entryLabel(e, groupBy)
		width = max(width, utf8.RuneCountInString(labels[i]))
	}

	keyColor := color.New(color.FgCyan, color.Bold)
	durationColor := color.New(color.FgGreen)

	for i, e := range entries {
		pad := strings.Repeat(" ", width-utf8.RuneCountInString(labels[i]))
		fmt.Fprintf(w, "%s%s %s\n", keyColor.Sprint(labels[i]+":"), pad, durationColor.Sprint(stats.Format(e.Millis)))
	}
}

func entryLabel(e stats.Entry, groupBy stats.GroupBy) string {
	if groupBy == stats.ByTitle && e.Key == "" {
		return "[" + e.Class + "]"
	}
	return e.Key
}

// printSessions prints raw sessions as a table
func printSessions(w io.Writer, sessions []storage.Session, now int64) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions recorded.")
		return
	}

	classColor := color.New(color.FgCyan)
	openColor := color.New(color.FgYellow, color.Bold)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, s := range sessions {
		marker := ""
		if s.Open {
			marker = openColor.Sprint("open")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			time.UnixMilli(s.Start).UTC().Format(stats.TimestampLayout),
			stats.Format(s.EndOr(now)-s.Start),
			classColor.Sprint(s.Class),
			s.Title,
			marker,
		)
	}
	_ = tw.Flush()
}

func optionalArg(args []string, i int) string {
	if len(args) > i {
		return args[i]
	}
	return ""
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
