package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	indexForce         bool
	indexWorkers       int
	indexMaxFiles      int
	indexIncludeHidden bool
	indexQuiet         bool
)

var indexCmd = &cobra.Command{
	Use:   "index <dir>",
	Short: "Index a folder",
	Long: `Scan a folder and enrich every new or changed file. Unchanged files are
skipped unless --force is given. Ctrl-C cancels the run; files already
stored are kept.`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func init() {
	f := indexCmd.Flags()
	f.BoolVarP(&indexForce, "force", "f", false, "re-enrich unchanged files")
	f.IntVarP(&indexWorkers, "workers", "w", 0, "concurrent workers (overrides config)")
	f.IntVar(&indexMaxFiles, "max-files", -1, "stop scanning after this many files (overrides config)")
	f.BoolVar(&indexIncludeHidden, "hidden", false, "include hidden files and folders")
	f.BoolVarP(&indexQuiet, "quiet", "q", false, "no progress output")
}

func runIndex(cmd *cobra.Command, args []string) error {
	root, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", args[0], err)
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	errOut := cmd.ErrOrStderr()
	var progress func(completed, total int, message string)
	if !indexQuiet {
		progress = func(completed, total int, message string) {
			fmt.Fprintf(errOut, "[%d/%d] %s\n", completed, total, message)
		}
	}

	opts := a.IndexOptions(indexForce, progress)
	opts.Workers = indexWorkers
	if indexMaxFiles >= 0 {
		opts.MaxFiles = indexMaxFiles
	}
	if cmd.Flags().Changed("hidden") {
		opts.IncludeHidden = indexIncludeHidden
	}

	stats, err := a.Indexer.IndexDirectory(ctx, root, opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if stats.Denied != nil {
		fmt.Fprintf(out, "Index run denied: %s (used %d of %d)\n", stats.Denied.Reason, stats.Denied.Used, stats.Denied.Limit)
		return nil
	}
	fmt.Fprintf(out, "Indexed %s, skipped %s, failed %s, cancelled %s of %s files in %s\n",
		humanize.Comma(int64(stats.Indexed)),
		humanize.Comma(int64(stats.Skipped)),
		humanize.Comma(int64(stats.Failed)),
		humanize.Comma(int64(stats.Cancelled)),
		humanize.Comma(int64(stats.Total)),
		stats.Duration.Round(time.Millisecond))
	for _, fe := range stats.Errors {
		fmt.Fprintf(out, "  %s  %s: %s\n", fe.Kind, fe.Path, fe.Message)
	}
	return nil
}
