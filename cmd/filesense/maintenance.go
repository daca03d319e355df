package main

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove catalog entries whose files no longer exist",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		removed, err := a.Maintenance.Cleanup(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s stale %s\n", humanize.Comma(int64(removed)), plural(removed, "entry", "entries"))
		return nil
	},
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the full-text index from the catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		n, err := a.Maintenance.RebuildIndex(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Rebuilt full-text index over %s %s\n", humanize.Comma(int64(n)), plural(n, "file", "files"))
		return nil
	},
}

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show catalog statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		st, err := a.Searcher.Statistics(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if statsJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		}

		fmt.Fprintf(out, "Catalog:        %s\n", cfg.Storage.Path)
		fmt.Fprintf(out, "Files:          %s (%s)\n", humanize.Comma(int64(st.TotalFiles)), st.TotalSizeHuman)
		fmt.Fprintf(out, "With embedding: %s\n", humanize.Comma(int64(st.WithEmbedding)))
		fmt.Fprintf(out, "With OCR text:  %s\n", humanize.Comma(int64(st.WithOCR)))
		fmt.Fprintf(out, "With vision:    %s\n", humanize.Comma(int64(st.WithVision)))
		fmt.Fprintf(out, "Searches:       %s\n", humanize.Comma(int64(st.SearchCount)))
		if st.LastIndexed != "" {
			fmt.Fprintf(out, "Last indexed:   %s\n", st.LastIndexed)
		}

		categories := make([]string, 0, len(st.ByCategory))
		for c := range st.ByCategory {
			categories = append(categories, c)
		}
		sort.Slice(categories, func(i, j int) bool {
			ci, cj := st.ByCategory[categories[i]], st.ByCategory[categories[j]]
			if ci != cj {
				return ci > cj
			}
			return categories[i] < categories[j]
		})
		for _, c := range categories {
			fmt.Fprintf(out, "  %-14s %s\n", c, humanize.Comma(int64(st.ByCategory[c])))
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "print JSON")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
