package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/filesense/internal/app"
	"github.com/dshills/filesense/internal/searcher"
)

var (
	searchLimit int
	searchType  string
	searchExts  []string
	searchFrom  string
	searchTo    string
	searchJSON  bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the catalog with natural language",
	Long: `Search the catalog. The query may contain dates ("last week", "march 2024"),
types ("screenshots", "pdfs") and operators (label:, tag:, has:ocr, has:vision).
The query may be empty when a filter flag is given.`,
	Args: cobra.ArbitraryArgs,
	RunE: runSearch,
}

func init() {
	f := searchCmd.Flags()
	f.IntVarP(&searchLimit, "limit", "n", 0, "maximum results (default from config)")
	f.StringVarP(&searchType, "type", "t", "", "images, screenshots, documents, pdfs, spreadsheets, videos, audio or code")
	f.StringSliceVarP(&searchExts, "ext", "e", nil, "restrict to extensions, e.g. --ext .jpg,.png")
	f.StringVar(&searchFrom, "from", "", "earliest date (YYYY-MM-DD)")
	f.StringVar(&searchTo, "to", "", "latest date (YYYY-MM-DD), inclusive")
	f.BoolVar(&searchJSON, "json", false, "print the raw JSON response")
}

func runSearch(cmd *cobra.Command, args []string) error {
	req := searcher.Request{
		Query:      strings.Join(args, " "),
		Limit:      searchLimit,
		TypeFilter: searchType,
		Extensions: searchExts,
	}
	var err error
	if req.DateStart, err = app.ParseDateBound(searchFrom, false); err != nil {
		return err
	}
	if req.DateEnd, err = app.ParseDateBound(searchTo, true); err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	resp, err := a.Searcher.Search(ctx, req)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if searchJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	if len(resp.Interpreted.Corrections) > 0 {
		fmt.Fprintf(out, "Searching for %q\n", resp.Interpreted.Text)
	}
	if resp.Total == 0 {
		fmt.Fprintln(out, "No files found.")
		return nil
	}
	for i, r := range resp.Results {
		marker := ""
		if !r.Exists {
			marker = " (missing)"
		}
		fmt.Fprintf(out, "%2d. %3.0f%%  %s%s\n", i+1, r.RelevanceScore*100, r.Path, marker)

		var details []string
		if r.Label != "" {
			details = append(details, r.Label)
		}
		details = append(details, r.SizeHuman)
		if r.DateHuman != "" {
			details = append(details, r.DateHuman)
		}
		if tags := append(append([]string(nil), r.Tags...), r.UserTags...); len(tags) > 0 {
			details = append(details, "#"+strings.Join(tags, " #"))
		}
		fmt.Fprintf(out, "           %s\n", strings.Join(details, " · "))
	}
	fmt.Fprintf(out, "\n%d result(s) in %s\n", resp.Total, resp.Duration.Round(time.Millisecond))
	return nil
}
