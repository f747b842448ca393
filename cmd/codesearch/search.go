package main

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/codesearch/internal/codesearch"
	httpserver "github.com/fyrsmithlabs/codesearch/internal/http"
)

func newSearchCmd(c *cli) *cobra.Command {
	var (
		repoID int64
		export string
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed code in plain language",
		Long: `Search indexed code in plain language.

Results are ordered by distance, lower is closer. Use --export to write the
results as Markdown instead of printing them.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{"query": {strings.Join(args, " ")}}
			if repoID > 0 {
				q.Set("repoId", strconv.FormatInt(repoID, 10))
			}

			if export != "" {
				body, err := c.client().raw(cmd.Context(), "/api/search/export", q)
				if err != nil {
					return err
				}
				return writeExport(c, export, body)
			}

			var resp httpserver.SearchResponse
			if err := c.client().do(cmd.Context(), http.MethodGet, "/api/search", q, nil, &resp); err != nil {
				return err
			}
			if len(resp.Results) == 0 {
				fmt.Fprintln(c.out, dimStyle.Render("No results."))
				return nil
			}
			for _, r := range resp.Results {
				fmt.Fprint(c.out, renderResult(r))
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&repoID, "repo", 0, "restrict results to one repository id")
	cmd.Flags().StringVarP(&export, "export", "o", "", "write Markdown results to this file, or - for stdout")
	return cmd
}

func newSnippetCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "snippet",
		Aliases: []string{"code"},
		Short:   "Inspect snippets returned by search",
	}

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a snippet's full code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var sn httpserver.SnippetResponse
			if err := c.client().do(cmd.Context(), http.MethodGet, fmt.Sprintf("/api/code/%d", id), nil, nil, &sn); err != nil {
				return err
			}
			if sn.Snippet == nil {
				return fmt.Errorf("empty snippet response")
			}
			fmt.Fprint(c.out, renderSnippet(sn.Snippet))
			return nil
		},
	}

	explain := &cobra.Command{
		Use:   "explain <id>",
		Short: "Explain a snippet with the configured language model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var resp httpserver.ExplainResponse
			if err := c.client().do(cmd.Context(), http.MethodPost, fmt.Sprintf("/api/code/%d/explain", id), nil, nil, &resp); err != nil {
				return err
			}
			fmt.Fprintln(c.out, resp.Explanation)
			return nil
		},
	}

	var output string
	export := &cobra.Command{
		Use:   "export <id>",
		Short: "Export a snippet as Markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			body, err := c.client().raw(cmd.Context(), fmt.Sprintf("/api/code/%d/export", id), nil)
			if err != nil {
				return err
			}
			if output == "" {
				output = fmt.Sprintf("snippet_%d.md", id)
			}
			return writeExport(c, output, body)
		},
	}
	export.Flags().StringVarP(&output, "output", "o", "", "output file, or - for stdout (default snippet_<id>.md)")

	cmd.AddCommand(show, explain, export)
	return cmd
}

func newHistoryCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List or prune past searches",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List past searches, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var entries []codesearch.SearchHistoryEntry
			if err := c.client().do(cmd.Context(), http.MethodGet, "/api/history", nil, nil, &entries); err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(c.out, dimStyle.Render("No searches yet."))
				return nil
			}
			for _, e := range entries {
				fmt.Fprintf(c.out, "%s %q %s\n",
					labelStyle.Render(fmt.Sprintf("[%d]", e.ID)),
					e.Query,
					dimStyle.Render(fmt.Sprintf("%d results, %s", e.ResultCount, e.SearchedAt.Local().Format("2006-01-02 15:04:05"))))
			}
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one history entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := c.client().do(cmd.Context(), http.MethodDelete, fmt.Sprintf("/api/history/%d", id), nil, nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Deleted history entry %d\n", id)
			return nil
		},
	}

	cmd.AddCommand(list, del)
	return cmd
}

func writeExport(c *cli, path string, body []byte) error {
	if path == "-" {
		_, err := c.out.Write(body)
		return err
	}
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	fmt.Fprintf(c.out, "Wrote %s\n", path)
	return nil
}
