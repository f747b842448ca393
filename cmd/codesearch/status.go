package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	httpserver "github.com/fyrsmithlabs/codesearch/internal/http"
	"github.com/fyrsmithlabs/codesearch/internal/indexer"
)

func newIndexCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Inspect the global vector index",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the manifest of the last index build",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var m indexer.IndexManifest
			err := c.client().do(cmd.Context(), http.MethodGet, "/api/index", nil, nil, &m)
			var apiErr *apiError
			if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
				fmt.Fprintln(c.out, dimStyle.Render("No index has been built yet."))
				return nil
			}
			if err != nil {
				return err
			}

			fmt.Fprintln(c.out, titleStyle.Render("Index "+m.BuildID))
			fmt.Fprintln(c.out, field("Policy", m.Policy))
			fmt.Fprintln(c.out, field("Model", fmt.Sprintf("%s (%d dims)", m.Model, m.Dimension)))
			fmt.Fprintln(c.out, field("Entries", m.Entries))
			ids := make([]string, len(m.Repositories))
			for i, id := range m.Repositories {
				ids[i] = fmt.Sprint(id)
			}
			fmt.Fprintln(c.out, field("Repositories", strings.Join(ids, ", ")))
			fmt.Fprintln(c.out, field("Built", m.BuiltAt.Local().Format("2006-01-02 15:04:05")))
			return nil
		},
	})
	return cmd
}

func newHealthCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check codesearchd server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp httpserver.HealthResponse
			if err := c.client().do(cmd.Context(), http.MethodGet, "/health", nil, nil, &resp); err != nil {
				fmt.Fprintf(c.out, "%s %v\n", errorStyle.Render("Server Status: unhealthy"), err)
				return err
			}
			fmt.Fprintf(c.out, "Server Status: %s\n", healthyStyle.Render(resp.Status))
			fmt.Fprintf(c.out, "Server URL: %s\n", c.serverURL)
			return nil
		},
	}
}
