package main

import (
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"

	"github.com/spf13/cobra"

	httpserver "github.com/fyrsmithlabs/codesearch/internal/http"
)

func newRepoCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "repo",
		Aliases: []string{"repos", "repository"},
		Short:   "Manage registered repositories",
	}
	cmd.AddCommand(
		newRepoAddCmd(c),
		newRepoListCmd(c),
		newRepoShowCmd(c),
		newRepoDeleteCmd(c),
		newRepoIndexCmd(c),
		newRepoFileCmd(c),
	)
	return cmd
}

func newRepoAddCmd(c *cli) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "add <path>",
		Short: "Register a local directory",
		Long: `Register a local directory as a repository.

The path is resolved to an absolute path before it is sent, so relative
paths are interpreted against the current directory, not the server's.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolving %s: %w", args[0], err)
			}
			var repo httpserver.RepositoryResponse
			req := httpserver.AddRepositoryRequest{Name: name, Path: path}
			if err := c.client().do(cmd.Context(), http.MethodPost, "/api/repositories", nil, req, &repo); err != nil {
				return err
			}
			fmt.Fprintln(c.out, healthyStyle.Render("Registered"))
			fmt.Fprint(c.out, renderRepository(repo.Repository, false))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "repository name (default: directory name)")
	return cmd
}

func newRepoListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered repositories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var repos []httpserver.RepositoryResponse
			if err := c.client().do(cmd.Context(), http.MethodGet, "/api/repositories", nil, nil, &repos); err != nil {
				return err
			}
			if len(repos) == 0 {
				fmt.Fprintln(c.out, dimStyle.Render("No repositories registered."))
				return nil
			}
			for _, r := range repos {
				fmt.Fprint(c.out, renderRepository(r.Repository, false))
			}
			return nil
		},
	}
}

func newRepoShowCmd(c *cli) *cobra.Command {
	var files bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var repo httpserver.RepositoryResponse
			if err := c.client().do(cmd.Context(), http.MethodGet, fmt.Sprintf("/api/repositories/%d", id), nil, nil, &repo); err != nil {
				return err
			}
			fmt.Fprint(c.out, renderRepository(repo.Repository, files))
			return nil
		},
	}
	cmd.Flags().BoolVar(&files, "files", false, "list the repository's files")
	return cmd
}

func newRepoDeleteCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a repository and its snippets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := c.client().do(cmd.Context(), http.MethodDelete, fmt.Sprintf("/api/repositories/%d", id), nil, nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Deleted repository %d\n", id)
			return nil
		},
	}
}

func newRepoIndexCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "index <id>",
		Short: "Extract and embed a repository's code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var resp httpserver.IndexResponse
			if err := c.client().do(cmd.Context(), http.MethodPost, fmt.Sprintf("/api/repositories/%d/index", id), nil, nil, &resp); err != nil {
				return err
			}
			fmt.Fprintln(c.out, healthyStyle.Render(resp.Message))
			return nil
		},
	}
}

func newRepoFileCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "file <id> <path>",
		Short: "Print a file from a repository",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			body, err := c.client().raw(cmd.Context(), fmt.Sprintf("/api/repositories/%d/file", id), url.Values{"path": {args[1]}})
			if err != nil {
				return err
			}
			_, err = c.out.Write(body)
			return err
		},
	}
}
