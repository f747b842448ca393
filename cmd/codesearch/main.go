// Package main implements the codesearch CLI, a client for the codesearchd REST API.
package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// version information
var version = "dev"

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

// cli carries the flags and output shared by every command.
type cli struct {
	serverURL string
	timeout   time.Duration
	out       io.Writer
}

func (c *cli) client() *client {
	return newClient(c.serverURL, c.timeout)
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out}

	root := &cobra.Command{
		Use:   "codesearch",
		Short: "Semantic code search from the command line",
		Long: `codesearch talks to a running codesearchd server.

Register a local repository, index it, then search it in plain language:

  codesearch repo add ~/src/myproject
  codesearch repo index 1
  codesearch search "where is the config loaded"`,
		Version:      version,
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.SetErr(out)

	defaultServer := "http://127.0.0.1:8000"
	if env := os.Getenv("CODESEARCH_SERVER"); env != "" {
		defaultServer = env
	}
	root.PersistentFlags().StringVar(&c.serverURL, "server", defaultServer, "codesearchd server URL")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", 5*time.Minute, "request timeout; index builds can be slow")

	root.AddCommand(
		newRepoCmd(c),
		newSearchCmd(c),
		newSnippetCmd(c),
		newHistoryCmd(c),
		newIndexCmd(c),
		newHealthCmd(c),
	)
	return root
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q: must be a positive integer", arg)
	}
	return id, nil
}
