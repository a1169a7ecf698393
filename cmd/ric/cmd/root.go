// Package cmd provides the CLI commands for the ric server.
package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/havenops/ric/pkg/version"
)

// Exit codes shared by serve and migrate-indexes.
const (
	ExitOK               = 0
	ExitConfigError      = 1
	ExitStoreUnreachable = 2
	ExitIndexMismatch    = 3
)

// exitError carries a process exit code through cobra's error return.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitWith(code int, err error) error {
	return &exitError{code: code, err: err}
}

func exitf(code int, format string, args ...any) error {
	return &exitError{code: code, err: fmt.Errorf(format, args...)}
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ric",
		Short: "Retrieval and ingestion server for multi-modal content",
		Long: `ric ingests scraped content (web pages, video transcripts, articles,
files), chunks and embeds it, and serves hybrid search over the corpus to
MCP clients. Access control is enforced inside the store on every query.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("ric version {{.Version}}\n")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		statusError(cmd.ErrOrStderr(), "%s", err.Error())
		var ee *exitError
		if errors.As(err, &ee) {
			return ee.code
		}
		return ExitConfigError
	}
	return ExitOK
}
