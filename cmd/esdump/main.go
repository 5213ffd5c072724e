// Command esdump dumps an Elasticsearch index as NDJSON using sliced scrolls.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/esdump/internal/config"
	"github.com/Sternrassler/esdump/pkg/dump"
	"github.com/Sternrassler/esdump/pkg/logging"
)

const (
	exitOK      = 0
	exitFailure = 1
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	return exitCode(cmd.Execute(), stderr)
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "esdump --host URL --index NAME",
		Short: "Dump an Elasticsearch index as NDJSON using parallel sliced scrolls",
		Long: `esdump scrolls an index in parallel slices and writes every document as
newline-delimited JSON, preceded by a bulk action line, to stdout or to one
file per slice.

Every flag can also be set through an ESDUMP_<FLAG> environment variable
(dashes become underscores) or a .env file in the working directory.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(); err != nil {
				return err
			}
			v, err := config.NewViper(cmd.Flags())
			if err != nil {
				return err
			}
			cfg := config.Load(v)

			cfg.Logging.Output = stderr
			if _, err := logging.Setup(cfg.Logging); err != nil {
				return &dump.UsageError{Message: err.Error()}
			}

			return dump.New(cfg.Dump, stdout, stderr).Run(cmd.Context())
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	config.RegisterFlags(cmd.Flags())
	return cmd
}

// exitCode reports err on stderr and maps it to the process exit status.
// Slice failures were already reported one line per slice.
func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return exitOK
	}

	var failures *dump.SliceFailuresError
	if !errors.As(err, &failures) {
		fmt.Fprintln(stderr, err)
	}
	return exitFailure
}
