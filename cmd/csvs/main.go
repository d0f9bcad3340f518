// Command csvs validates CSV documents against a CSVS schema.
//
//	csvs validate -s people.csvs people.csv
//	csvs validate -c run.yaml --mode collect_all --format json
//	csvs schema people.csvs
//
// Exit status is 0 when every document is valid, 1 when any document has
// violations and 2 on schema, binding, configuration or I/O errors.
package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	// register all backends with the storage factory.
	_ "csvs/internal/storage/all"
)

const (
	exitValid   = 0
	exitInvalid = 1
	exitError   = 2
)

// exitCodeError carries a process exit status through cobra.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitCodeError) Unwrap() error { return e.err }

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the CLI and returns the exit status.
func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	err := root.Execute()
	if err == nil {
		return exitValid
	}
	var ec *exitCodeError
	if errors.As(err, &ec) {
		if ec.err != nil {
			fmt.Fprintln(stderr, "csvs:", ec.err)
		}
		return ec.code
	}
	fmt.Fprintln(stderr, "csvs:", err)
	return exitError
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var verbose bool
	root := &cobra.Command{
		Use:           "csvs",
		Short:         "Validate CSV documents against CSVS schemas",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.SetOutput(stderr)
			if !verbose {
				log.SetOutput(io.Discard)
			}
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logs")

	root.AddCommand(newValidateCmd(), newSchemaCmd())
	return root
}
