package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/palantir/contact-enrichment/pkg/pipeline/redact"
)

// usageError marks bad input from the command line or the environment.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "enricher",
		Short: "Enrich contacts from public providers",
		Long: `enricher fills in missing contact and profile fields by running a set of
provider resolvers until nothing more can be learned.

Environment:
  GEMINI_API_KEY   Enables the gemini resolver
  GITHUB_TOKEN     Raises the GitHub API rate limit
  ENRICH_DB        SQLite file for records and media (empty disables)
  WORKERS, MAX_RETRIES, REQUEST_TIMEOUT, RATE_LIMIT_RPS, FAIL_FAST,
  MAX_ROUNDS, LOG_LEVEL, GEMINI_MODEL, GEMINI_BASE_URL`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "YAML config file")
	root.AddCommand(newLocalCmd(), newDescribeCmd(), newVersionCmd())
	return root
}

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ue *usageError
	if errors.As(err, &ue) {
		return 2
	}
	return 1
}

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "enricher: %s\n", redact.Secrets(err.Error()))
		os.Exit(exitCode(err))
	}
}
