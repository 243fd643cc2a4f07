// Package cli turns command-line arguments into a validated app.Config.
package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/vk/buildgrid/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// ExitCode returns the process exit code the error requests.
func (e *ExitError) ExitCode() int {
	return e.Code
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	flagSet := flag.NewFlagSet("buildgrid", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
buildgrid - an incremental, cache-aware build coordinator.

Usage:
  buildgrid [options] TARGET...

Arguments:
  TARGET
    One or more target labels to build, e.g. //lib:util or root//app:main.

Options:
`)
		flagSet.PrintDefaults()
	}

	rulesFlag := flagSet.String("rules", "", "Path to the rule tree root (*.build.hcl files).")
	rFlag := flagSet.String("r", "", "Path to the rule tree root (shorthand).")
	snapshotFlag := flagSet.String("snapshot", "", "afs URL of the last-known-good snapshot, e.g. file:///var/lib/buildgrid/snapshot.yaml.")
	cellFlag := flagSet.String("cell", "root", "Cell name targets are declared into.")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	workersFlag := flagSet.Int("workers", 10, "Number of concurrent build workers.")
	cpuFlag := flagSet.Int("cpu", 0, "Total CPU capacity for admission control. 0 uses the worker count.")
	memoryFlag := flagSet.Int("memory", 0, "Total memory capacity for admission control, in MiB. 0 is unbounded.")
	failFastFlag := flagSet.Bool("fail-fast", false, "Stop admitting new targets after the first failure.")
	retriesFlag := flagSet.Int("retries", 0, "Extra executor attempts for transient failures.")
	cacheFlag := flagSet.String("cache", "", "afs URL of the persistent artifact cache, e.g. file:///var/cache/buildgrid.")
	remoteCacheFlag := flagSet.String("remote-cache", "", "Base URL of a remote HTTP artifact cache.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	rulesPath := *rulesFlag
	if rulesPath == "" {
		rulesPath = *rFlag
	}

	if flagSet.NArg() == 0 {
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	config, err := app.NewConfig(app.Config{
		RulesPath:      rulesPath,
		SnapshotPath:   *snapshotFlag,
		Cell:           *cellFlag,
		Roots:          flagSet.Args(),
		LogFormat:      logFormat,
		LogLevel:       logLevel,
		Workers:        *workersFlag,
		CPUCapacity:    *cpuFlag,
		MemoryCapacity: *memoryFlag,
		FailFast:       *failFastFlag,
		Retries:        *retriesFlag,
		CacheURL:       *cacheFlag,
		RemoteCacheURL: *remoteCacheFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	return config, false, nil
}
