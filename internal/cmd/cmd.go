// Package cmd is the WebStats entry point.  It parses the command-line options,
// reads the configuration, assembles the pipeline, and runs it.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/AdguardTeam/WebStats/internal/configmgr"
	"github.com/AdguardTeam/WebStats/internal/version"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/osutil"
	"github.com/google/uuid"
)

// Main is the entry point of WebStats.
func Main() {
	os.Exit(run(os.Args[0], os.Args[1:], os.Stdout, os.Stderr))
}

// run executes a single run of WebStats and returns the exit code.
func run(cmdName string, args []string, stdout, stderr io.Writer) (exitCode int) {
	opts, err := parseOptions(cmdName, args, stderr)
	exitCode, needExit := processOptions(opts, cmdName, err, stdout)
	if needExit {
		return exitCode
	}

	conf, err := readConfig(opts)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%s: %s\n", cmdName, err)

		return osutil.ExitCodeFailure
	}

	l := newLogger(conf.Log, opts).With("run_id", uuid.New().String())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	l.InfoContext(ctx, "starting webstats", "version", version.Version(), "pid", os.Getpid())

	err = runPipeline(ctx, conf, l)
	if err != nil {
		l.ErrorContext(ctx, "run failed", slogutil.KeyError, err)

		return osutil.ExitCodeFailure
	}

	return osutil.ExitCodeSuccess
}

// readConfig changes the working directory, if necessary, and reads the
// configuration file.  If the configuration file is the default one and it
// doesn't exist, the default configuration is used.
func readConfig(opts *options) (conf *configmgr.Config, err error) {
	if opts.workDir != "" {
		err = os.Chdir(opts.workDir)
		if err != nil {
			return nil, fmt.Errorf("changing working directory: %w", err)
		}
	}

	conf, err = configmgr.Read(opts.confFile)
	if errors.Is(err, os.ErrNotExist) && opts.confFile == configmgr.DefaultFile {
		return configmgr.Default(), nil
	}

	// Don't wrap the error, because it's informative enough as is.
	return conf, err
}

// runPipeline assembles and runs the pipeline.
func runPipeline(ctx context.Context, conf *configmgr.Config, l *slog.Logger) (err error) {
	p, err := newPipeline(conf, l)
	if err != nil {
		return fmt.Errorf("assembling pipeline: %w", err)
	}

	// Don't wrap the error, because it's informative enough as is.
	return p.Run(ctx)
}
