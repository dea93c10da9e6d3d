package cmd

import (
	"io"
	"log/slog"
	"os"

	"github.com/AdguardTeam/WebStats/internal/configmgr"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"gopkg.in/natefinch/lumberjack.v2"
)

// newLogger returns a new logger configured from the command-line options and
// the logging configuration.  The log file from opts takes precedence over the
// one from conf.  conf and opts must not be nil.
//
// The default format is used, since the legacy one ignores the output.
func newLogger(conf *configmgr.LogConfig, opts *options) (l *slog.Logger) {
	lvl := slog.LevelInfo
	if conf.Verbose || opts.verbose {
		lvl = slog.LevelDebug
	}

	return slogutil.New(&slogutil.Config{
		Output:       logOutput(conf, opts),
		Format:       slogutil.FormatDefault,
		Level:        lvl,
		AddTimestamp: true,
	})
}

// logOutput returns the output for the logs.  Rotated log files are only used
// when a log file is set.
func logOutput(conf *configmgr.LogConfig, opts *options) (w io.Writer) {
	fileName := opts.logFile
	if fileName == "" {
		fileName = conf.File
	}

	if fileName == "" {
		return os.Stderr
	}

	return &lumberjack.Logger{
		Filename:   fileName,
		Compress:   conf.Compress,
		LocalTime:  conf.LocalTime,
		MaxBackups: conf.MaxBackups,
		MaxSize:    conf.MaxSize,
		MaxAge:     conf.MaxAge,
	}
}
