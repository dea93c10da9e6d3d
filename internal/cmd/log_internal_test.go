package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/AdguardTeam/WebStats/internal/configmgr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	t.Parallel()

	t.Run("option_file", func(t *testing.T) {
		t.Parallel()

		logFile := filepath.Join(t.TempDir(), "webstats.log")
		l := newLogger(configmgr.Default().Log, &options{logFile: logFile})
		l.Info("test message", "key", "value")
		l.Debug("debug message")

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)

		assert.Contains(t, string(data), "test message")
		assert.Contains(t, string(data), "key=value")
		assert.NotContains(t, string(data), "debug message")
	})

	t.Run("config_file_verbose", func(t *testing.T) {
		t.Parallel()

		conf := configmgr.Default().Log
		conf.File = filepath.Join(t.TempDir(), "webstats.log")
		conf.Verbose = true

		l := newLogger(conf, &options{})
		l.Debug("debug message")

		data, err := os.ReadFile(conf.File)
		require.NoError(t, err)

		assert.Contains(t, string(data), "debug message")
	})

	t.Run("option_overrides_config", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		conf := configmgr.Default().Log
		conf.File = filepath.Join(dir, "config.log")
		optFile := filepath.Join(dir, "option.log")

		newLogger(conf, &options{logFile: optFile}).Info("test message")

		_, err := os.Stat(optFile)
		require.NoError(t, err)

		_, err = os.Stat(conf.File)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}
