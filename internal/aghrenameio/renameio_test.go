package aghrenameio_test

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/AdguardTeam/WebStats/internal/aghrenameio"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testPerm is the common permission mode for tests.
const testPerm fs.FileMode = 0o644

// testError is the common error for tests.
const testError errors.Error = "test error"

// Common file data for tests.
var (
	oldData = []byte("1.2.3.4\t10")
	newData = []byte("5.6.7.8\t20")
)

// newOldFile is a test helper that returns the path to a file containing
// oldData.
func newOldFile(t *testing.T) (path string) {
	t.Helper()

	path = filepath.Join(t.TempDir(), "visitors_by_name")

	err := os.WriteFile(path, oldData, testPerm)
	require.NoError(t, err)

	return path
}

func TestWithDeferredCleanup(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		returned   error
		name       string
		wantErrMsg string
		wantData   []byte
	}{{
		returned:   nil,
		name:       "replace",
		wantErrMsg: "",
		wantData:   newData,
	}, {
		returned:   testError,
		name:       "cleanup",
		wantErrMsg: testError.Error(),
		wantData:   oldData,
	}}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			path := newOldFile(t)
			f, err := aghrenameio.NewPendingFile(path, testPerm)
			require.NoError(t, err)

			_, err = f.Write(newData)
			require.NoError(t, err)

			err = aghrenameio.WithDeferredCleanup(tc.returned, f)
			testutil.AssertErrorMsg(t, tc.wantErrMsg, err)

			got, err := os.ReadFile(path)
			require.NoError(t, err)

			assert.Equal(t, tc.wantData, got)

			entries, err := os.ReadDir(filepath.Dir(path))
			require.NoError(t, err)

			assert.Len(t, entries, 1)
		})
	}
}

func TestWriteFile(t *testing.T) {
	t.Parallel()

	t.Run("success", func(t *testing.T) {
		t.Parallel()

		path := newOldFile(t)
		err := aghrenameio.WriteFile(path, testPerm, func(w io.Writer) (werr error) {
			_, werr = w.Write(newData)

			return werr
		})
		require.NoError(t, err)

		got, err := os.ReadFile(path)
		require.NoError(t, err)

		assert.Equal(t, newData, got)
	})

	t.Run("new_file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "whois.gob")
		err := aghrenameio.WriteFile(path, testPerm, func(w io.Writer) (werr error) {
			_, werr = w.Write(newData)

			return werr
		})
		require.NoError(t, err)

		got, err := os.ReadFile(path)
		require.NoError(t, err)

		assert.Equal(t, newData, got)
	})

	t.Run("error", func(t *testing.T) {
		t.Parallel()

		path := newOldFile(t)
		err := aghrenameio.WriteFile(path, testPerm, func(w io.Writer) (werr error) {
			_, _ = w.Write(newData)

			return testError
		})
		require.ErrorIs(t, err, testError)

		got, err := os.ReadFile(path)
		require.NoError(t, err)

		assert.Equal(t, oldData, got)
	})

	t.Run("no_dir", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "missing", "file")
		err := aghrenameio.WriteFile(path, testPerm, func(w io.Writer) (werr error) {
			panic(testutil.UnexpectedCall(w))
		})
		assert.Error(t, err)
	})
}
