//go:build windows

package aghrenameio

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/AdguardTeam/golibs/errors"
)

// pendingFile is a [PendingFile] backed by a temporary [*os.File] in the
// directory of the destination.
type pendingFile struct {
	*os.File

	dst string
}

// type check
var _ PendingFile = (*pendingFile)(nil)

// Cleanup implements the [PendingFile] interface for *pendingFile.
func (f *pendingFile) Cleanup() (err error) {
	closeErr := f.Close()

	return errors.WithDeferred(os.Remove(f.Name()), closeErr)
}

// CloseReplace implements the [PendingFile] interface for *pendingFile.
func (f *pendingFile) CloseReplace() (err error) {
	err = f.Close()
	if err != nil {
		return fmt.Errorf("closing pending file: %w", err)
	}

	err = os.Rename(f.Name(), f.dst)
	if err != nil {
		return fmt.Errorf("replacing %q: %w", f.dst, err)
	}

	return nil
}

// newPendingFile creates the temporary file next to filePath, since renames
// across volumes fail.
func newPendingFile(filePath string, mode fs.FileMode) (f PendingFile, err error) {
	file, err := os.CreateTemp(filepath.Dir(filePath), "."+filepath.Base(filePath)+"*")
	if err != nil {
		return nil, fmt.Errorf("creating pending file: %w", err)
	}

	err = file.Chmod(mode)
	if err != nil {
		return nil, errors.WithDeferred(fmt.Errorf("setting mode: %w", err), file.Close())
	}

	return &pendingFile{
		File: file,
		dst:  filePath,
	}, nil
}
