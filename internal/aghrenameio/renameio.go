// Package aghrenameio writes the output files of a run, the WHOIS cache and
// the toplists, so that a reader never sees a partially written file.  On
// Unix it uses github.com/google/renameio/v2; on Windows the final rename is
// not guaranteed to be atomic.
package aghrenameio

import (
	"io"
	"io/fs"

	"github.com/AdguardTeam/golibs/errors"
)

// PendingFile is a temporary file that replaces its destination when it's
// closed.
type PendingFile interface {
	io.Writer

	// Cleanup closes and removes the temporary file leaving the destination
	// file intact.
	Cleanup() (err error)

	// CloseReplace closes the temporary file and puts it in place of the
	// destination file.  It must not be called concurrently.
	CloseReplace() (err error)
}

// NewPendingFile returns a pending file for the destination at filePath.  The
// destination file, once replaced, has the permissions mode.
func NewPendingFile(filePath string, mode fs.FileMode) (f PendingFile, err error) {
	return newPendingFile(filePath, mode)
}

// WithDeferredCleanup finishes file depending on returned: the file replaces
// its destination if returned is nil and is removed otherwise.  The error of
// the finishing is returned as a deferred one.
func WithDeferredCleanup(returned error, file PendingFile) (err error) {
	if returned != nil {
		return errors.WithDeferred(returned, file.Cleanup())
	}

	return errors.WithDeferred(nil, file.CloseReplace())
}

// WriteFile replaces the file at filePath with the data written by write.  If
// write returns an error, the file is left intact.
func WriteFile(filePath string, mode fs.FileMode, write func(w io.Writer) (err error)) (err error) {
	f, err := NewPendingFile(filePath, mode)
	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return err
	}
	defer func() { err = WithDeferredCleanup(err, f) }()

	return write(f)
}
