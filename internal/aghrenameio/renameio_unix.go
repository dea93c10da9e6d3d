//go:build unix

package aghrenameio

import (
	"fmt"
	"io/fs"

	"github.com/google/renameio/v2"
)

// pendingFile is a [PendingFile] backed by a [*renameio.PendingFile].
type pendingFile struct {
	*renameio.PendingFile
}

// type check
var _ PendingFile = pendingFile{}

// CloseReplace implements the [PendingFile] interface for pendingFile.
func (f pendingFile) CloseReplace() (err error) {
	return f.CloseAtomicallyReplace()
}

// newPendingFile creates the temporary file with [renameio.NewPendingFile].
func newPendingFile(filePath string, mode fs.FileMode) (f PendingFile, err error) {
	file, err := renameio.NewPendingFile(filePath, renameio.WithPermissions(mode))
	if err != nil {
		return nil, fmt.Errorf("creating pending file: %w", err)
	}

	return pendingFile{PendingFile: file}, nil
}
