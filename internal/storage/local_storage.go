package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"

	apperrors "go-cane-inspector/internal/errors"
	"go-cane-inspector/internal/selection"
)

// LocalSource reads images from the local filesystem
type LocalSource struct {
	maxSize int64
}

// NewLocalSource creates a local source; maxSize <= 0 uses the upload limit
func NewLocalSource(maxSize int64) *LocalSource {
	return &LocalSource{maxSize: sizeLimit(maxSize)}
}

// Load reads the file at location. Files above the size limit are not read;
// the returned File only carries their size.
func (s *LocalSource) Load(ctx context.Context, location string) (selection.File, error) {
	if err := ctx.Err(); err != nil {
		return selection.File{}, err
	}

	info, err := os.Stat(location)
	if err != nil {
		return selection.File{}, apperrors.NewValidationError(fmt.Sprintf("cannot open %s", location), err)
	}
	if info.IsDir() {
		return selection.File{}, apperrors.NewValidationError(fmt.Sprintf("%s is a directory", location), nil)
	}

	name := filepath.Base(location)
	if info.Size() > s.maxSize {
		mt, err := mimetype.DetectFile(location)
		if err != nil {
			return selection.File{}, apperrors.NewValidationError(fmt.Sprintf("cannot read %s", location), err)
		}
		return selection.File{Name: name, MIMEType: mt.String(), DeclaredSize: info.Size()}, nil
	}

	f, err := os.Open(location)
	if err != nil {
		return selection.File{}, apperrors.NewValidationError(fmt.Sprintf("cannot open %s", location), err)
	}
	defer f.Close()

	data, size, err := readLimited(f, s.maxSize)
	if err != nil {
		return selection.File{}, apperrors.NewInternalError("failed to read local image", err)
	}

	return selection.File{
		Name:         name,
		MIMEType:     selection.ResolveMIMEType("", data),
		Data:         data,
		DeclaredSize: size,
	}, nil
}
