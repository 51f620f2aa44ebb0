package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"go-cane-inspector/internal/selection"
	"go-cane-inspector/pkg/validation"
)

// ImageSource loads one image into a selection candidate. Sources do not
// validate; they report the real size so the selection store can reject
// oversized images without the whole payload being buffered.
type ImageSource interface {
	Load(ctx context.Context, location string) (selection.File, error)
}

// readLimited reads at most limit+1 bytes. When the payload is larger than
// limit the returned data is truncated and size is limit+1.
func readLimited(r io.Reader, limit int64) ([]byte, int64, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read image: %w", err)
	}
	return data, int64(len(data)), nil
}

// baseName returns the last path element, or fallback for empty paths
func baseName(p, fallback string) string {
	name := path.Base(strings.TrimRight(p, "/"))
	if name == "." || name == "/" || name == "" {
		return fallback
	}
	return name
}

func sizeLimit(limit int64) int64 {
	if limit <= 0 {
		return validation.MaxFileSize
	}
	return limit
}
