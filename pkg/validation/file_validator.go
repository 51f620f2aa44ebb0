package validation

import (
	"mime"
	"strings"

	apperrors "go-cane-inspector/internal/errors"
)

// MaxFileSize is the largest accepted upload, inclusive
const MaxFileSize int64 = 16 * 1024 * 1024

// AllowedMIMETypes is the image allow-list shared with the analysis server
var AllowedMIMETypes = []string{
	"image/png",
	"image/jpeg",
	"image/jpg",
	"image/bmp",
	"image/tiff",
}

// FileValidator checks candidate files against type and size limits
type FileValidator struct {
	allowed map[string]struct{}
	maxSize int64
}

// NewFileValidator creates a validator with the default allow-list and limit
func NewFileValidator() *FileValidator {
	return NewFileValidatorWithOptions(AllowedMIMETypes, MaxFileSize)
}

// NewFileValidatorWithOptions creates a validator with a custom allow-list and limit
func NewFileValidatorWithOptions(mimeTypes []string, maxSize int64) *FileValidator {
	allowed := make(map[string]struct{}, len(mimeTypes))
	for _, t := range mimeTypes {
		allowed[strings.ToLower(t)] = struct{}{}
	}
	return &FileValidator{allowed: allowed, maxSize: maxSize}
}

// Validate returns nil, an invalid_file_type error or a file_too_large error.
// Type is checked first.
func (v *FileValidator) Validate(mimeType string, size int64) error {
	if !v.IsAllowedType(mimeType) {
		return apperrors.NewInvalidFileTypeError(mimeType)
	}
	if size > v.maxSize {
		return apperrors.NewFileTooLargeError(size, v.maxSize)
	}
	return nil
}

// IsAllowedType ignores case and media type parameters
func (v *FileValidator) IsAllowedType(mimeType string) bool {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return false
	}
	_, ok := v.allowed[mediaType]
	return ok
}

// MaxSize returns the inclusive size limit in bytes
func (v *FileValidator) MaxSize() int64 {
	return v.maxSize
}
