package validation

import (
	"testing"

	apperrors "go-cane-inspector/internal/errors"
)

func TestFileValidator_AllowedTypes(t *testing.T) {
	validator := NewFileValidator()

	for _, mimeType := range []string{
		"image/png",
		"image/jpeg",
		"image/jpg",
		"image/bmp",
		"image/tiff",
		"IMAGE/PNG",
		"image/jpeg; charset=binary",
	} {
		if err := validator.Validate(mimeType, 1024); err != nil {
			t.Errorf("Expected %q to be accepted, got error: %v", mimeType, err)
		}
	}
}

func TestFileValidator_RejectedTypes(t *testing.T) {
	validator := NewFileValidator()

	for _, mimeType := range []string{
		"",
		"image/gif",
		"image/webp",
		"application/pdf",
		"text/plain",
		"image/svg+xml",
	} {
		err := validator.Validate(mimeType, 1024)
		if !apperrors.IsType(err, apperrors.ErrorTypeInvalidFileType) {
			t.Errorf("Expected invalid_file_type for %q, got: %v", mimeType, err)
		}
	}
}

func TestFileValidator_SizeBoundary(t *testing.T) {
	validator := NewFileValidator()

	tests := []struct {
		name    string
		size    int64
		wantErr bool
	}{
		{"empty file", 0, false},
		{"2 MB", 2 * 1024 * 1024, false},
		{"exactly 16 MiB", MaxFileSize, false},
		{"one byte over", MaxFileSize + 1, true},
		{"far over", 100 * 1024 * 1024, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.Validate("image/jpeg", tt.size)
			if tt.wantErr {
				if !apperrors.IsType(err, apperrors.ErrorTypeFileTooLarge) {
					t.Errorf("Expected file_too_large, got: %v", err)
				}
			} else if err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}
		})
	}
}

func TestFileValidator_TypeCheckedBeforeSize(t *testing.T) {
	err := NewFileValidator().Validate("image/gif", MaxFileSize+1)
	if !apperrors.IsType(err, apperrors.ErrorTypeInvalidFileType) {
		t.Errorf("Expected invalid_file_type to win over size, got: %v", err)
	}
}

func TestFileValidator_CustomOptions(t *testing.T) {
	validator := NewFileValidatorWithOptions([]string{"image/png"}, 10)

	if err := validator.Validate("image/png", 10); err != nil {
		t.Errorf("Expected boundary size to pass, got: %v", err)
	}
	if err := validator.Validate("image/jpeg", 1); err == nil {
		t.Error("Expected jpeg to be rejected by custom allow-list")
	}
	if validator.MaxSize() != 10 {
		t.Errorf("Expected max size 10, got %d", validator.MaxSize())
	}
}
