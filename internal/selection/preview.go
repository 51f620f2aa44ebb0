package selection

import (
	"bytes"
	"encoding/base64"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"mime"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	apperrors "go-cane-inspector/internal/errors"
)

// Preview is the displayable form of a selected image
type Preview struct {
	DataURI string
	Format  string
	Width   int
	Height  int
}

// DecodePreview reads the image header and builds a data URI for display.
// Pixel data is not decoded.
func DecodePreview(f File) (*Preview, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(f.Data))
	if err != nil {
		return nil, apperrors.NewPreviewDecodeError(err)
	}

	mediaType, _, err := mime.ParseMediaType(f.MIMEType)
	if err != nil {
		mediaType = "image/" + format
	}

	return &Preview{
		DataURI: DataURI(mediaType, f.Data),
		Format:  format,
		Width:   cfg.Width,
		Height:  cfg.Height,
	}, nil
}

// DataURI encodes data as a base64 data URI
func DataURI(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
