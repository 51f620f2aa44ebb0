package selection

import (
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// File is a candidate image handed over by a picker, drop target or source
type File struct {
	Name     string
	MIMEType string
	Data     []byte
	// DeclaredSize is the size reported by the source; zero means len(Data)
	DeclaredSize int64
}

// Size returns the declared size if known, otherwise the payload length
func (f File) Size() int64 {
	if f.DeclaredSize > 0 {
		return f.DeclaredSize
	}
	return int64(len(f.Data))
}

// ResolveMIMEType keeps a specific declared type and sniffs the content
// when the declaration is missing or generic.
func ResolveMIMEType(declared string, data []byte) string {
	if mediaType, _, err := mime.ParseMediaType(declared); err == nil {
		if mediaType != "application/octet-stream" && mediaType != "binary/octet-stream" {
			return mediaType
		}
	}
	if len(data) == 0 {
		return strings.TrimSpace(declared)
	}
	return mimetype.Detect(data).String()
}
