package knowledge

import (
	"fmt"

	"github.com/gabriel-vasile/mimetype"
)

const (
	// PDFContentType is the only accepted upload type.
	PDFContentType = "application/pdf"
	// MaxUploadBytes is the largest accepted upload (10 MiB).
	MaxUploadBytes = 10 * 1024 * 1024
)

// Rejection reasons reported by ValidationError.
const (
	ReasonType  = "type"
	ReasonSize  = "size"
	ReasonEmpty = "empty"
)

// File is a document selected for upload.
type File struct {
	Name        string
	ContentType string // declared type; sniffed from Data when empty
	Data        []byte
}

// Size returns the file size in bytes.
func (f File) Size() int {
	return len(f.Data)
}

// ValidationError reports an upload rejected before any network call.
type ValidationError struct {
	Filename string
	Reason   string
	Detail   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid upload %q: %s", e.Filename, e.Detail)
}

// ValidateUpload checks that f is a PDF of at most MaxUploadBytes.
func ValidateUpload(f File) error {
	if f.Size() == 0 {
		return &ValidationError{Filename: f.Name, Reason: ReasonEmpty, Detail: "file is empty"}
	}

	contentType := f.ContentType
	if contentType == "" {
		contentType = mimetype.Detect(f.Data).String()
	}
	if !mimetype.EqualsAny(contentType, PDFContentType) {
		return &ValidationError{
			Filename: f.Name,
			Reason:   ReasonType,
			Detail:   fmt.Sprintf("content type %s is not %s", contentType, PDFContentType),
		}
	}

	if f.Size() > MaxUploadBytes {
		return &ValidationError{
			Filename: f.Name,
			Reason:   ReasonSize,
			Detail:   fmt.Sprintf("size %d exceeds %d bytes", f.Size(), MaxUploadBytes),
		}
	}
	return nil
}
