package validation

import (
	"fmt"
	"net/http"
)

// FileConstraints defines validation rules for uploaded bytes
type FileConstraints struct {
	AllowedMimeTypes map[string]string // detected type -> stored extension
	MaxSize          int64
}

// ImageConstraints defines validation rules for listing originals
var ImageConstraints = FileConstraints{
	AllowedMimeTypes: map[string]string{
		"image/jpeg": ".jpg",
		"image/png":  ".png",
		"image/webp": ".webp",
	},
	MaxSize: 25 << 20, // 25MB
}

// DetectedFile is what the content of an upload turned out to be.
type DetectedFile struct {
	ContentType string
	Extension   string
}

// ValidateFile checks size and magic numbers of data. The client supplied
// Content-Type and file name are ignored.
func ValidateFile(data []byte, constraints FileConstraints) (DetectedFile, error) {
	if len(data) == 0 {
		return DetectedFile{}, fmt.Errorf("file is empty")
	}
	if int64(len(data)) > constraints.MaxSize {
		maxMB := constraints.MaxSize / (1 << 20)
		return DetectedFile{}, fmt.Errorf("file too large: maximum size is %d MB", maxMB)
	}

	// http.DetectContentType reads max 512 bytes to determine MIME type
	detectedType := http.DetectContentType(data)

	ext, ok := constraints.AllowedMimeTypes[detectedType]
	if !ok {
		return DetectedFile{}, fmt.Errorf("invalid file type (detected: %s)", detectedType)
	}

	return DetectedFile{ContentType: detectedType, Extension: ext}, nil
}
