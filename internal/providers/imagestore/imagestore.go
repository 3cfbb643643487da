// Package imagestore uploads crop images and hands back stable public URLs.
package imagestore

import (
	"fmt"
	"mime"
	"strings"

	"agrinix/internal/domain"
)

// DefaultMaxBytes is the upload ceiling applied when none is configured.
const DefaultMaxBytes = 5 * 1024 * 1024

// UnavailableError reports a provider failure that may clear on retry.
type UnavailableError struct {
	Provider string
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: upload unavailable: %v", e.Provider, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Retryable() bool { return true }

func validate(data []byte, maxBytes int) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: image is empty", domain.ErrInvalidInput)
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if len(data) > maxBytes {
		return fmt.Errorf("%w: image is %d bytes, limit is %d", domain.ErrInvalidInput, len(data), maxBytes)
	}
	return nil
}

// extension picks a file extension for mimeType, defaulting to .jpg.
func extension(mimeType string) string {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".jpg"
}
