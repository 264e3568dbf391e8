// Package storage keeps user avatar images, either in an S3-compatible
// bucket or in a local directory served under /uploads.
package storage

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/taskmanager/internal/common"
)

// MaxAvatarSize is the largest accepted avatar upload in bytes.
const MaxAvatarSize = 5 << 20

var allowedExtensions = map[string]struct{}{
	".jpeg": {}, ".jpg": {}, ".png": {}, ".gif": {}, ".webp": {},
}

var allowedContentTypes = map[string]struct{}{
	"image/jpeg": {}, "image/jpg": {}, "image/png": {}, "image/gif": {}, "image/webp": {},
}

// AvatarStore persists avatar images and returns the URL they are served from.
type AvatarStore interface {
	Save(ctx context.Context, filename, contentType string, r io.Reader) (string, error)
	// Delete removes a previously saved avatar. Unknown URLs are ignored.
	Delete(ctx context.Context, url string) error
}

// ValidateImage checks an upload by extension, declared content type and size.
// Both the extension and the content type must name an allowed image format.
func ValidateImage(filename, contentType string, size int64) error {
	if size > MaxAvatarSize {
		return common.ErrorFileTooLarge
	}
	if _, ok := allowedExtensions[extension(filename)]; !ok {
		return common.ErrorUnsupportedFileType
	}
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	if _, ok := allowedContentTypes[ct]; !ok {
		return common.ErrorUnsupportedFileType
	}
	return nil
}

func extension(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}
