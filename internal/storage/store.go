package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrFileMissing is returned by Delete when the object is already gone.
var ErrFileMissing = errors.New("file missing")

const (
	BackendLocal = "local"
	BackendS3    = "s3"
)

// FileStore keeps attachments whose delivery failed.
type FileStore interface {
	// Save stores the content and returns the path later passed to Delete.
	Save(ctx context.Context, name, mimeType string, r io.Reader, size int64) (string, error)
	Delete(ctx context.Context, path string) error
	Backend() string
}

// ObjectName builds a collision free name that keeps the original extension.
func ObjectName(original string, now time.Time) string {
	base := path.Base(strings.ReplaceAll(original, "\\", "/"))
	ext := strings.ToLower(path.Ext(base))
	if len(ext) > 16 {
		ext = ""
	}
	return now.UTC().Format("2006/01/02") + "/" + uuid.NewString() + ext
}
