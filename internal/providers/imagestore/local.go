package imagestore

import (
	"context"
	"path"
	"time"

	"github.com/google/uuid"

	"agrinix/internal/domain"
	"agrinix/internal/storage"
)

// Local stores images on disk through a storage.FileStore.
type Local struct {
	files    *storage.FileStore
	maxBytes int
	now      func() time.Time
}

// NewLocal wraps files as an image store.
func NewLocal(files *storage.FileStore, maxBytes int) *Local {
	return &Local{files: files, maxBytes: maxBytes, now: time.Now}
}

// Upload writes data under crops/YYYY/MM and returns its served URL.
func (l *Local) Upload(ctx context.Context, data []byte, mimeType string) (domain.ImageRef, error) {
	if err := validate(data, l.maxBytes); err != nil {
		return domain.ImageRef{}, err
	}
	key := path.Join("crops", l.now().UTC().Format("2006/01"), uuid.NewString()+extension(mimeType))
	stored, err := l.files.Write(ctx, key, data)
	if err != nil {
		return domain.ImageRef{}, &UnavailableError{Provider: "local", Err: err}
	}
	return domain.ImageRef{URL: l.files.URL(stored), PublicID: stored}, nil
}

var _ domain.ImageStore = (*Local)(nil)
