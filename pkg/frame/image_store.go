package frame

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/nj-vs-vh/tunka-telemetry-server/pkg/errors"
)

// ImageRef is an opaque handle to a decoded image held by an ImageStore. It
// stays resolvable until the store revokes it.
type ImageRef struct {
	ID          uuid.UUID `json:"id"`
	Format      string    `json:"format"`
	ContentType string    `json:"content_type"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Size        int       `json:"size"`
	ReceivedAt  time.Time `json:"received_at"`
}

type storedImage struct {
	ref  *ImageRef
	data []byte
}

// ImageStore owns image bytes between decode and revocation.
type ImageStore struct {
	mut_images sync.RWMutex
	images     map[uuid.UUID]storedImage
}

func NewImageStore() *ImageStore {
	return &ImageStore{
		mut_images: sync.RWMutex{},
		images:     make(map[uuid.UUID]storedImage),
	}
}

func contentTypeFor(format string) string {
	switch format {
	case "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "bmp":
		return "image/bmp"
	case "tiff":
		return "image/tiff"
	case "webp":
		return "image/webp"
	}
	return "application/octet-stream"
}

// Create validates payload as an image and registers it under a new handle.
// The store takes ownership of payload.
func (s *ImageStore) Create(payload []byte, receivedAt time.Time) (*ImageRef, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Categorize(&errors.ImageDecode{Size: len(payload), Err: err}, errors.CategoryMalformed)
	}

	ref := &ImageRef{
		ID:          uuid.New(),
		Format:      format,
		ContentType: contentTypeFor(format),
		Width:       cfg.Width,
		Height:      cfg.Height,
		Size:        len(payload),
		ReceivedAt:  receivedAt,
	}

	s.mut_images.Lock()
	defer s.mut_images.Unlock()
	s.images[ref.ID] = storedImage{ref: ref, data: payload}

	return ref, nil
}

func (s *ImageStore) Get(id uuid.UUID) ([]byte, *ImageRef, bool) {
	s.mut_images.RLock()
	defer s.mut_images.RUnlock()

	img, has := s.images[id]
	if !has {
		return nil, nil, false
	}
	return img.data, img.ref, true
}

// Revoke releases the bytes behind a handle. Revoking twice is a no-op.
func (s *ImageStore) Revoke(id uuid.UUID) bool {
	s.mut_images.Lock()
	defer s.mut_images.Unlock()

	_, has := s.images[id]
	delete(s.images, id)
	return has
}

func (s *ImageStore) Len() int {
	s.mut_images.RLock()
	defer s.mut_images.RUnlock()
	return len(s.images)
}
