// Package uploads stores listing images in Supabase Storage.
package uploads

import (
	"context"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	svcerrors "github.com/elghella/marketplace/internal/errors"
	"github.com/elghella/marketplace/internal/logging"
	"github.com/elghella/marketplace/internal/supabase"
)

// DefaultMaxBytes is the largest accepted image.
const DefaultMaxBytes = 5 << 20

// Allowed image types and the extension stored with them.
var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// Storage is the object store behind Service. *supabase.BucketClient
// satisfies it.
type Storage interface {
	Upload(ctx context.Context, path string, data []byte, contentType string, upsert bool) (*supabase.UploadResult, error)
	Remove(ctx context.Context, paths []string) error
	PublicURL(path string) string
}

// Result describes a stored image.
type Result struct {
	Path        string `json:"path"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

// Service validates and stores images under {user}/{resource}/.
type Service struct {
	storage   Storage
	maxBytes  int64
	resources map[string]bool
	logger    *logging.Logger
	newID     func() string
}

// New creates an upload service. Only the named resources accept uploads;
// with none every lower-case resource name is accepted.
func New(storage Storage, maxBytes int64, resources []string, logger *logging.Logger) *Service {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if logger == nil {
		logger = logging.Default()
	}
	allowed := make(map[string]bool, len(resources))
	for _, r := range resources {
		allowed[r] = true
	}
	return &Service{storage: storage, maxBytes: maxBytes, resources: allowed, logger: logger, newID: uuid.NewString}
}

// MaxBytes returns the size limit.
func (s *Service) MaxBytes() int64 { return s.maxBytes }

// Upload stores data as a new object and returns its public URL. The
// filename is only logged; the object name is generated.
func (s *Service) Upload(ctx context.Context, userID, resource, filename string, data []byte) (*Result, error) {
	if s.storage == nil {
		return nil, svcerrors.Unavailable("uploads are not configured", nil)
	}
	if userID == "" {
		return nil, svcerrors.Unauthorized("sign in to upload images")
	}
	if err := s.checkResource(resource); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, svcerrors.Validation("file", "file is empty")
	}
	if int64(len(data)) > s.maxBytes {
		return nil, svcerrors.TooLarge(s.maxBytes)
	}

	mime := mimetype.Detect(data)
	contentType := strings.SplitN(mime.String(), ";", 2)[0]
	ext, ok := allowedTypes[contentType]
	if !ok {
		return nil, svcerrors.Validation("file", "only jpeg, png, webp and gif images are accepted").
			WithDetails("content_type", contentType)
	}

	objectPath := path.Join(userID, resource, s.newID()+ext)
	if _, err := s.storage.Upload(ctx, objectPath, data, contentType, false); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithField("path", objectPath).Error("image upload failed")
		return nil, svcerrors.Unavailable("image storage failed", err)
	}

	s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"path":     objectPath,
		"filename": filename,
		"size":     len(data),
	}).Info("image uploaded")

	return &Result{
		Path:        objectPath,
		URL:         s.storage.PublicURL(objectPath),
		ContentType: contentType,
		Size:        len(data),
	}, nil
}

// Delete removes an object the user owns. objectPath may be the storage path
// or its public URL.
func (s *Service) Delete(ctx context.Context, userID, objectPath string) error {
	if s.storage == nil {
		return svcerrors.Unavailable("uploads are not configured", nil)
	}
	if userID == "" {
		return svcerrors.Unauthorized("sign in to delete images")
	}
	p := s.normalize(objectPath)
	if p == "" {
		return svcerrors.Validation("path", "path is required")
	}
	clean := path.Clean(p)
	if clean != p || !strings.HasPrefix(clean, userID+"/") {
		return svcerrors.Forbidden("image belongs to another user")
	}
	if err := s.storage.Remove(ctx, []string{clean}); err != nil {
		return svcerrors.Unavailable("image storage failed", err)
	}
	return nil
}

func (s *Service) normalize(p string) string {
	p = strings.TrimSpace(p)
	if base := s.storage.PublicURL(""); base != "" && strings.HasPrefix(p, base) {
		p = strings.TrimPrefix(p, base)
	}
	return strings.TrimPrefix(p, "/")
}

func (s *Service) checkResource(resource string) error {
	if len(s.resources) > 0 {
		if !s.resources[resource] {
			return svcerrors.NotFound("resource", resource)
		}
		return nil
	}
	if resource == "" {
		return svcerrors.Validation("resource", "resource is required")
	}
	for _, r := range resource {
		if (r < 'a' || r > 'z') && r != '_' {
			return svcerrors.Validation("resource", "resource name is invalid")
		}
	}
	return nil
}
