package service

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/agromarket-api/internal/models"
	appErrors "github.com/noah-isme/agromarket-api/pkg/errors"
	"github.com/noah-isme/agromarket-api/pkg/jobs"
)

// ImageCleanupTask is the task kind for deleting a replaced picture.
const ImageCleanupTask = "image.delete"

// ImageStore persists uploaded pictures and resolves them to URLs.
type ImageStore interface {
	Store(ctx context.Context, key string, r io.Reader) (string, error)
	URL(key string) (string, error)
	Delete(ctx context.Context, key string) error
}

// ImageConfig limits what may be uploaded.
type ImageConfig struct {
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

var mimeExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// ImageService validates product pictures and hands them to the configured store.
type ImageService struct {
	store   ImageStore
	cfg     ImageConfig
	allowed map[string]struct{}
	cleanup cleanupQueue
	logger  *zap.Logger
}

type cleanupQueue interface {
	Enqueue(task jobs.Task) error
}

// NewImageService constructs an ImageService.
func NewImageService(store ImageStore, cfg ImageConfig, logger *zap.Logger) *ImageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSizeBytes <= 0 {
		cfg.MaxFileSizeBytes = 5 * 1024 * 1024
	}
	if len(cfg.AllowedMIMEs) == 0 {
		cfg.AllowedMIMEs = []string{"image/jpeg", "image/png"}
	}
	allowed := make(map[string]struct{}, len(cfg.AllowedMIMEs))
	for _, mime := range cfg.AllowedMIMEs {
		allowed[strings.ToLower(strings.TrimSpace(mime))] = struct{}{}
	}
	return &ImageService{store: store, cfg: cfg, allowed: allowed, logger: logger}
}

// Upload stores a product picture under products/<productID>/ and returns its key.
func (s *ImageService) Upload(ctx context.Context, productID string, upload models.ImageUpload, r io.Reader) (string, error) {
	contentType := strings.ToLower(strings.TrimSpace(strings.SplitN(upload.ContentType, ";", 2)[0]))
	if _, ok := s.allowed[contentType]; !ok {
		return "", appErrors.Clone(appErrors.ErrValidation, "unsupported image type")
	}
	if upload.Size <= 0 || upload.Size > s.cfg.MaxFileSizeBytes {
		return "", appErrors.Clone(appErrors.ErrValidation, "image size is out of range")
	}

	ext := mimeExtensions[contentType]
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(upload.Filename))
	}
	key := "products/" + productID + "/" + uuid.NewString() + ext

	ref, err := s.store.Store(ctx, key, io.LimitReader(r, s.cfg.MaxFileSizeBytes))
	if err != nil {
		return "", appErrors.Internal(err, "failed to store image")
	}
	return ref, nil
}

// URL resolves a stored image reference. The default placeholder is returned unchanged.
func (s *ImageService) URL(ref string) string {
	if ref == "" || ref == models.DefaultProductImage {
		return models.DefaultProductImage
	}
	url, err := s.store.URL(ref)
	if err != nil {
		s.logger.Warn("failed to resolve image url", zap.String("ref", ref), zap.Error(err))
		return ref
	}
	return url
}

// UseCleanupQueue routes Remove through q so deletions are retried off the
// request path.
func (s *ImageService) UseCleanupQueue(q cleanupQueue) {
	s.cleanup = q
}

// Remove deletes a previously stored image. The placeholder is never deleted.
func (s *ImageService) Remove(ctx context.Context, ref string) {
	if ref == "" || ref == models.DefaultProductImage {
		return
	}
	if s.cleanup != nil {
		err := s.cleanup.Enqueue(jobs.Task{Kind: ImageCleanupTask, Key: ref})
		if err == nil {
			return
		}
		s.logger.Warn("cleanup queue rejected image, deleting inline", zap.String("ref", ref), zap.Error(err))
	}
	if err := s.store.Delete(ctx, ref); err != nil {
		s.logger.Warn("failed to delete replaced image", zap.String("ref", ref), zap.Error(err))
	}
}

// HandleCleanup is the jobs.Handler for ImageCleanupTask.
func (s *ImageService) HandleCleanup(ctx context.Context, task jobs.Task) error {
	if task.Kind != ImageCleanupTask {
		s.logger.Warn("unknown cleanup task", zap.String("kind", task.Kind))
		return nil
	}
	return s.store.Delete(ctx, task.Key)
}
