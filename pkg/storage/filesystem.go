package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage persists product images on disk under a base directory.
type LocalStorage struct {
	baseDir string
	signer  *SignedURLSigner
	baseURL string
}

// NewLocalStorage ensures the base directory exists and returns a handle.
// References returned by Store are signed download paths under baseURL when a
// signer is supplied, otherwise the bare key.
func NewLocalStorage(baseDir, baseURL string, signer *SignedURLSigner) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./static/product_pics"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create image directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir, signer: signer, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Store copies r into key and returns the stored reference.
func (s *LocalStorage) Store(ctx context.Context, key string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("prepare image directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create image file: %w", err)
	}
	defer file.Close() //nolint:errcheck
	if _, err := io.Copy(file, r); err != nil {
		return "", fmt.Errorf("write image stream: %w", err)
	}
	return key, nil
}

// URL returns a download URL for key. Signed when a signer is configured.
func (s *LocalStorage) URL(key string) (string, error) {
	if s.signer == nil {
		return s.baseURL + "/" + key, nil
	}
	token, _, err := s.signer.Generate(key)
	if err != nil {
		return "", err
	}
	return s.baseURL + "/" + token, nil
}

// OpenSigned validates token and opens the referenced image.
func (s *LocalStorage) OpenSigned(token string) (*os.File, error) {
	if s.signer == nil {
		return nil, fmt.Errorf("signed urls disabled")
	}
	key, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, err
	}
	return s.Open(key)
}

// Open returns a read-only handle for the stored file.
func (s *LocalStorage) Open(key string) (*os.File, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image file: %w", err)
	}
	return file, nil
}

// Delete removes a stored file if present.
func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	path, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete image file: %w", err)
	}
	return nil
}

// resolve keeps every key inside baseDir.
func (s *LocalStorage) resolve(key string) (string, error) {
	cleaned := filepath.Clean("/" + key)
	if cleaned == "/" {
		return "", fmt.Errorf("empty image key")
	}
	return filepath.Join(s.baseDir, cleaned), nil
}
