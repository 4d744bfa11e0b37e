package upload

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"medstore/internal/models"
	"medstore/internal/util"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MaxFileSize caps every upload
const MaxFileSize = 5 << 20

// Kind is a class of upload with its own directory and allow-list
type Kind struct {
	Dir     string
	Allowed []string
}

var (
	ProductImage = Kind{
		Dir:     "products",
		Allowed: []string{"image/jpeg", "image/png", "image/webp", "image/gif", "image/bmp", "image/tiff"},
	}
	PaymentProof = Kind{
		Dir:     "payment-proofs",
		Allowed: []string{"image/jpeg", "image/png", "application/pdf"},
	}
)

// File is a stored upload
type File struct {
	Name        string `json:"filename"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	path        string
}

// Store writes uploads under a root directory served at URLPrefix
type Store struct {
	root      string
	urlPrefix string
	logger    *zap.Logger
}

// NewStore creates the upload directories
func NewStore(root, urlPrefix string) (*Store, error) {
	for _, kind := range []Kind{ProductImage, PaymentProof} {
		if err := os.MkdirAll(filepath.Join(root, kind.Dir), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create upload dir: %w", err)
		}
	}
	return &Store{root: root, urlPrefix: strings.TrimRight(urlPrefix, "/"), logger: util.GetLogger()}, nil
}

// Root is the directory uploads are written to
func (s *Store) Root() string {
	return s.root
}

// Save validates the content of r against kind and stores it under a
// random name. The client's filename and content type are never used.
func (s *Store) Save(kind Kind, r io.Reader) (*File, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: file is empty", models.ErrInvalidInput)
	}
	if len(data) > MaxFileSize {
		return nil, fmt.Errorf("%w: file exceeds %d MB", models.ErrInvalidInput, MaxFileSize>>20)
	}

	mt := mimetype.Detect(data)
	if !allowed(mt, kind.Allowed) {
		s.logger.Warn("Upload blocked", zap.String("detected", mt.String()), zap.String("kind", kind.Dir))
		return nil, fmt.Errorf("%w: file type %s is not allowed", models.ErrInvalidInput, mt.String())
	}

	name := uuid.New().String() + mt.Extension()
	full := filepath.Join(s.root, kind.Dir, name)
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	return &File{
		Name:        name,
		URL:         path.Join(s.urlPrefix, kind.Dir, name),
		ContentType: mt.String(),
		Size:        int64(len(data)),
		path:        full,
	}, nil
}

func allowed(mt *mimetype.MIME, list []string) bool {
	for _, m := range list {
		if mt.Is(m) {
			return true
		}
	}
	return false
}

// Remove deletes a stored upload; a missing file is not an error
func (s *Store) Remove(f *File) error {
	if f == nil || f.path == "" {
		return nil
	}
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// RemoveByName deletes an upload of the given kind by its stored name. Only
// the base name is used, so the path cannot leave the kind's directory.
func (s *Store) RemoveByName(kind Kind, name string) error {
	base := filepath.Base(name)
	if base == "." || base == ".." || base == string(filepath.Separator) {
		return fmt.Errorf("%w: bad upload name %q", models.ErrInvalidInput, name)
	}
	return s.Remove(&File{Name: base, path: filepath.Join(s.root, kind.Dir, base)})
}
