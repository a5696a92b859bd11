package uploads

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"printportal-backend/apperr"
)

// ErrFileMissing is returned when a locator points at nothing.
var ErrFileMissing = errors.New("file not found")

// Download is either a byte stream or a redirect target.
type Download struct {
	Body        io.ReadCloser
	Size        int64
	RedirectURL string
}

// PresignedUpload is a scoped, time-boxed credential for direct client upload.
type PresignedUpload struct {
	Key       string            `json:"pathname"`
	URL       string            `json:"url"`
	Fields    map[string]string `json:"fields,omitempty"`
	ExpiresAt time.Time         `json:"expiresAt"`
}

// Storage persists uploaded bytes addressed by an opaque locator.
type Storage interface {
	Save(ctx context.Context, key string, r io.Reader, size int64) (locator string, err error)
	Open(ctx context.Context, locator string) (*Download, error)
	Delete(ctx context.Context, locator string) error
}

// Presigner is implemented by backends that support direct client uploads.
type Presigner interface {
	PresignUpload(ctx context.Context, key string, maxBytes int64, ttl time.Duration) (*PresignedUpload, error)
}

// LocalStorage writes under a root directory. Every path is resolved with
// Contain, so nothing is read, written or removed outside root.
type LocalStorage struct {
	root   string
	logger *logrus.Entry
}

func NewLocalStorage(root string, logger *logrus.Entry) (*LocalStorage, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, err
	}
	return &LocalStorage{root: abs, logger: logger.WithField("component", "local-storage")}, nil
}

// Root returns the absolute upload root.
func (s *LocalStorage) Root() string { return s.root }

func (s *LocalStorage) resolve(locator string) (string, error) {
	path, err := ContainLocator(s.root, locator)
	if err != nil && apperr.Is(err, apperr.KindInvalidPath) {
		s.logger.WithFields(logrus.Fields{"security": true, "locator": locator}).Warn("path traversal attempt rejected")
	}
	return path, err
}

func (s *LocalStorage) Save(ctx context.Context, key string, r io.Reader, size int64) (string, error) {
	path, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", err
	}
	written, err := io.Copy(f, io.LimitReader(r, size+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && written > size {
		err = apperr.New(apperr.KindFileTooLarge, "uploaded file exceeds its declared size")
	}
	if err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return key, nil
}

func (s *LocalStorage) Open(ctx context.Context, locator string) (*Download, error) {
	path, err := s.resolve(locator)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrFileMissing
		}
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Download{Body: f, Size: info.Size()}, nil
}

func (s *LocalStorage) Delete(ctx context.Context, locator string) error {
	path, err := s.resolve(locator)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrFileMissing
		}
		return err
	}
	return nil
}
