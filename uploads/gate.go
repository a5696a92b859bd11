package uploads

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"printportal-backend/apperr"
)

// Gate decides file admission before any bytes are persisted.
type Gate struct {
	allowed  map[string]struct{}
	maxBytes int64
}

// NewGate builds a gate over an extension allow-list (without dots) and a byte ceiling.
func NewGate(extensions []string, maxBytes int64) *Gate {
	allowed := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		allowed[strings.ToLower(strings.TrimPrefix(ext, "."))] = struct{}{}
	}
	return &Gate{allowed: allowed, maxBytes: maxBytes}
}

// MaxBytes returns the upload ceiling.
func (g *Gate) MaxBytes() int64 { return g.maxBytes }

// MaxMB returns the ceiling in whole megabytes, as shown to users.
func (g *Gate) MaxMB() int64 { return g.maxBytes / 1024 / 1024 }

// Extension returns the lowercased substring after the last dot, or "".
func Extension(name string) string {
	i := strings.LastIndex(name, ".")
	if i < 0 || i == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}

// Admit checks extension membership and declared size.
func (g *Gate) Admit(name string, size int64) error {
	if _, ok := g.allowed[Extension(name)]; !ok {
		return apperr.New(apperr.KindUnsupportedFileType, "Unsupported file type")
	}
	if size > g.maxBytes {
		return apperr.New(apperr.KindFileTooLarge, fmt.Sprintf("File too large. Max %d MB", g.MaxMB()))
	}
	if size < 0 {
		return apperr.Validation(map[string]string{"fileSize": "must not be negative"})
	}
	return nil
}

// GenerateKey builds an unpredictable, collision-free storage key embedding a
// timestamp, a random token and the original base name.
func GenerateKey(name string, now time.Time) string {
	return fmt.Sprintf("uploads/%d-%s-%s", now.UnixMilli(), uuid.NewString(), safeBase(name))
}

// safeBase keeps only the last path element so a client name cannot add directories.
func safeBase(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return "file"
	}
	return name
}

// Contain resolves key under root and verifies the result stays inside root.
// Absolute keys and traversal sequences that escape root are InvalidPath.
func Contain(root, key string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", apperr.Wrap(apperr.KindServerMisconfigured, "upload root unavailable", err)
	}
	if key == "" || filepath.IsAbs(key) || strings.HasPrefix(key, "/") || strings.HasPrefix(key, "\\") {
		return "", invalidPath()
	}
	resolved := filepath.Clean(filepath.Join(absRoot, filepath.FromSlash(key)))
	if !within(absRoot, resolved) || resolved == absRoot {
		return "", invalidPath()
	}
	if err := checkLinks(absRoot, resolved); err != nil {
		return "", err
	}
	return resolved, nil
}

// within reports whether path is root or lies beneath it.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// checkLinks follows symlinks through the part of path that already exists on
// disk and requires the real location to stay under the real root. Components
// that do not exist yet (a file about to be saved) are appended unchanged.
func checkLinks(root, path string) error {
	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return apperr.Wrap(apperr.KindServerMisconfigured, "upload root unavailable", err)
	}
	existing, rest := path, ""
	for {
		real, err := filepath.EvalSymlinks(existing)
		if err == nil {
			if !within(realRoot, filepath.Join(real, rest)) {
				return invalidPath()
			}
			return nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return invalidPath()
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return nil
		}
		rest = filepath.Join(filepath.Base(existing), rest)
		existing = parent
	}
}

// ContainLocator accepts either a root-relative key or an absolute path
// previously produced by Contain, and re-checks containment.
func ContainLocator(root, locator string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", apperr.Wrap(apperr.KindServerMisconfigured, "upload root unavailable", err)
	}
	if filepath.IsAbs(locator) {
		rel, err := filepath.Rel(absRoot, filepath.Clean(locator))
		if err != nil {
			return "", invalidPath()
		}
		locator = filepath.ToSlash(rel)
	}
	return Contain(absRoot, locator)
}

func invalidPath() error {
	return apperr.New(apperr.KindInvalidPath, "Invalid file path")
}
