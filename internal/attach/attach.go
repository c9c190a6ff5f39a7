// Package attach stores post attachments on local disk under random names and
// serves them read-only.
package attach

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultURLPrefix is where attachments are mounted on the API router.
const DefaultURLPrefix = "/uploads/"

var ErrNotAttachment = errors.New("attach: url is not an attachment")

type Store struct {
	dir    string
	prefix string
	now    func() time.Time
}

// New creates dir if needed. prefix is the public URL prefix, e.g. "/uploads/".
func New(dir, prefix string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("attach: create dir: %w", err)
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Store{dir: dir, prefix: prefix, now: time.Now}, nil
}

// URLPrefix is the public prefix of stored files, always ending in "/".
func (s *Store) URLPrefix() string { return s.prefix }

// Save writes r under a fresh uuid name that keeps the lowercased extension of
// originalName, and returns the public URL of the file.
func (s *Store) Save(originalName string, r io.Reader) (string, error) {
	name := strings.ReplaceAll(uuid.NewString(), "-", "") + strings.ToLower(filepath.Ext(path.Base(filepath.ToSlash(originalName))))

	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("attach: create file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("attach: write file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("attach: close file: %w", err)
	}
	return s.prefix + name, nil
}

// NameFromURL returns the file name behind a public URL produced by Save.
func (s *Store) NameFromURL(url string) (string, error) {
	name, ok := strings.CutPrefix(url, s.prefix)
	if !ok || name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", ErrNotAttachment
	}
	return name, nil
}

// Sweep removes files older than grace whose URL is not in referenced.
// It returns the number of files removed.
func (s *Store) Sweep(ctx context.Context, referenced map[string]bool, grace time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("attach: read dir: %w", err)
	}

	cutoff := s.now().Add(-grace)
	removed := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if e.IsDir() || referenced[s.prefix+e.Name()] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			return removed, fmt.Errorf("attach: remove %s: %w", e.Name(), err)
		}
		removed++
	}
	return removed, nil
}

// Handler serves stored files. Mount it at the store's prefix; directory listings are refused.
func (s *Store) Handler() http.Handler {
	fs := http.StripPrefix(strings.TrimSuffix(s.prefix, "/"), http.FileServer(http.Dir(s.dir)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		fs.ServeHTTP(w, r)
	})
}
