package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ErrNotFound indicates the requested entry does not exist in the archive
var ErrNotFound = errors.New("entry not found")

// Source gives access to the contents of archives
type Source interface {
	// Entries lists every non-directory entry name in archive order
	Entries(key Key) ([]string, error)
	// ReadEntry returns the full contents of the named entry
	ReadEntry(ctx context.Context, key Key, name string) ([]byte, error)
}

// openArchive is one open zip handle. refs and retired are guarded by the
// ZipSource mutex; a retired handle is closed when its last reader releases it.
type openArchive struct {
	key    Key
	reader *zip.ReadCloser
	files  map[string]*zip.File

	refs    int
	retired bool
	closed  bool
}

// ZipSource reads zip archives from disk, keeping one open handle per archive path.
// A handle is reopened when the Key for its path changes; the old one stays usable
// by reads already in progress.
type ZipSource struct {
	mu      sync.Mutex
	handles map[string]*openArchive
}

// NewZipSource creates a new ZipSource
func NewZipSource() *ZipSource {
	return &ZipSource{
		handles: make(map[string]*openArchive),
	}
}

// acquire returns the handle for key with a reference held. Callers must release it.
func (s *ZipSource) acquire(key Key) (*openArchive, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.handles[key.Path]; ok {
		if h.key.Equal(key) {
			h.refs++
			return h, nil
		}
		delete(s.handles, key.Path)
		s.retire(h)
	}

	zipReader, err := zip.OpenReader(key.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive '%s': %w", key.Path, err)
	}

	h := &openArchive{
		key:    key,
		reader: zipReader,
		files:  make(map[string]*zip.File, len(zipReader.File)),
		refs:   1,
	}
	for _, f := range zipReader.File {
		if _, dup := h.files[f.Name]; !dup {
			h.files[f.Name] = f
		}
	}
	s.handles[key.Path] = h

	return h, nil
}

func (s *ZipSource) release(h *openArchive) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h.refs--
	if h.retired && h.refs == 0 {
		s.closeHandle(h)
	}
}

// retire marks h for closing once unused. Callers hold s.mu.
func (s *ZipSource) retire(h *openArchive) error {
	h.retired = true
	if h.refs == 0 {
		return s.closeHandle(h)
	}
	return nil
}

func (s *ZipSource) closeHandle(h *openArchive) error {
	if h.closed {
		return nil
	}
	h.closed = true
	return h.reader.Close()
}

// Entries lists every non-directory entry in key's archive
func (s *ZipSource) Entries(key Key) ([]string, error) {
	h, err := s.acquire(key)
	if err != nil {
		return nil, err
	}
	defer s.release(h)

	names := make([]string, 0, len(h.reader.File))
	for _, f := range h.reader.File {
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			continue
		}
		names = append(names, f.Name)
	}
	return names, nil
}

// ReadEntry reads the named entry. The context is checked before the entry is opened;
// a read already in progress runs to completion.
func (s *ZipSource) ReadEntry(ctx context.Context, key Key, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h, err := s.acquire(key)
	if err != nil {
		return nil, err
	}
	defer s.release(h)

	f, ok := h.files[name]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrNotFound, name)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open entry '%s': %w", name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read entry '%s': %w", name, err)
	}
	return data, nil
}

// Close releases every open archive handle. Handles still being read from are
// closed when their reads finish.
func (s *ZipSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for p, h := range s.handles {
		if err := s.retire(h); err != nil {
			errs = append(errs, err)
		}
		delete(s.handles, p)
	}
	return errors.Join(errs...)
}
