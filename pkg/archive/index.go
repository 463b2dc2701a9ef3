package archive

import (
	"path"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/ray-d-song/bookimg/pkg/utils"
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".svg":  true,
	".webp": true,
	".bmp":  true,
}

// IsImageName reports whether name carries a known image extension
func IsImageName(name string) bool {
	return imageExtensions[strings.ToLower(path.Ext(name))]
}

// Index maps archive paths to canonical entry names. It is immutable once built and
// safe for concurrent readers.
type Index struct {
	entries  map[string]string
	images   []string
	imageSet map[string]struct{}
	total    int
}

func newIndex(names []string) *Index {
	idx := &Index{
		entries:  make(map[string]string, len(names)*2),
		imageSet: make(map[string]struct{}),
	}

	for _, name := range names {
		if _, ok := idx.entries[name]; !ok {
			idx.entries[name] = name
		}
		if IsImageName(name) {
			if _, ok := idx.imageSet[name]; !ok {
				idx.imageSet[name] = struct{}{}
				idx.images = append(idx.images, name)
			}
		}
		idx.total++
	}

	// Lowercased aliases never shadow an exact entry name
	for _, name := range names {
		lower := strings.ToLower(name)
		if _, ok := idx.entries[lower]; !ok {
			idx.entries[lower] = name
		}
	}

	return idx
}

// FindEntry returns the canonical name of the first candidate present in the index.
// Each candidate is tried exactly, then lowercased, before moving to the next.
func (idx *Index) FindEntry(candidates ...string) (string, bool) {
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		if name, ok := idx.entries[candidate]; ok {
			return name, true
		}
		if name, ok := idx.entries[strings.ToLower(candidate)]; ok {
			return name, true
		}
	}
	return "", false
}

// FindByFilename returns the first image entry whose file name matches name,
// ignoring case. When several directories hold the same file name, which one is
// returned is unspecified.
func (idx *Index) FindByFilename(name string) (string, bool) {
	name = strings.ToLower(path.Base(name))
	if name == "" || name == "." || name == "/" {
		return "", false
	}

	for _, entry := range idx.images {
		lower := strings.ToLower(entry)
		if lower == name || strings.HasSuffix(lower, "/"+name) {
			return entry, true
		}
	}
	return "", false
}

// IsImage reports whether the canonical entry name was recognised as an image
func (idx *Index) IsImage(name string) bool {
	_, ok := idx.imageSet[name]
	return ok
}

// Images returns the canonical image entry names in enumeration order
func (idx *Index) Images() []string {
	out := make([]string, len(idx.images))
	copy(out, idx.images)
	return out
}

// Len returns the number of entries the index was built from
func (idx *Index) Len() int {
	return idx.total
}

type indexSlot struct {
	key   Key
	index *Index
}

// IndexCache builds and keeps one Index per archive path
type IndexCache struct {
	source Source
	log    *logrus.Entry

	mu     sync.RWMutex
	slots  map[string]indexSlot
	builds singleflight.Group
}

// NewIndexCache creates an IndexCache backed by source
func NewIndexCache(source Source, log *logrus.Entry) *IndexCache {
	return &IndexCache{
		source: source,
		log:    utils.Component(log, "archive-index"),
		slots:  make(map[string]indexSlot),
	}
}

// Get returns the index for key, building it on first use. An unreadable archive
// produces an empty index rather than an error.
func (c *IndexCache) Get(key Key) *Index {
	if idx, ok := c.lookup(key); ok {
		return idx
	}

	v, _, _ := c.builds.Do(key.ID(), func() (interface{}, error) {
		// Another caller may have finished the build while we waited for the group
		if idx, ok := c.lookup(key); ok {
			return idx, nil
		}

		idx := c.build(key)

		c.mu.Lock()
		c.slots[key.Path] = indexSlot{key: key, index: idx}
		c.mu.Unlock()

		return idx, nil
	})

	return v.(*Index)
}

func (c *IndexCache) lookup(key Key) (*Index, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	slot, ok := c.slots[key.Path]
	if !ok || !slot.key.Equal(key) {
		return nil, false
	}
	return slot.index, true
}

func (c *IndexCache) build(key Key) *Index {
	log := c.log.WithField("archive", key.Path)

	names, err := c.source.Entries(key)
	if err != nil {
		log.Warnf("Archive unreadable, using empty index: %v", err)
		return newIndex(nil)
	}

	idx := newIndex(names)
	log.Debugf("Indexed %d entries, %d images", idx.Len(), len(idx.images))
	return idx
}

// Clear drops every cached index
func (c *IndexCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slots = make(map[string]indexSlot)
}
