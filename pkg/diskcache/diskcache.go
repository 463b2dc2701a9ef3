// Package diskcache is the persistent tier: decoded bitmaps and raw encoded image
// bytes stored as md5-named files under a cache directory, bounded in size by an
// asynchronous oldest-first cleanup.
package diskcache

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/sirupsen/logrus"

	"github.com/ray-d-song/bookimg/pkg/utils"
)

const (
	DefaultMaxSize           int64 = 256 << 20
	DefaultCleanupTrigger          = 1.0
	DefaultCleanupThreshold        = 0.8
	DefaultRecomputeInterval       = 30 * time.Second
	DefaultRefreshAge              = time.Hour
)

const tempPrefix = ".tmp-"

var corruptTotal = metrics.NewCounter("bookimg_diskcache_corrupt_total")

// Options configures a Cache
type Options struct {
	Directory string
	// MaxSize is the total ceiling in bytes, split evenly between the two classes
	MaxSize int64
	// CleanupTrigger is the fraction of a class ceiling the usage estimate must
	// exceed before a cleanup is scheduled
	CleanupTrigger float64
	// CleanupThreshold is the fraction of a class ceiling a cleanup shrinks to
	CleanupThreshold float64
	// RecomputeInterval is the minimum time between two scans of a class directory
	RecomputeInterval time.Duration
	// RefreshAge is the modification age after which a read touches the file.
	// Zero touches on every read.
	RefreshAge time.Duration
	Logger     *logrus.Entry
}

// Cache is the persistent tier
type Cache struct {
	directory         string
	trigger           float64
	threshold         float64
	recomputeInterval time.Duration
	refreshAge        time.Duration

	decoded *class
	raw     *class

	cleanups sync.WaitGroup
	log      *logrus.Entry
}

// New creates the class directories under opts.Directory and seeds the usage
// estimate of each class from what is already on disk.
func New(opts Options) (*Cache, error) {
	if opts.Directory == "" {
		return nil, errors.New("diskcache: empty cache directory")
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}
	if opts.CleanupTrigger <= 0 {
		opts.CleanupTrigger = DefaultCleanupTrigger
	}
	if opts.CleanupThreshold <= 0 || opts.CleanupThreshold > 1 {
		opts.CleanupThreshold = DefaultCleanupThreshold
	}
	if opts.RecomputeInterval < 0 {
		opts.RecomputeInterval = 0
	}
	if opts.RefreshAge < 0 {
		opts.RefreshAge = 0
	}

	c := &Cache{
		directory:         opts.Directory,
		trigger:           opts.CleanupTrigger,
		threshold:         opts.CleanupThreshold,
		recomputeInterval: opts.RecomputeInterval,
		refreshAge:        opts.RefreshAge,
		log:               utils.Component(opts.Logger, "diskcache"),
	}
	c.decoded = newClass("decoded", ".nrgba", filepath.Join(opts.Directory, "decoded"), opts.MaxSize/2)
	c.raw = newClass("raw", ".raw", filepath.Join(opts.Directory, "raw"), opts.MaxSize/2)

	for _, cl := range c.classes() {
		if err := os.MkdirAll(cl.dir, os.ModePerm); err != nil {
			return nil, fmt.Errorf("could not create cache directory %s: %w", cl.dir, err)
		}

		files, size, err := cl.scan()
		if err != nil {
			return nil, fmt.Errorf("could not scan cache directory %s: %w", cl.dir, err)
		}
		cl.mu.Lock()
		cl.files = files
		cl.lastScan = time.Now()
		cl.mu.Unlock()
		cl.setUsage(size)
		c.log.Debugf("Disk cache %s: %d files, %s of %s", cl.name, len(files), utils.ByteCountIEC(size), utils.ByteCountIEC(cl.limit))

		if float64(size) > c.trigger*float64(cl.limit) {
			c.scheduleCleanup(cl)
		}
	}

	return c, nil
}

func (c *Cache) classes() []*class {
	return []*class{c.decoded, c.raw}
}

// fileName hashes key into the on-disk file name
func fileName(key string) string {
	h := md5.New()
	_, _ = io.WriteString(h, key)
	return hex.EncodeToString(h.Sum(nil))
}

// LoadDecoded returns the decoded image stored under key. Missing, empty and
// corrupt files are misses.
func (c *Cache) LoadDecoded(key string) (*image.NRGBA, bool) {
	data, ok := c.read(c.decoded, key)
	if !ok {
		return nil, false
	}

	img, err := decodeBitmap(data)
	if err != nil {
		corruptTotal.Inc()
		c.log.WithField("key", key).Debugf("Dropping corrupt bitmap: %v", err)
		c.remove(c.decoded, key)
		return nil, false
	}
	return img, true
}

// LoadRaw returns the raw bytes stored under key
func (c *Cache) LoadRaw(key string) ([]byte, bool) {
	return c.read(c.raw, key)
}

// SaveDecoded stores img under key
func (c *Cache) SaveDecoded(key string, img *image.NRGBA) error {
	if img == nil || img.Rect.Empty() {
		return errors.New("diskcache: empty image")
	}
	return c.write(c.decoded, key, encodeBitmap(img))
}

// SaveRaw stores raw encoded bytes under key
func (c *Cache) SaveRaw(key string, data []byte) error {
	if len(data) == 0 {
		return errors.New("diskcache: empty data")
	}
	return c.write(c.raw, key, data)
}

func (c *Cache) read(cl *class, key string) ([]byte, bool) {
	if key == "" {
		return nil, false
	}
	file := cl.path(fileName(key))

	info, err := os.Stat(file)
	if err != nil || info.Size() == 0 {
		return nil, false
	}

	data, err := os.ReadFile(file)
	if err != nil || len(data) == 0 {
		return nil, false
	}

	if time.Since(info.ModTime()) >= c.refreshAge {
		now := time.Now()
		if err := os.Chtimes(file, now, now); err != nil {
			c.log.WithField("key", key).Debugf("Failed to refresh timestamp: %v", err)
		}
	}
	return data, true
}

func (c *Cache) write(cl *class, key string, data []byte) error {
	if key == "" {
		return errors.New("diskcache: empty cache key")
	}
	file := cl.path(fileName(key))

	var previous int64
	info, err := os.Stat(file)
	replaced := err == nil
	if replaced {
		previous = info.Size()
	}

	tmp, err := os.CreateTemp(cl.dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for key %s: %w", key, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), file); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to store key %s: %w", key, err)
	}

	cl.track(cacheFile{path: file, size: int64(len(data)), mtime: time.Now()}, replaced)
	usage := cl.addUsage(int64(len(data)) - previous)
	if float64(usage) > c.trigger*float64(cl.limit) {
		c.scheduleCleanup(cl)
	}
	return nil
}

func (c *Cache) remove(cl *class, key string) {
	file := cl.path(fileName(key))
	info, err := os.Stat(file)
	if err != nil {
		return
	}
	if err := os.Remove(file); err == nil {
		cl.addUsage(-info.Size())
		cl.mu.Lock()
		cl.forget(map[string]bool{file: true})
		cl.mu.Unlock()
	}
}

// Clear deletes every file of both classes
func (c *Cache) Clear() error {
	var errs []error
	for _, cl := range c.classes() {
		entries, err := os.ReadDir(cl.dir)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			if err := os.Remove(filepath.Join(cl.dir, entry.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
		}
		cl.mu.Lock()
		cl.files = nil
		cl.mu.Unlock()
		cl.setUsage(0)
	}

	c.log.Infof("Cleared disk cache at %s", c.directory)
	return errors.Join(errs...)
}

// Usage returns the usage estimates of the decoded and raw classes in bytes
func (c *Cache) Usage() (decoded int64, raw int64) {
	return c.decoded.usage(), c.raw.usage()
}

// Limit returns the per-class ceiling in bytes
func (c *Cache) Limit() int64 {
	return c.decoded.limit
}

// Directory returns the cache root
func (c *Cache) Directory() string {
	return c.directory
}

// Wait blocks until every scheduled cleanup has finished
func (c *Cache) Wait() {
	c.cleanups.Wait()
}
