// Package memcache holds decoded images and raw encoded image bytes in two
// independent byte-bounded LRU stores.
package memcache

import (
	"crypto/sha1"
	"encoding/hex"
	"image"

	"github.com/VictoriaMetrics/metrics"
	"github.com/sirupsen/logrus"

	"github.com/ray-d-song/bookimg/pkg/utils"
)

// DefaultFraction is the share of available memory given to decoded images
const DefaultFraction = 0.125

var (
	decodedEvictedBytes = metrics.NewCounter(`bookimg_memcache_evicted_bytes_total{class="decoded"}`)
	rawEvictedBytes     = metrics.NewCounter(`bookimg_memcache_evicted_bytes_total{class="raw"}`)
)

// Options configures a Cache
type Options struct {
	// Fraction of available memory for the decoded class; raw bytes get half of it
	Fraction float64
	// Available reports available system memory in bytes, defaults to utils.AvailableMemory
	Available func() int64
	Logger    *logrus.Entry
}

// Stats is a point-in-time view of both stores
type Stats struct {
	DecodedEntries int
	DecodedUsage   int64
	DecodedBudget  int64
	RawEntries     int
	RawUsage       int64
	RawBudget      int64
}

// Cache is the in-memory tier
type Cache struct {
	decoded   *Store[*image.NRGBA]
	raw       *Store[[]byte]
	fraction  float64
	available func() int64
	log       *logrus.Entry
}

// New creates a Cache with budgets derived from available memory
func New(opts Options) *Cache {
	if opts.Fraction <= 0 || opts.Fraction > 1 {
		opts.Fraction = DefaultFraction
	}
	if opts.Available == nil {
		opts.Available = utils.AvailableMemory
	}

	c := &Cache{
		fraction:  opts.Fraction,
		available: opts.Available,
		log:       utils.Component(opts.Logger, "memcache"),
	}

	decodedBudget, rawBudget := c.budgets()
	c.decoded = NewStore(decodedBudget, decodedSize, func(key string, size int64) {
		decodedEvictedBytes.Add(int(size))
		c.log.Tracef("Evicted decoded %s (%s)", key, utils.ByteCountIEC(size))
	})
	c.raw = NewStore(rawBudget, rawSize, func(key string, size int64) {
		rawEvictedBytes.Add(int(size))
		c.log.Tracef("Evicted raw %s (%s)", key, utils.ByteCountIEC(size))
	})

	c.log.Debugf("Memory budgets: decoded %s, raw %s", utils.ByteCountIEC(decodedBudget), utils.ByteCountIEC(rawBudget))
	return c
}

func (c *Cache) budgets() (decoded int64, raw int64) {
	decoded = int64(float64(c.available()) * c.fraction)
	return decoded, decoded / 2
}

func decodedSize(img *image.NRGBA) int64 {
	if img == nil {
		return 0
	}
	return int64(len(img.Pix))
}

func rawSize(b []byte) int64 {
	return int64(len(b))
}

// CreateKey derives the cache key of imagePath inside the archive identified by
// archivePath. The same key is used by every tier.
func CreateKey(archivePath, imagePath string) string {
	h := sha1.New()
	h.Write([]byte(archivePath))
	h.Write([]byte{0})
	h.Write([]byte(imagePath))
	return hex.EncodeToString(h.Sum(nil))
}

// GetDecoded returns a decoded image
func (c *Cache) GetDecoded(key string) (*image.NRGBA, bool) {
	return c.decoded.Get(key)
}

// PutDecoded stores a decoded image
func (c *Cache) PutDecoded(key string, img *image.NRGBA) {
	if img == nil {
		return
	}
	if !c.decoded.Put(key, img) {
		c.log.Debugf("Decoded image %s larger than budget, not cached", key)
	}
}

// HasDecoded reports whether key is in the decoded store
func (c *Cache) HasDecoded(key string) bool {
	return c.decoded.Contains(key)
}

// GetRaw returns raw encoded bytes
func (c *Cache) GetRaw(key string) ([]byte, bool) {
	return c.raw.Get(key)
}

// PutRaw stores raw encoded bytes
func (c *Cache) PutRaw(key string, data []byte) {
	if len(data) == 0 {
		return
	}
	if !c.raw.Put(key, data) {
		c.log.Debugf("Raw image %s larger than budget, not cached", key)
	}
}

// HasRaw reports whether key is in the raw store
func (c *Cache) HasRaw(key string) bool {
	return c.raw.Contains(key)
}

// Clear empties both stores
func (c *Cache) Clear() {
	c.decoded.Clear()
	c.raw.Clear()
}

// TrimToBudget recomputes both budgets from current available memory and evicts
// down to them.
func (c *Cache) TrimToBudget() {
	decodedBudget, rawBudget := c.budgets()
	c.decoded.SetBudget(decodedBudget)
	c.raw.SetBudget(rawBudget)
	c.log.Debugf("Trimmed to budgets: decoded %s, raw %s", utils.ByteCountIEC(decodedBudget), utils.ByteCountIEC(rawBudget))
}

// Stats returns usage and budget of both stores
func (c *Cache) Stats() Stats {
	return Stats{
		DecodedEntries: c.decoded.Len(),
		DecodedUsage:   c.decoded.Usage(),
		DecodedBudget:  c.decoded.Budget(),
		RawEntries:     c.raw.Len(),
		RawUsage:       c.raw.Usage(),
		RawBudget:      c.raw.Budget(),
	}
}
