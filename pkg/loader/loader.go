// Package loader resolves image references inside archives and serves decoded
// images through the memory, disk and archive tiers.
package loader

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net/url"
	"path"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/ray-d-song/bookimg/pkg/archive"
	"github.com/ray-d-song/bookimg/pkg/diskcache"
	"github.com/ray-d-song/bookimg/pkg/memcache"
	"github.com/ray-d-song/bookimg/pkg/utils"
)

// ErrUnavailable is returned when an image cannot be produced by any tier. It is
// never returned for a cancelled request.
var ErrUnavailable = errors.New("image unavailable")

// Request identifies an image reference as written in a chapter
type Request struct {
	Archive archive.Key
	// Ref is the reference exactly as it appears in markup
	Ref string
	// ChapterPath is the archive entry of the referencing chapter, may be empty
	ChapterPath string
	// BaseDir is the package base directory, may be empty
	BaseDir string
}

// Result is delivered by Go
type Result struct {
	Request Request
	Image   *image.NRGBA
	Err     error
}

// Options configures a Loader
type Options struct {
	Source archive.Source
	Index  *archive.IndexCache
	Memory *memcache.Cache
	// Disk is optional
	Disk         *diskcache.Cache
	MaxDimension int
	MaxPixels    int
	Logger       *logrus.Entry
}

// Loader walks the tier chain for image requests
type Loader struct {
	source       archive.Source
	index        *archive.IndexCache
	memory       *memcache.Cache
	disk         *diskcache.Cache
	maxDimension int
	maxPixels    int
	log          *logrus.Entry

	flights singleflight.Group
}

// New creates a Loader. Source, Index and Memory are required.
func New(opts Options) *Loader {
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = DefaultMaxDimension
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = DefaultMaxPixels
	}
	log := utils.Component(opts.Logger, "loader")
	if opts.Index == nil {
		opts.Index = archive.NewIndexCache(opts.Source, opts.Logger)
	}

	return &Loader{
		source:       opts.Source,
		index:        opts.Index,
		memory:       opts.Memory,
		disk:         opts.Disk,
		maxDimension: opts.MaxDimension,
		maxPixels:    opts.MaxPixels,
		log:          log,
	}
}

// Key returns the cache key of req: the archive identity plus the reference joined
// to the chapter's directory (or the base directory when no chapter is given).
func Key(req Request) string {
	ref := utils.StripFragment(strings.TrimSpace(req.Ref))
	if decoded, err := url.PathUnescape(ref); err == nil {
		ref = decoded
	}

	dir := req.BaseDir
	if req.ChapterPath != "" {
		dir = path.Dir(req.ChapterPath)
	}
	return memcache.CreateKey(req.Archive.ID(), utils.JoinEntry(dir, ref))
}

// EntryKey returns the cache key of a canonical archive entry
func EntryKey(key archive.Key, entry string) string {
	return memcache.CreateKey(key.ID(), entry)
}

// LoadImage returns the decoded image for req. The error is either wrapping
// ErrUnavailable or the context's error.
//
// Identical concurrent requests share one load, which is not cancelled when a
// single waiting caller gives up.
func (l *Loader) LoadImage(ctx context.Context, req Request) (*image.NRGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ref := strings.TrimSpace(req.Ref)
	if ref == "" || archive.IsRemoteReference(ref) {
		unavailableTotal.Inc()
		return nil, fmt.Errorf("%w: unsupported reference '%s'", ErrUnavailable, req.Ref)
	}

	key := Key(req)
	if img, ok := l.memory.GetDecoded(key); ok {
		hitsMemoryDecoded.Inc()
		return img, nil
	}

	shared := context.WithoutCancel(ctx)
	ch := l.flights.DoChan(key, func() (interface{}, error) {
		return l.load(shared, req, key)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*image.NRGBA), nil
	}
}

// Go runs LoadImage on its own goroutine and delivers the result on the returned
// channel, which receives exactly one value.
func (l *Loader) Go(ctx context.Context, req Request) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		img, err := l.LoadImage(ctx, req)
		out <- Result{Request: req, Image: img, Err: err}
	}()
	return out
}

func (l *Loader) load(ctx context.Context, req Request, key string) (*image.NRGBA, error) {
	log := l.log.WithFields(logrus.Fields{"archive": req.Archive.Path, "ref": req.Ref, "key": key})

	if img, ok := l.memory.GetDecoded(key); ok {
		hitsMemoryDecoded.Inc()
		return img, nil
	}

	if l.disk != nil {
		if img, ok := l.disk.LoadDecoded(key); ok {
			hitsDiskDecoded.Inc()
			log.Trace("Disk decoded hit")
			l.memory.PutDecoded(key, img)
			return img, nil
		}
	}

	if data, ok := l.memory.GetRaw(key); ok {
		img, err := l.decode(data)
		if err == nil {
			hitsMemoryRaw.Inc()
			log.Trace("Memory raw hit")
			l.storeDecoded(log, key, img)
			return img, nil
		}
		log.Debugf("Memory raw bytes not decodable: %v", err)
	}

	if l.disk != nil {
		if data, ok := l.disk.LoadRaw(key); ok {
			img, err := l.decode(data)
			if err == nil {
				hitsDiskRaw.Inc()
				log.Trace("Disk raw hit")
				l.memory.PutRaw(key, data)
				l.storeDecoded(log, key, img)
				return img, nil
			}
			log.Debugf("Disk raw bytes not decodable: %v", err)
		}
	}

	entry, err := archive.Resolve(l.index.Get(req.Archive), req.Ref, req.ChapterPath, req.BaseDir)
	if err != nil {
		unavailableTotal.Inc()
		log.Debugf("Unresolved: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	log = log.WithField("entry", entry)

	data, err := l.readEntry(ctx, req.Archive, entry)
	if err != nil {
		unavailableTotal.Inc()
		log.Warnf("Failed to read entry: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	l.storeRaw(log, key, data)

	img, err := l.decode(data)
	if err != nil {
		unavailableTotal.Inc()
		log.Warnf("Failed to decode: %v", err)
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	hitsArchive.Inc()
	l.storeDecoded(log, key, img)
	log.Debugf("Loaded %dx%d from archive", img.Rect.Dx(), img.Rect.Dy())

	return img, nil
}

// readEntry prefers raw bytes warmed under the entry's canonical key before
// reading the archive.
func (l *Loader) readEntry(ctx context.Context, key archive.Key, entry string) ([]byte, error) {
	if data, ok := l.memory.GetRaw(EntryKey(key, entry)); ok {
		return data, nil
	}

	data, err := l.source.ReadEntry(ctx, key, entry)
	if err != nil {
		return nil, err
	}
	archiveReadsTotal.Inc()
	archiveReadBytes.Add(len(data))
	return data, nil
}

func (l *Loader) decode(data []byte) (*image.NRGBA, error) {
	img, err := Decode(data, l.maxDimension, l.maxPixels)
	if err != nil {
		decodeFailuresTotal.Inc()
	}
	return img, err
}

func (l *Loader) storeRaw(log *logrus.Entry, key string, data []byte) {
	l.memory.PutRaw(key, data)
	if l.disk == nil {
		return
	}
	if err := l.disk.SaveRaw(key, data); err != nil {
		log.Debugf("Failed to persist raw bytes: %v", err)
	}
}

func (l *Loader) storeDecoded(log *logrus.Entry, key string, img *image.NRGBA) {
	l.memory.PutDecoded(key, img)
	if l.disk == nil {
		return
	}
	if err := l.disk.SaveDecoded(key, img); err != nil {
		log.Debugf("Failed to persist decoded image: %v", err)
	}
}

// WarmRaw makes the raw bytes of a canonical archive entry available in memory
// without decoding them, reading the archive only when neither memory nor disk
// holds them.
func (l *Loader) WarmRaw(ctx context.Context, key archive.Key, entry string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cacheKey := EntryKey(key, entry)
	if l.memory.HasRaw(cacheKey) {
		return nil
	}

	if l.disk != nil {
		if data, ok := l.disk.LoadRaw(cacheKey); ok {
			l.memory.PutRaw(cacheKey, data)
			return nil
		}
	}

	data, err := l.source.ReadEntry(ctx, key, entry)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	archiveReadsTotal.Inc()
	archiveReadBytes.Add(len(data))
	warmedTotal.Inc()

	l.storeRaw(l.log.WithFields(logrus.Fields{"archive": key.Path, "entry": entry}), cacheKey, data)
	return nil
}

// HasDecoded reports whether req is already decoded in memory
func (l *Loader) HasDecoded(req Request) bool {
	return l.memory.HasDecoded(Key(req))
}

// HasRaw reports whether the raw bytes of entry are in memory
func (l *Loader) HasRaw(key archive.Key, entry string) bool {
	return l.memory.HasRaw(EntryKey(key, entry))
}

// Images lists the image entries of the archive
func (l *Loader) Images(key archive.Key) []string {
	return l.index.Get(key).Images()
}

// Resolve returns the canonical entry req refers to
func (l *Loader) Resolve(req Request) (string, error) {
	return archive.Resolve(l.index.Get(req.Archive), req.Ref, req.ChapterPath, req.BaseDir)
}

// Index returns the archive's directory index
func (l *Loader) Index(key archive.Key) *archive.Index {
	return l.index.Get(key)
}
