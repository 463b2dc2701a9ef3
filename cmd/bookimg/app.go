package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ray-d-song/bookimg/pkg/archive"
	"github.com/ray-d-song/bookimg/pkg/config"
	"github.com/ray-d-song/bookimg/pkg/diskcache"
	"github.com/ray-d-song/bookimg/pkg/epub"
	"github.com/ray-d-song/bookimg/pkg/loader"
	"github.com/ray-d-song/bookimg/pkg/memcache"
	"github.com/ray-d-song/bookimg/pkg/prefetch"
	"github.com/ray-d-song/bookimg/pkg/utils"
)

// app holds the process-wide caches. Everything is built once here and passed
// down explicitly.
type app struct {
	cfg *config.Config
	log *logrus.Entry

	source     *archive.ZipSource
	index      *archive.IndexCache
	memory     *memcache.Cache
	disk       *diskcache.Cache
	loader     *loader.Loader
	prefetcher *prefetch.Prefetcher
}

func newApp(flags *globalFlags) (*app, error) {
	cfg, err := config.Load(flags.config)
	if err != nil {
		return nil, err
	}

	level := cfg.Log.Level
	if flags.logLevel != "" {
		level = flags.logLevel
	}
	logger, err := utils.InitLogger(level, cfg.Log.Directory)
	if err != nil {
		logger.Warnf("File logging disabled: %v", err)
	}
	log := logrus.NewEntry(logger)
	if cfg.ConfigFile != "" {
		log.Debugf("Configuration loaded from %s", cfg.ConfigFile)
	}

	a := &app{
		cfg:    cfg,
		log:    log,
		source: archive.NewZipSource(),
	}
	a.index = archive.NewIndexCache(a.source, log)
	a.memory = memcache.New(memcache.Options{
		Fraction: cfg.Memory.Fraction,
		Logger:   log,
	})

	// the persistent tier is best-effort: run without it if the directory is unusable
	disk, err := diskcache.New(diskcache.Options{
		Directory:         cfg.Cache.Directory,
		MaxSize:           cfg.Disk.MaxSize(),
		CleanupTrigger:    cfg.Disk.CleanupTrigger,
		CleanupThreshold:  cfg.Disk.CleanupThreshold,
		RecomputeInterval: cfg.Disk.RecomputeInterval(),
		RefreshAge:        cfg.Disk.RefreshAge(),
		Logger:            log,
	})
	if err != nil {
		log.Warnf("Disk cache disabled: %v", err)
	} else {
		a.disk = disk
	}

	a.loader = loader.New(loader.Options{
		Source:       a.source,
		Index:        a.index,
		Memory:       a.memory,
		Disk:         a.disk,
		MaxDimension: cfg.Image.MaxDimension,
		MaxPixels:    cfg.Image.MaxPixels,
		Logger:       log,
	})
	a.prefetcher = prefetch.New(a.loader, log)

	return a, nil
}

func (a *app) Close() {
	a.prefetcher.Close()
	if a.disk != nil {
		a.disk.Wait()
	}
	if err := a.source.Close(); err != nil {
		a.log.Debugf("Failed to close archives: %v", err)
	}
}

// book is an opened EPUB together with the image references of every chapter
type book struct {
	key      archive.Key
	epub     *epub.Book
	chapters []prefetch.Chapter
}

func (a *app) openBook(ctx context.Context, filePath string) (*book, error) {
	key, err := archive.NewKey(filePath)
	if err != nil {
		return nil, err
	}

	eb, err := epub.Open(ctx, a.source, key)
	if err != nil {
		return nil, fmt.Errorf("error opening EPUB file: %w", err)
	}

	b := &book{key: key, epub: eb}
	for i, ch := range eb.Chapters {
		images, err := eb.ChapterImages(ctx, i)
		if err != nil {
			a.log.WithField("chapter", ch.Path).Warnf("Skipping unreadable chapter: %v", err)
		}
		b.chapters = append(b.chapters, prefetch.Chapter{Path: ch.Path, Images: images})
	}

	return b, nil
}

// request builds the loader request for ref as written in chapter i. A negative
// chapter means the reference has no chapter context.
func (b *book) request(ref string, chapter int) loader.Request {
	req := loader.Request{
		Archive: b.key,
		Ref:     ref,
		BaseDir: b.epub.RootDir,
	}
	if chapter >= 0 && chapter < len(b.chapters) {
		req.ChapterPath = b.chapters[chapter].Path
	}
	return req
}
