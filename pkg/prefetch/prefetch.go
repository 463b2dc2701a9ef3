// Package prefetch warms the caches off the request path: decoded images of the
// chapters ahead of the reader, and raw bytes of every image in a book.
package prefetch

import (
	"context"
	"errors"
	"image"
	"sync"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ray-d-song/bookimg/pkg/archive"
	"github.com/ray-d-song/bookimg/pkg/loader"
	"github.com/ray-d-song/bookimg/pkg/utils"
)

var (
	jobsStartedTotal   = metrics.NewCounter("bookimg_prefetch_jobs_started_total")
	jobsCancelledTotal = metrics.NewCounter("bookimg_prefetch_jobs_cancelled_total")
	imagesTotal        = metrics.NewCounter("bookimg_prefetch_images_total")
	failuresTotal      = metrics.NewCounter("bookimg_prefetch_failures_total")
)

// Loader is the part of loader.Loader the prefetcher drives
type Loader interface {
	LoadImage(ctx context.Context, req loader.Request) (*image.NRGBA, error)
	WarmRaw(ctx context.Context, key archive.Key, entry string) error
	HasDecoded(req loader.Request) bool
	HasRaw(key archive.Key, entry string) bool
	Images(key archive.Key) []string
}

// Chapter is one spine item with the image references of its markup
type Chapter struct {
	// Path is the chapter's archive entry
	Path   string
	Images []string
}

type job struct {
	id     string
	kind   string
	cancel context.CancelFunc
	done   chan struct{}
}

// Prefetcher runs at most one prefetch job at a time. Starting a job cancels the
// previous one without waiting for it.
type Prefetcher struct {
	loader Loader
	log    *logrus.Entry

	root context.Context
	stop context.CancelFunc

	mu  sync.Mutex
	job *job
	wg  sync.WaitGroup
}

// New creates a Prefetcher driving l
func New(l Loader, log *logrus.Entry) *Prefetcher {
	root, stop := context.WithCancel(context.Background())
	return &Prefetcher{
		loader: l,
		log:    utils.Component(log, "prefetch"),
		root:   root,
		stop:   stop,
	}
}

// PrefetchUpcoming loads the images of chapters current+1 to current+lookahead that
// are not decoded in memory yet. It returns the id of the started job.
func (p *Prefetcher) PrefetchUpcoming(key archive.Key, baseDir string, current int, chapters []Chapter, lookahead int) string {
	start := max(current+1, 0)
	end := min(current+lookahead, len(chapters)-1)

	var reqs []loader.Request
	for i := start; i <= end; i++ {
		for _, ref := range chapters[i].Images {
			if archive.IsRemoteReference(ref) {
				continue
			}
			reqs = append(reqs, loader.Request{
				Archive:     key,
				Ref:         ref,
				ChapterPath: chapters[i].Path,
				BaseDir:     baseDir,
			})
		}
	}

	return p.start("upcoming", key, func(ctx context.Context, log *logrus.Entry) {
		for _, req := range reqs {
			if ctx.Err() != nil {
				return
			}
			if p.loader.HasDecoded(req) {
				continue
			}
			p.step(ctx, log.WithField("ref", req.Ref), func() error {
				_, err := p.loader.LoadImage(ctx, req)
				return err
			})
		}
	})
}

// PrefetchAll stores the raw bytes of every image in the archive that is not
// already in memory. Nothing is decoded. It returns the id of the started job.
func (p *Prefetcher) PrefetchAll(key archive.Key) string {
	return p.start("all", key, func(ctx context.Context, log *logrus.Entry) {
		for _, entry := range p.loader.Images(key) {
			if ctx.Err() != nil {
				return
			}
			if p.loader.HasRaw(key, entry) {
				continue
			}
			p.step(ctx, log.WithField("entry", entry), func() error {
				return p.loader.WarmRaw(ctx, key, entry)
			})
		}
	})
}

func (p *Prefetcher) start(kind string, key archive.Key, run func(ctx context.Context, log *logrus.Entry)) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.job != nil {
		p.job.cancel()
	}

	ctx, cancel := context.WithCancel(p.root)
	j := &job{
		id:     uuid.NewString(),
		kind:   kind,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	p.job = j
	jobsStartedTotal.Inc()

	log := p.log.WithFields(logrus.Fields{"job": j.id, "kind": kind, "archive": key.Path})
	log.Debug("Prefetch started")

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(j.done)
		defer cancel()

		run(ctx, log)

		if ctx.Err() != nil {
			jobsCancelledTotal.Inc()
			log.Debug("Prefetch cancelled")
			return
		}
		log.Debug("Prefetch finished")
	}()

	return j.id
}

// step runs one image of a job. Failures and panics are logged and the job goes on.
func (p *Prefetcher) step(ctx context.Context, log *logrus.Entry, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			failuresTotal.Inc()
			log.Errorf("Prefetch panicked: %v", r)
		}
	}()

	err := fn()
	switch {
	case err == nil:
		imagesTotal.Inc()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		if ctx.Err() == nil {
			failuresTotal.Inc()
			log.Debugf("Prefetch failed: %v", err)
		}
	default:
		failuresTotal.Inc()
		log.Debugf("Prefetch failed: %v", err)
	}
}

// Current returns the id of the most recently started job, or "" if none
func (p *Prefetcher) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.job == nil {
		return ""
	}
	return p.job.id
}

// Cancel cancels the running job, if any
func (p *Prefetcher) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.job != nil {
		p.job.cancel()
	}
}

// Wait blocks until the most recently started job has returned
func (p *Prefetcher) Wait() {
	p.mu.Lock()
	j := p.job
	p.mu.Unlock()

	if j != nil {
		<-j.done
	}
}

// Close cancels every job and waits for all of them to return. Jobs started
// after Close return immediately.
func (p *Prefetcher) Close() error {
	p.stop()
	p.wg.Wait()
	return nil
}
