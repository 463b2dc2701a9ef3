package diskcache

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/ray-d-song/bookimg/pkg/utils"
)

// class is one file class of the cache with its own ceiling and cleanup state
type class struct {
	name  string
	ext   string
	dir   string
	limit int64

	// mu guards everything below
	mu       sync.Mutex
	estimate int64
	running  bool
	pending  bool
	lastScan time.Time
	// files is the last scan plus every file written since, oldest first
	files []cacheFile

	usageBytes   *metrics.Counter
	evictedBytes *metrics.Counter
	evictedFiles *metrics.Counter
}

// cacheFile is a class file seen by a directory scan
type cacheFile struct {
	path  string
	size  int64
	mtime time.Time
}

// byModTime sorts files oldest first
type byModTime []cacheFile

func (a byModTime) Len() int           { return len(a) }
func (a byModTime) Less(i, j int) bool { return a[i].mtime.Before(a[j].mtime) }
func (a byModTime) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }

func newClass(name, ext, dir string, limit int64) *class {
	return &class{
		name:         name,
		ext:          ext,
		dir:          dir,
		limit:        limit,
		usageBytes:   metrics.GetOrCreateCounter(`bookimg_diskcache_usage_bytes{class="` + name + `"}`),
		evictedBytes: metrics.GetOrCreateCounter(`bookimg_diskcache_evicted_bytes_total{class="` + name + `"}`),
		evictedFiles: metrics.GetOrCreateCounter(`bookimg_diskcache_evicted_files_total{class="` + name + `"}`),
	}
}

func (cl *class) path(hash string) string {
	return filepath.Join(cl.dir, hash+cl.ext)
}

func (cl *class) usage() int64 {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.estimate
}

func (cl *class) setUsage(n int64) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.estimate = n
	cl.usageBytes.Set(uint64(n))
}

func (cl *class) addUsage(delta int64) int64 {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.estimate += delta
	if cl.estimate < 0 {
		cl.estimate = 0
	}
	cl.usageBytes.Set(uint64(cl.estimate))
	return cl.estimate
}

// scan lists the class files oldest first together with their total size.
// Leftover temp files are not counted.
func (cl *class) scan() ([]cacheFile, int64, error) {
	entries, err := os.ReadDir(cl.dir)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	files := make([]cacheFile, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, tempPrefix) || filepath.Ext(name) != cl.ext {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, cacheFile{
			path:  filepath.Join(cl.dir, name),
			size:  info.Size(),
			mtime: info.ModTime(),
		})
		total += info.Size()
	}

	sort.Sort(byModTime(files))
	return files, total, nil
}

// track records a file written after the last scan. An overwritten file is moved
// to the end of the list.
func (cl *class) track(f cacheFile, replaced bool) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if replaced {
		cl.forget(map[string]bool{f.path: true})
	}
	cl.files = append(cl.files, f)
}

// forget drops the given paths from the file list. Callers hold mu.
func (cl *class) forget(paths map[string]bool) {
	kept := cl.files[:0]
	for _, f := range cl.files {
		if !paths[f.path] {
			kept = append(kept, f)
		}
	}
	clear(cl.files[len(kept):])
	cl.files = kept
}

// scheduleCleanup starts a cleanup pass of cl. A request arriving while a pass is
// running is queued and served by another pass once the current one returns.
func (c *Cache) scheduleCleanup(cl *class) {
	cl.mu.Lock()
	if cl.running {
		cl.pending = true
		cl.mu.Unlock()
		return
	}
	cl.running = true
	c.cleanups.Add(1)
	cl.mu.Unlock()

	go func() {
		defer c.cleanups.Done()
		for {
			c.cleanup(cl)

			cl.mu.Lock()
			again := cl.pending && float64(cl.estimate) > c.trigger*float64(cl.limit)
			cl.pending = false
			if !again {
				cl.running = false
				cl.mu.Unlock()
				return
			}
			cl.mu.Unlock()
		}
	}()
}

// cleanup deletes the oldest files of cl until usage is at most threshold x
// ceiling. Real usage is rescanned from disk at most once per recomputeInterval;
// in between the pass works from the running estimate and the tracked file list.
func (c *Cache) cleanup(cl *class) {
	cl.mu.Lock()
	rescan := cl.lastScan.IsZero() || time.Since(cl.lastScan) >= c.recomputeInterval
	cl.mu.Unlock()

	if rescan {
		files, size, err := cl.scan()
		if err != nil {
			c.log.Warnf("Unable to scan %s cache: %v", cl.name, err)
			return
		}
		cl.mu.Lock()
		cl.files = files
		cl.lastScan = time.Now()
		cl.mu.Unlock()
		cl.setUsage(size)
	}

	cl.mu.Lock()
	size := cl.estimate
	files := append([]cacheFile(nil), cl.files...)
	cl.mu.Unlock()

	if size <= cl.limit {
		return
	}

	target := int64(c.threshold * float64(cl.limit))
	c.log.Infof("Shrinking %s cache: %s, limit: %s", cl.name, utils.ByteCountIEC(size), utils.ByteCountIEC(cl.limit))

	var deletedSize int64
	deletedItems := 0
	gone := make(map[string]bool)
	for _, f := range files {
		if size-deletedSize <= target {
			break
		}
		if err := os.Remove(f.path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				gone[f.path] = true
				continue
			}
			c.log.Debugf("Unable to delete %s: %v", f.path, err)
			continue
		}
		gone[f.path] = true
		deletedSize += f.size
		deletedItems++
	}

	cl.mu.Lock()
	cl.forget(gone)
	cl.mu.Unlock()

	cl.addUsage(-deletedSize)
	cl.evictedBytes.Add(int(deletedSize))
	cl.evictedFiles.Add(deletedItems)
	c.log.Infof("Shrunk %s cache by %s, %d items", cl.name, utils.ByteCountIEC(deletedSize), deletedItems)
}
