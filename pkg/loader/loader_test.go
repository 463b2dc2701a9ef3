package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ray-d-song/bookimg/internal/testutil"
	"github.com/ray-d-song/bookimg/pkg/archive"
	"github.com/ray-d-song/bookimg/pkg/diskcache"
	"github.com/ray-d-song/bookimg/pkg/memcache"
)

type countingSource struct {
	archive.Source
	reads atomic.Int32
	delay time.Duration
}

func (s *countingSource) ReadEntry(ctx context.Context, key archive.Key, name string) ([]byte, error) {
	s.reads.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.Source.ReadEntry(ctx, key, name)
}

type fixture struct {
	key      archive.Key
	source   *countingSource
	memory   *memcache.Cache
	disk     *diskcache.Cache
	cacheDir string
	loader   *Loader
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := t.TempDir()
	archivePath := testutil.WriteZip(t, dir, "book.epub", []testutil.File{
		{Name: "mimetype", Data: []byte("application/epub+zip")},
		{Name: "OEBPS/Text/ch1.xhtml", Data: []byte(`<html><body><img src="../Images/p001.jpg"/></body></html>`)},
		{Name: "OEBPS/Images/p001.jpg", Data: testutil.JPEG(t, 64, 48, 1)},
		{Name: "OEBPS/Images/wide.png", Data: testutil.PNG(t, 300, 100, 2)},
		{Name: "OEBPS/Images/broken.png", Data: []byte("not a png")},
	})
	key, err := archive.NewKey(archivePath)
	require.NoError(t, err)

	zipSource := archive.NewZipSource()
	t.Cleanup(func() { zipSource.Close() })
	source := &countingSource{Source: zipSource}

	memory := memcache.New(memcache.Options{
		Fraction:  0.125,
		Available: func() int64 { return 1 << 30 },
	})

	cacheDir := filepath.Join(dir, "cache")
	disk, err := diskcache.New(diskcache.Options{Directory: cacheDir, RefreshAge: time.Hour})
	require.NoError(t, err)
	t.Cleanup(disk.Wait)

	return &fixture{
		key:      key,
		source:   source,
		memory:   memory,
		disk:     disk,
		cacheDir: cacheDir,
		loader: New(Options{
			Source:       source,
			Index:        archive.NewIndexCache(source, nil),
			Memory:       memory,
			Disk:         disk,
			MaxDimension: 128,
		}),
	}
}

func (f *fixture) request(ref string) Request {
	return Request{Archive: f.key, Ref: ref, ChapterPath: "OEBPS/Text/ch1.xhtml", BaseDir: "OEBPS/"}
}

func TestLoadImageDoesNotRereadArchive(t *testing.T) {
	f := newFixture(t)
	req := f.request("../Images/p001.jpg")

	first, err := f.loader.LoadImage(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 64, first.Rect.Dx())
	assert.Equal(t, 48, first.Rect.Dy())
	assert.Equal(t, int32(1), f.source.reads.Load())

	second, err := f.loader.LoadImage(context.Background(), req)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, int32(1), f.source.reads.Load())
}

func TestLoadImageResolvesLooseReference(t *testing.T) {
	f := newFixture(t)
	req := Request{Archive: f.key, Ref: "images/p001.jpg"}

	img, err := f.loader.LoadImage(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, img)

	entry, err := f.loader.Resolve(req)
	require.NoError(t, err)
	assert.Equal(t, "OEBPS/Images/p001.jpg", entry)

	key := Key(req)
	assert.True(t, f.memory.HasRaw(key))
	assert.True(t, f.memory.HasDecoded(key))
}

func TestLoadImageFromDiskAfterMemoryClear(t *testing.T) {
	f := newFixture(t)
	req := f.request("../Images/p001.jpg")

	first, err := f.loader.LoadImage(context.Background(), req)
	require.NoError(t, err)

	f.memory.Clear()

	second, err := f.loader.LoadImage(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first.Pix, second.Pix)
	assert.Equal(t, int32(1), f.source.reads.Load())
	assert.True(t, f.memory.HasDecoded(Key(req)), "disk hit fills memory")
}

func TestLoadImageFromDiskRaw(t *testing.T) {
	f := newFixture(t)
	req := f.request("../Images/p001.jpg")

	_, err := f.loader.LoadImage(context.Background(), req)
	require.NoError(t, err)

	f.memory.Clear()
	require.NoError(t, os.RemoveAll(filepath.Join(f.cacheDir, "decoded")))

	img, err := f.loader.LoadImage(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 64, img.Rect.Dx())
	assert.Equal(t, int32(1), f.source.reads.Load())
	assert.True(t, f.memory.HasRaw(Key(req)))
	assert.True(t, f.memory.HasDecoded(Key(req)))
}

func TestLoadImageFromMemoryRaw(t *testing.T) {
	f := newFixture(t)
	req := f.request("../Images/p001.jpg")
	require.NoError(t, f.loader.WarmRaw(context.Background(), f.key, "OEBPS/Images/p001.jpg"))
	require.Equal(t, int32(1), f.source.reads.Load())

	img, err := f.loader.LoadImage(context.Background(), req)
	require.NoError(t, err)
	assert.NotNil(t, img)
	assert.Equal(t, int32(1), f.source.reads.Load())
	assert.True(t, f.loader.HasDecoded(req))
}

func TestLoadImageDownsamples(t *testing.T) {
	f := newFixture(t)

	img, err := f.loader.LoadImage(context.Background(), f.request("../Images/wide.png"))
	require.NoError(t, err)
	assert.Equal(t, 75, img.Rect.Dx())
	assert.Equal(t, 25, img.Rect.Dy())
}

func TestLoadImageUnavailable(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name    string
		ref     string
		decode  bool
		archive bool
	}{
		{name: "absent", ref: "../Images/missing.jpg"},
		{name: "remote", ref: "https://example.com/a.png"},
		{name: "empty", ref: "  "},
		{name: "undecodable", ref: "../Images/broken.png", decode: true, archive: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := f.source.reads.Load()

			img, err := f.loader.LoadImage(context.Background(), f.request(tt.ref))
			assert.Nil(t, img)
			require.ErrorIs(t, err, ErrUnavailable)
			assert.Equal(t, tt.decode, errors.Is(err, ErrDecode))

			read := f.source.reads.Load() > before
			assert.Equal(t, tt.archive, read)
		})
	}
}

func TestLoadImageCancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.loader.LoadImage(ctx, f.request("../Images/p001.jpg"))
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrUnavailable)
	assert.Zero(t, f.source.reads.Load())
}

func TestLoadImageCoalescesConcurrentRequests(t *testing.T) {
	f := newFixture(t)
	f.source.delay = 20 * time.Millisecond
	req := f.request("../Images/p001.jpg")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			img, err := f.loader.LoadImage(context.Background(), req)
			assert.NoError(t, err)
			assert.NotNil(t, img)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), f.source.reads.Load())
}

func TestGoDeliversResult(t *testing.T) {
	f := newFixture(t)
	req := f.request("../Images/p001.jpg")

	select {
	case res := <-f.loader.Go(context.Background(), req):
		require.NoError(t, res.Err)
		assert.Equal(t, req, res.Request)
		assert.NotNil(t, res.Image)
	case <-time.After(5 * time.Second):
		t.Fatal("no result delivered")
	}
}

func TestWarmRaw(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.loader.WarmRaw(context.Background(), f.key, "OEBPS/Images/wide.png"))
	assert.True(t, f.loader.HasRaw(f.key, "OEBPS/Images/wide.png"))
	assert.False(t, f.memory.HasDecoded(EntryKey(f.key, "OEBPS/Images/wide.png")))

	// already warm
	require.NoError(t, f.loader.WarmRaw(context.Background(), f.key, "OEBPS/Images/wide.png"))
	assert.Equal(t, int32(1), f.source.reads.Load())

	err := f.loader.WarmRaw(context.Background(), f.key, "OEBPS/Images/none.png")
	assert.ErrorIs(t, err, ErrUnavailable)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, f.loader.WarmRaw(ctx, f.key, "OEBPS/Images/p001.jpg"), context.Canceled)
}

func TestKey(t *testing.T) {
	key := archive.Key{Path: "/books/book.epub", ModTime: time.Unix(100, 0)}

	tests := []struct {
		name  string
		req   Request
		entry string
	}{
		{"chapter relative", Request{Ref: "../Images/p001.jpg#frag", ChapterPath: "OEBPS/Text/ch1.xhtml"}, "OEBPS/Images/p001.jpg"},
		{"escaped", Request{Ref: "../Images/My%20Pic.png", ChapterPath: "OEBPS/Text/ch1.xhtml"}, "OEBPS/Images/My Pic.png"},
		{"base relative", Request{Ref: "Images/cover.png", BaseDir: "OEBPS/"}, "OEBPS/Images/cover.png"},
		{"no context", Request{Ref: "./cover.png"}, "cover.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.Archive = key
			assert.Equal(t, EntryKey(key, tt.entry), Key(tt.req))
		})
	}

	moved := Request{Archive: archive.Key{Path: key.Path, ModTime: time.Unix(200, 0)}, Ref: "cover.png"}
	assert.NotEqual(t, Key(Request{Archive: key, Ref: "cover.png"}), Key(moved))
}
