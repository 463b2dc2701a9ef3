package epub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ray-d-song/bookimg/internal/testutil"
	"github.com/ray-d-song/bookimg/pkg/archive"
)

func openBook(t *testing.T, archivePath string) (*Book, error) {
	t.Helper()

	key, err := archive.NewKey(archivePath)
	require.NoError(t, err)

	source := archive.NewZipSource()
	t.Cleanup(func() { source.Close() })

	return Open(context.Background(), source, key)
}

func TestOpen(t *testing.T) {
	archivePath := testutil.WriteEPUB(t, t.TempDir(), "book.epub", []testutil.Chapter{
		{Path: "Text/ch1.xhtml", Title: "One", Images: []string{"../Images/p001.jpg", "../Images/My%20Pic.png"}},
		{Path: "Text/ch2.xhtml", Title: "Two"},
	}, nil)

	book, err := openBook(t, archivePath)
	require.NoError(t, err)

	assert.Equal(t, "OEBPS/content.opf", book.RootFile)
	assert.Equal(t, "OEBPS/", book.RootDir)
	assert.Equal(t, "2.0", book.Version)
	require.Len(t, book.Chapters, 2)
	assert.Equal(t, "OEBPS/Text/ch1.xhtml", book.Chapters[0].Path)
	assert.Equal(t, "OEBPS/Text/ch2.xhtml", book.Chapters[1].Path)

	images, err := book.ChapterImages(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"../Images/p001.jpg", "../Images/My%20Pic.png"}, images)

	doc, err := book.ChapterDocument(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Two", doc.Title)
	assert.Empty(t, doc.Images)

	_, err = book.ChapterDocument(context.Background(), 2)
	assert.Error(t, err)

	meta := book.GetMetadata()
	assert.Equal(t, "Test Book", meta.Title)
	assert.Equal(t, "Test Author", meta.Creator)
	assert.Equal(t, "en", meta.Language)
	assert.Equal(t, [][]string{
		{"Title", "Test Book"},
		{"Creator", "Test Author"},
		{"Language", "en"},
	}, meta.Rows())

	_, ok := book.CoverImage()
	assert.False(t, ok)
}

func TestOpenRootLevelPackage(t *testing.T) {
	container := `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles><rootfile full-path="package.opf" media-type="application/oebps-package+xml"/></rootfiles>
</container>`
	opf := `<?xml version="1.0" encoding="utf-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Root</dc:title>
    <meta name="cover" content="cover-img"/>
  </metadata>
  <manifest>
    <item id="c1" href="chapter%201.xhtml#start" media-type="application/xhtml+xml"/>
    <item id="cover-img" href="images/cover.jpg" media-type="image/jpeg"/>
  </manifest>
  <spine><itemref idref="c1"/><itemref idref="missing"/></spine>
</package>`

	archivePath := testutil.WriteZip(t, t.TempDir(), "root.epub", []testutil.File{
		{Name: "mimetype", Data: []byte("application/epub+zip")},
		{Name: "META-INF/container.xml", Data: []byte(container)},
		{Name: "package.opf", Data: []byte(opf)},
		{Name: "chapter 1.xhtml", Data: []byte(`<html><body><img src="images/cover.jpg"/></body></html>`)},
	})

	book, err := openBook(t, archivePath)
	require.NoError(t, err)

	assert.Equal(t, "", book.RootDir)
	require.Len(t, book.Chapters, 1)
	assert.Equal(t, "chapter 1.xhtml", book.Chapters[0].Path)

	cover, ok := book.CoverImage()
	require.True(t, ok)
	assert.Equal(t, "images/cover.jpg", cover)

	meta := book.GetMetadata()
	assert.Equal(t, "Root", meta.Title)
	assert.Contains(t, meta.OtherMeta, []string{"cover", "cover-img"})
}

func TestOpenFailures(t *testing.T) {
	tests := []struct {
		name  string
		files []testutil.File
	}{
		{
			name:  "no container",
			files: []testutil.File{{Name: "mimetype", Data: []byte("application/epub+zip")}},
		},
		{
			name: "no rootfile",
			files: []testutil.File{
				{Name: "META-INF/container.xml", Data: []byte(`<container><rootfiles></rootfiles></container>`)},
			},
		},
		{
			name: "missing package document",
			files: []testutil.File{
				{Name: "META-INF/container.xml", Data: []byte(`<container><rootfiles><rootfile full-path="a.opf"/></rootfiles></container>`)},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := openBook(t, testutil.WriteZip(t, t.TempDir(), "bad.epub", tt.files))
			assert.Error(t, err)
		})
	}
}
