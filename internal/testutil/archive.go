// Package testutil builds archive and image fixtures for tests.
package testutil

import (
	"archive/zip"
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// File is a single archive entry
type File struct {
	Name string
	Data []byte
}

// WriteZip writes files, in order, to a zip archive named name under dir and
// returns its path. Names ending in "/" become directory entries.
func WriteZip(t testing.TB, dir, name string, files []File) string {
	t.Helper()

	archivePath := filepath.Join(dir, name)
	out, err := os.Create(archivePath)
	if err != nil {
		t.Fatalf("failed to create archive: %v", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	for _, f := range files {
		w, err := zw.Create(f.Name)
		if err != nil {
			t.Fatalf("failed to create entry %s: %v", f.Name, err)
		}
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		if _, err := w.Write(f.Data); err != nil {
			t.Fatalf("failed to write entry %s: %v", f.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to finalize archive: %v", err)
	}

	return archivePath
}

// Pattern returns a deterministic NRGBA test image of the given size
func Pattern(w, h int, seed uint8) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(x) + seed,
				G: uint8(y) ^ seed,
				B: uint8(x+y) * 3,
				A: 255,
			})
		}
	}
	return img
}

// PNG encodes a test pattern as PNG
func PNG(t testing.TB, w, h int, seed uint8) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := png.Encode(&buf, Pattern(w, h, seed)); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

// JPEG encodes a test pattern as JPEG
func JPEG(t testing.TB, w, h int, seed uint8) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, Pattern(w, h, seed), &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("failed to encode jpeg: %v", err)
	}
	return buf.Bytes()
}

// Chapter describes one spine item of a generated EPUB
type Chapter struct {
	// Path is relative to the OPF directory, e.g. "Text/ch1.xhtml"
	Path   string
	Title  string
	Images []string
}

// WriteEPUB writes a minimal EPUB whose package document lives at OEBPS/content.opf.
// extra entries (images and anything else) are appended after the book's own files.
func WriteEPUB(t testing.TB, dir, name string, chapters []Chapter, extra []File) string {
	t.Helper()

	container := `<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`

	var manifest, spine strings.Builder
	files := []File{
		{Name: "mimetype", Data: []byte("application/epub+zip")},
		{Name: "META-INF/container.xml", Data: []byte(container)},
	}

	for i, ch := range chapters {
		id := fmt.Sprintf("ch%d", i+1)
		fmt.Fprintf(&manifest, `    <item id="%s" href="%s" media-type="application/xhtml+xml"/>`+"\n", id, ch.Path)
		fmt.Fprintf(&spine, `    <itemref idref="%s"/>`+"\n", id)

		var body strings.Builder
		fmt.Fprintf(&body, "<h1>%s</h1>\n", ch.Title)
		for _, img := range ch.Images {
			fmt.Fprintf(&body, "<p><img src=\"%s\" alt=\"figure\"/></p>\n", img)
		}
		xhtml := `<?xml version="1.0" encoding="utf-8"?>
<html xmlns="http://www.w3.org/1999/xhtml"><head><title>` + ch.Title + `</title></head>
<body>
` + body.String() + `</body></html>`
		files = append(files, File{Name: "OEBPS/" + ch.Path, Data: []byte(xhtml)})
	}

	opf := `<?xml version="1.0" encoding="utf-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="2.0" unique-identifier="bookid">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>Test Book</dc:title>
    <dc:creator>Test Author</dc:creator>
    <dc:language>en</dc:language>
  </metadata>
  <manifest>
` + manifest.String() + `  </manifest>
  <spine>
` + spine.String() + `  </spine>
</package>`
	files = append(files, File{Name: "OEBPS/content.opf", Data: []byte(opf)})
	files = append(files, extra...)

	return WriteZip(t, dir, name, files)
}
