// Package epub reads the package structure of an EPUB book through an
// archive.Source: container.xml, the OPF package document and its spine.
package epub

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/ray-d-song/bookimg/pkg/archive"
	"github.com/ray-d-song/bookimg/pkg/parser"
	"github.com/ray-d-song/bookimg/pkg/utils"
)

const containerPath = "META-INF/container.xml"

// ErrNoRootFile indicates container.xml names no package document
var ErrNoRootFile = errors.New("no rootfile found in container.xml")

// Book represents an opened EPUB book
type Book struct {
	Key      archive.Key
	RootFile string
	// RootDir is the directory of the package document with a trailing "/", or
	// "" when it sits at the archive root
	RootDir  string
	Version  string
	Chapters []Chapter

	pkg    Package
	source archive.Source
}

// Chapter is one spine item
type Chapter struct {
	ID string
	// Path is the chapter's archive entry
	Path      string
	MediaType string
}

// Metadata represents EPUB metadata
type Metadata struct {
	Title       string
	Creator     string
	Publisher   string
	Language    string
	Identifier  string
	Date        string
	Description string
	Rights      string
	OtherMeta   [][]string
}

// Container represents the container.xml file
type Container struct {
	XMLName   xml.Name   `xml:"container"`
	RootFiles []RootFile `xml:"rootfiles>rootfile"`
}

// RootFile represents a rootfile in container.xml
type RootFile struct {
	FullPath  string `xml:"full-path,attr"`
	MediaType string `xml:"media-type,attr"`
}

// Package represents the package element in the OPF file
type Package struct {
	XMLName  xml.Name        `xml:"package"`
	Version  string          `xml:"version,attr"`
	Metadata PackageMetadata `xml:"metadata"`
	Manifest []ManifestItem  `xml:"manifest>item"`
	Spine    []SpineItem     `xml:"spine>itemref"`
}

// PackageMetadata holds every child element of <metadata>, whatever its namespace
type PackageMetadata struct {
	Items []MetadataItem `xml:",any"`
}

// MetadataItem represents a metadata item in the OPF file
type MetadataItem struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Content string     `xml:",chardata"`
}

// ManifestItem represents an item in the manifest
type ManifestItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

// SpineItem represents an itemref in the spine
type SpineItem struct {
	IDRef string `xml:"idref,attr"`
}

// Open reads the package structure of the book identified by key
func Open(ctx context.Context, source archive.Source, key archive.Key) (*Book, error) {
	book := &Book{
		Key:    key,
		source: source,
	}

	// Parse container.xml to find the rootfile
	if err := book.parseContainer(ctx); err != nil {
		return nil, fmt.Errorf("failed to read container of %s: %w", key.Path, err)
	}

	// Parse the rootfile to get the manifest and spine
	if err := book.parseRootFile(ctx); err != nil {
		return nil, fmt.Errorf("failed to read package document %s: %w", book.RootFile, err)
	}

	return book, nil
}

func (b *Book) decode(ctx context.Context, name string, v interface{}) error {
	data, err := b.source.ReadEntry(ctx, b.Key, name)
	if err != nil {
		return err
	}
	return xml.Unmarshal(data, v)
}

// parseContainer parses the container.xml file to find the rootfile
func (b *Book) parseContainer(ctx context.Context) error {
	var container Container
	if err := b.decode(ctx, containerPath, &container); err != nil {
		return err
	}

	if len(container.RootFiles) == 0 || container.RootFiles[0].FullPath == "" {
		return ErrNoRootFile
	}

	b.RootFile = strings.TrimPrefix(container.RootFiles[0].FullPath, "/")
	b.RootDir = path.Dir(b.RootFile)
	if b.RootDir == "." {
		b.RootDir = ""
	} else {
		b.RootDir += "/"
	}

	return nil
}

// parseRootFile parses the rootfile and resolves the spine into chapters
func (b *Book) parseRootFile(ctx context.Context) error {
	if err := b.decode(ctx, b.RootFile, &b.pkg); err != nil {
		return err
	}
	b.Version = b.pkg.Version

	// Create a map of manifest items
	manifestItems := make(map[string]ManifestItem, len(b.pkg.Manifest))
	for _, item := range b.pkg.Manifest {
		manifestItems[item.ID] = item
	}

	for _, ref := range b.pkg.Spine {
		item, ok := manifestItems[ref.IDRef]
		if !ok || item.Href == "" {
			continue
		}
		b.Chapters = append(b.Chapters, Chapter{
			ID:        item.ID,
			Path:      b.entry(item.Href),
			MediaType: item.MediaType,
		})
	}

	return nil
}

// entry turns a manifest href into an archive entry name
func (b *Book) entry(href string) string {
	href = utils.StripFragment(href)
	if decoded, err := url.PathUnescape(href); err == nil {
		href = decoded
	}
	return utils.JoinEntry(b.RootDir, href)
}

// ChapterDocument parses the markup of chapter i
func (b *Book) ChapterDocument(ctx context.Context, i int) (*parser.Document, error) {
	if i < 0 || i >= len(b.Chapters) {
		return nil, fmt.Errorf("chapter index %d out of range", i)
	}

	content, err := b.source.ReadEntry(ctx, b.Key, b.Chapters[i].Path)
	if err != nil {
		return nil, err
	}

	p := parser.NewHTMLParser()
	if err := p.Parse(string(content)); err != nil {
		return nil, fmt.Errorf("failed to parse chapter %s: %w", b.Chapters[i].Path, err)
	}

	doc := p.GetDocument()
	return &doc, nil
}

// ChapterImages returns the image references of chapter i as written in markup
func (b *Book) ChapterImages(ctx context.Context, i int) ([]string, error) {
	doc, err := b.ChapterDocument(ctx, i)
	if err != nil {
		return nil, err
	}

	images := make([]string, len(doc.Images))
	for j, img := range doc.Images {
		images[j] = img.Src
	}
	return images, nil
}

// CoverImage returns the archive entry of the cover image declared by the package
// document, either through an EPUB 3 "cover-image" manifest property or an EPUB 2
// <meta name="cover"> pointing at a manifest id.
func (b *Book) CoverImage() (string, bool) {
	for _, item := range b.pkg.Manifest {
		for _, prop := range strings.Fields(item.Properties) {
			if prop == "cover-image" {
				return b.entry(item.Href), true
			}
		}
	}

	var coverID string
	for _, meta := range b.pkg.Metadata.Items {
		if meta.XMLName.Local != "meta" || attr(meta.Attrs, "name") != "cover" {
			continue
		}
		coverID = attr(meta.Attrs, "content")
	}
	if coverID == "" {
		return "", false
	}

	for _, item := range b.pkg.Manifest {
		if item.ID == coverID {
			return b.entry(item.Href), true
		}
	}
	return "", false
}

func attr(attrs []xml.Attr, name string) string {
	for _, a := range attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}
