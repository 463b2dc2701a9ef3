package parser

import (
	htmllib "html"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var headingTag = regexp.MustCompile(`^h[1-6]$`)

// ImageRef is an image reference found in chapter markup
type ImageRef struct {
	// Src is the reference as written, entity-unescaped
	Src string
	Alt string
}

// Document is what the reader needs from one chapter's markup
type Document struct {
	// Title is the first heading, falling back to <title>
	Title  string
	Images []ImageRef
}

// HTMLParser walks chapter markup collecting image references
type HTMLParser struct {
	doc       Document
	pageTitle string
	inTitle   bool
	inHeading bool
	heading   strings.Builder
	isHidden  bool
}

// NewHTMLParser creates a new HTMLParser
func NewHTMLParser() *HTMLParser {
	return &HTMLParser{}
}

// Parse parses HTML content
func (p *HTMLParser) Parse(content string) error {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return err
	}

	p.parseNode(doc)
	if p.doc.Title == "" {
		p.doc.Title = p.pageTitle
	}
	return nil
}

// parseNode parses an HTML node and its children
func (p *HTMLParser) parseNode(n *html.Node) {
	if n.Type == html.ElementNode {
		p.handleStartTag(n)
	} else if n.Type == html.TextNode {
		p.handleText(n.Data)
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		p.parseNode(c)
	}

	if n.Type == html.ElementNode {
		p.handleEndTag(n)
	}
}

func (p *HTMLParser) handleStartTag(n *html.Node) {
	tag := n.Data

	switch {
	case headingTag.MatchString(tag):
		p.inHeading = p.doc.Title == ""
	case tag == "title":
		p.inTitle = true
	case tag == "script" || tag == "style":
		p.isHidden = true
	case tag == "img" || tag == "image":
		// <img src> in XHTML, <svg:image xlink:href> in SVG wrappers
		var src, alt string
		for _, attr := range n.Attr {
			if (tag == "img" && attr.Key == "src") || (tag == "image" && strings.HasSuffix(attr.Key, "href")) {
				src = attr.Val
			} else if attr.Key == "alt" {
				alt = attr.Val
			}
		}
		src = strings.TrimSpace(src)
		if src != "" {
			p.doc.Images = append(p.doc.Images, ImageRef{
				Src: htmllib.UnescapeString(src),
				Alt: htmllib.UnescapeString(alt),
			})
		}
	}
}

func (p *HTMLParser) handleEndTag(n *html.Node) {
	tag := n.Data

	switch {
	case headingTag.MatchString(tag):
		if p.inHeading {
			p.doc.Title = strings.Join(strings.Fields(p.heading.String()), " ")
			p.heading.Reset()
		}
		p.inHeading = false
	case tag == "title":
		p.inTitle = false
	case tag == "script" || tag == "style":
		p.isHidden = false
	}
}

func (p *HTMLParser) handleText(data string) {
	if data == "" || p.isHidden {
		return
	}
	if p.inHeading {
		p.heading.WriteString(data)
		p.heading.WriteString(" ")
	}
	if p.inTitle && p.pageTitle == "" {
		p.pageTitle = strings.TrimSpace(data)
	}
}

// GetDocument returns what Parse collected
func (p *HTMLParser) GetDocument() Document {
	return p.doc
}

// GetImages returns the image references in document order
func (p *HTMLParser) GetImages() []string {
	images := make([]string, len(p.doc.Images))
	for i, img := range p.doc.Images {
		images[i] = img.Src
	}
	return images
}

// ExtractImages returns the image references of content in document order
func ExtractImages(content string) ([]string, error) {
	p := NewHTMLParser()
	if err := p.Parse(content); err != nil {
		return nil, err
	}
	return p.GetImages(), nil
}
