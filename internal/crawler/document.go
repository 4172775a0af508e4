package crawler

import (
	"bytes"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Document is a parsed page owned by the task that fetched it.
type Document struct {
	// URL is the page address after redirects.
	URL        string
	StatusCode int
	Backend    Backend
	Duration   time.Duration
	Bytes      int

	dom *goquery.Document
}

// ParseDocument parses body into a queryable Document.
func ParseDocument(url string, status int, body []byte) (*Document, error) {
	dom, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse document %s: %w", url, err)
	}
	return &Document{
		URL:        url,
		StatusCode: status,
		Bytes:      len(body),
		dom:        dom,
	}, nil
}

// NewDocumentFromNode wraps an already parsed tree.
func NewDocumentFromNode(url string, root *html.Node) *Document {
	return &Document{URL: url, dom: goquery.NewDocumentFromNode(root)}
}

// Selection returns the document root selection. It is empty for a nil or
// unparsed Document.
func (d *Document) Selection() *goquery.Selection {
	if d == nil || d.dom == nil {
		return &goquery.Selection{}
	}
	return d.dom.Selection
}

// Parsed reports whether d holds a tree.
func (d *Document) Parsed() bool {
	return d != nil && d.dom != nil && len(d.dom.Nodes) > 0
}
