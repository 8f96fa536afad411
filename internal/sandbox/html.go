package sandbox

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/microcosm-cc/bluemonday"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// MaxHTMLSize limits markup accepted by ParseHTML
const MaxHTMLSize = 10 * 1024 * 1024

// ErrInvalidHTML is returned for markup that cannot become a document
var ErrInvalidHTML = errors.New("invalid html document")

// HTMLOptions controls how markup becomes a DOM
type HTMLOptions struct {
	// Select is an XPath expression choosing the nodes mounted under the
	// document root. The body's children are mounted when empty.
	Select string
}

var sanitizer = func() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").Globally()
	p.AllowDataAttributes()
	return p
}()

// ParseHTML builds a DOM from untrusted markup. The markup is decoded to
// UTF-8 and sanitized before parsing, so scripts and event handler
// attributes never reach the document.
func ParseHTML(markup []byte, opts HTMLOptions) (*DOM, error) {
	if len(markup) == 0 {
		return nil, fmt.Errorf("%w: empty markup", ErrInvalidHTML)
	}
	if len(markup) > MaxHTMLSize {
		return nil, fmt.Errorf("%w: exceeds maximum size of %d bytes", ErrInvalidHTML, MaxHTMLSize)
	}

	decoded, err := decodeHTML(markup)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(sanitizer.SanitizeReader(bytes.NewReader(decoded)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHTML, err)
	}

	var nodes []*html.Node
	if opts.Select != "" {
		nodes, err = htmlquery.QueryAll(doc.Nodes[0], opts.Select)
		if err != nil {
			return nil, fmt.Errorf("%w: select %q: %v", ErrInvalidHTML, opts.Select, err)
		}
	} else {
		nodes = doc.Find("body").Children().Nodes
	}

	dom := NewDOM()
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			dom.Root().AddElement(elementFromNode(n))
		}
	}
	return dom, nil
}

// decodeHTML converts markup in a detected charset to UTF-8
func decodeHTML(markup []byte) ([]byte, error) {
	if utf8.Valid(markup) {
		return markup, nil
	}
	label := "utf-8"
	if result, err := chardet.NewTextDetector().DetectBest(markup); err == nil && result != nil {
		label = strings.ToLower(result.Charset)
	}
	r, err := charset.NewReader(bytes.NewReader(markup), "text/html; charset="+label)
	if err != nil {
		return markup, nil
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalidHTML, label, err)
	}
	return decoded, nil
}

func elementFromNode(n *html.Node) *Element {
	elem := &Element{
		TagName:    n.Data,
		Attributes: make(map[string]string, len(n.Attr)),
		Children:   []*Element{},
	}
	for _, attr := range n.Attr {
		elem.Attributes[attr.Key] = attr.Val
		switch attr.Key {
		case "id":
			elem.ID = attr.Val
		case "class":
			elem.ClassName = attr.Val
		}
	}

	var text strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			text.WriteString(c.Data)
		case html.ElementNode:
			elem.AddElement(elementFromNode(c))
		}
	}
	elem.TextContent = strings.TrimSpace(text.String())
	return elem
}
