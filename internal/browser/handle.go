package browser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// selectionHandle is an ItemHandle over a parsed page snapshot.
type selectionHandle struct {
	sel *goquery.Selection
}

func (h selectionHandle) find(selector string) (*goquery.Selection, error) {
	if selector == "" {
		return h.sel, nil
	}
	found := h.sel.Find(selector).First()
	if found.Length() == 0 {
		return nil, fmt.Errorf("%q: %w", selector, ErrElementMissing)
	}
	return found, nil
}

// Text returns the trimmed text content of the first match.
func (h selectionHandle) Text(selector string) (string, error) {
	sel, err := h.find(selector)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(sel.Text()), nil
}

// Attr returns the named attribute of the first match.
func (h selectionHandle) Attr(selector, name string) (string, error) {
	sel, err := h.find(selector)
	if err != nil {
		return "", err
	}
	value, ok := sel.Attr(name)
	if !ok {
		return "", fmt.Errorf("%q[%s]: %w", selector, name, ErrElementMissing)
	}
	return value, nil
}

// HandlesFromHTML parses an HTML document and returns one handle per node
// matching selector, in document order.
func HandlesFromHTML(html, selector string) ([]ItemHandle, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page snapshot: %w", err)
	}

	nodes := doc.Find(selector)
	handles := make([]ItemHandle, 0, nodes.Length())
	nodes.Each(func(_ int, s *goquery.Selection) {
		handles = append(handles, selectionHandle{sel: s})
	})
	return handles, nil
}
