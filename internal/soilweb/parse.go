package soilweb

import (
	"io"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	// ErrNoLink is returned when the bbox query page has no link to follow.
	ErrNoLink = eris.New("soilweb: response has no map unit link")
	// ErrNoMapUnit is returned when the report has no map unit record.
	ErrNoMapUnit = eris.New("soilweb: no map unit record in report")
)

// recordTable is the position of the map unit table among the report's tables.
const recordTable = 1

// FirstLink returns the href of the first anchor in the page.
func FirstLink(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", eris.Wrap(err, "soilweb: parse query page")
	}
	for n := range doc.Descendants() {
		if n.Type != html.ElementNode || n.DataAtom != atom.A {
			continue
		}
		if href := attr(n, "href"); href != "" {
			return href, nil
		}
	}
	return "", ErrNoLink
}

// MapUnitRecord returns the text of the first ".record" element inside the
// report's second table.
func MapUnitRecord(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", eris.Wrap(err, "soilweb: parse report")
	}

	var tables []*html.Node
	for n := range doc.Descendants() {
		if n.Type == html.ElementNode && n.DataAtom == atom.Table {
			tables = append(tables, n)
		}
	}
	if len(tables) <= recordTable {
		return "", eris.Wrapf(ErrNoMapUnit, "found %d tables", len(tables))
	}

	for n := range tables[recordTable].Descendants() {
		if n.Type == html.ElementNode && hasClass(n, "record") {
			text := textContent(n)
			if text == "" {
				break
			}
			return text, nil
		}
	}
	return "", ErrNoMapUnit
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	return slices.Contains(strings.Fields(attr(n, "class")), class)
}

// textContent joins the node's text with runs of whitespace collapsed.
func textContent(n *html.Node) string {
	var b strings.Builder
	for d := range n.Descendants() {
		if d.Type == html.TextNode {
			b.WriteString(d.Data)
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
