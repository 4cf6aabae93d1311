// Package htmlview prepares converted spreadsheet html for the browser: the
// document is re-encoded as UTF-8 and its charset declarations are rewritten to match.
package htmlview

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/transform"
)

// Normalizer rewrites html artifacts in place
type Normalizer struct{}

// Process converts the file at path to UTF-8 html
func (Normalizer) Process(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read html artifact: %w", err)
	}
	normalized, err := Normalize(content)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".htmlview-")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(normalized); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write html artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Normalize decodes content from its detected encoding and renders it as UTF-8
func Normalize(content []byte) ([]byte, error) {
	enc, name, _ := charset.DetermineEncoding(content, "text/html")
	if name != "utf-8" {
		decoded, _, err := transform.Bytes(enc.NewDecoder(), content)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s html: %w", name, err)
		}
		content = decoded
	}

	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}
	if !rewriteCharset(doc) {
		if head := findElement(doc, atom.Head); head != nil {
			meta := &html.Node{
				Type:     html.ElementNode,
				DataAtom: atom.Meta,
				Data:     "meta",
				Attr:     []html.Attribute{{Key: "charset", Val: "utf-8"}},
			}
			head.InsertBefore(meta, head.FirstChild)
		}
	}

	var out bytes.Buffer
	if err := html.Render(&out, doc); err != nil {
		return nil, fmt.Errorf("failed to render html: %w", err)
	}
	return out.Bytes(), nil
}

// rewriteCharset points every meta charset declaration at utf-8 and reports whether one was found
func rewriteCharset(n *html.Node) bool {
	found := false
	if n.Type == html.ElementNode && n.DataAtom == atom.Meta {
		httpEquiv := false
		for _, a := range n.Attr {
			if strings.EqualFold(a.Key, "http-equiv") && strings.EqualFold(a.Val, "content-type") {
				httpEquiv = true
			}
		}
		for i, a := range n.Attr {
			switch {
			case strings.EqualFold(a.Key, "charset"):
				n.Attr[i].Val = "utf-8"
				found = true
			case httpEquiv && strings.EqualFold(a.Key, "content"):
				n.Attr[i].Val = "text/html; charset=utf-8"
				found = true
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if rewriteCharset(c) {
			found = true
		}
	}
	return found
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}
