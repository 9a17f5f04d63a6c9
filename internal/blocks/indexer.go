package blocks

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// PaletteSize is the number of highlight colors. A block's color identity is
// its index modulo the palette size.
const PaletteSize = 6

const (
	commentableClass = "commentable-block"
	indexAttr        = "data-block-index"
	colorClassPrefix = "highlight-color-"
)

// Block is one top-level rendered element of the scenario text, addressable
// by its zero-based position at the time of the last render.
type Block struct {
	Index   int
	ColorID int
}

// ColorClass returns the palette class for a block index, or "" for a
// negative index.
func ColorClass(index int) string {
	if index < 0 {
		return ""
	}
	return colorClassPrefix + strconv.Itoa(index%PaletteSize)
}

// ParseFragment parses a rendered HTML fragment into a container node whose
// children are the fragment's top-level nodes.
func ParseFragment(rendered string) (*html.Node, error) {
	context := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(rendered), context)
	if err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}
	root := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	for _, n := range nodes {
		root.AppendChild(n)
	}
	return root, nil
}

// Index walks the immediate element children of root in document order and
// assigns each its block index: the index annotation, the commentable
// marker, and the palette class when hasComments reports an existing
// discussion for that index. Previously applied palette classes are stripped
// first, so indexing the same tree twice yields the same assignment.
//
// When the fragment has no element children but raw is non-blank, the whole
// output is wrapped in a single synthetic block at index 0. Blank raw text
// yields no blocks.
func Index(root *html.Node, raw string, hasComments func(index int) bool) []Block {
	if hasComments == nil {
		hasComments = func(int) bool { return false }
	}

	var out []Block
	i := 0
	for child := root.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != html.ElementNode {
			continue
		}
		annotate(child, i, hasComments(i))
		out = append(out, Block{Index: i, ColorID: i % PaletteSize})
		i++
	}
	if len(out) > 0 || strings.TrimSpace(raw) == "" {
		return out
	}

	// Non-blank text that rendered to no element children still has to be
	// commentable: wrap everything in one synthetic block.
	wrapper := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	for root.FirstChild != nil {
		child := root.FirstChild
		root.RemoveChild(child)
		wrapper.AppendChild(child)
	}
	annotate(wrapper, 0, hasComments(0))
	root.AppendChild(wrapper)
	return []Block{{Index: 0, ColorID: 0}}
}

// SetHighlight recomputes the palette class of the block at index: applied
// when on, stripped otherwise. Missing blocks are ignored.
func SetHighlight(root *html.Node, index int, on bool) {
	for child := root.FirstChild; child != nil; child = child.NextSibling {
		if child.Type != html.ElementNode {
			continue
		}
		if attr(child, indexAttr) != strconv.Itoa(index) {
			continue
		}
		stripColorClasses(child)
		if on {
			addClass(child, ColorClass(index))
		}
		return
	}
}

// RenderHTML serializes the children of root back to an HTML fragment.
func RenderHTML(root *html.Node) (string, error) {
	var buf bytes.Buffer
	for child := root.FirstChild; child != nil; child = child.NextSibling {
		if err := html.Render(&buf, child); err != nil {
			return "", fmt.Errorf("render fragment: %w", err)
		}
	}
	return buf.String(), nil
}

func annotate(n *html.Node, index int, highlighted bool) {
	setAttr(n, indexAttr, strconv.Itoa(index))
	addClass(n, commentableClass)
	stripColorClasses(n)
	if highlighted {
		addClass(n, ColorClass(index))
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func classes(n *html.Node) []string {
	return strings.Fields(attr(n, "class"))
}

func addClass(n *html.Node, class string) {
	if class == "" {
		return
	}
	existing := classes(n)
	for _, c := range existing {
		if c == class {
			return
		}
	}
	setAttr(n, "class", strings.TrimSpace(strings.Join(append(existing, class), " ")))
}

func stripColorClasses(n *html.Node) {
	existing := classes(n)
	if len(existing) == 0 {
		return
	}
	kept := existing[:0]
	for _, c := range existing {
		if !strings.HasPrefix(c, colorClassPrefix) {
			kept = append(kept, c)
		}
	}
	setAttr(n, "class", strings.Join(kept, " "))
}
