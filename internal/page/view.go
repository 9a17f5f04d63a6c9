// Package page wires the episode page together: the rendered scenario view,
// the comment store and panel, the per-field edit states, and the sync
// client. Handlers receive everything through the Controller instead of
// module-level state.
package page

import (
	"golang.org/x/net/html"

	"redbook/api/internal/blocks"
)

// ScenarioView holds the rendered scenario fragment and its block index
// assignment. The tree is discarded and rebuilt on every render.
type ScenarioView struct {
	raw    string
	root   *html.Node
	blocks []blocks.Block
}

// Rerender feeds the raw text through the Markdown renderer and re-indexes
// all blocks. Prior index-to-content correspondence is invalidated.
func (v *ScenarioView) Rerender(raw string, hasComments func(int) bool) error {
	rendered, err := blocks.Render(raw)
	if err != nil {
		return err
	}
	root, err := blocks.ParseFragment(rendered)
	if err != nil {
		return err
	}
	v.raw = raw
	v.root = root
	v.blocks = blocks.Index(root, raw, hasComments)
	return nil
}

// SetHighlight lets the comment store drive block colors; it satisfies
// comments.Highlighter.
func (v *ScenarioView) SetHighlight(blockIndex int, hasComments bool) {
	if v.root == nil {
		return
	}
	blocks.SetHighlight(v.root, blockIndex, hasComments)
}

// Raw returns the scenario source text of the last render.
func (v *ScenarioView) Raw() string { return v.raw }

// Blocks returns the current block assignment.
func (v *ScenarioView) Blocks() []blocks.Block { return v.blocks }

// HTML serializes the annotated fragment.
func (v *ScenarioView) HTML() (string, error) {
	if v.root == nil {
		return "", nil
	}
	return blocks.RenderHTML(v.root)
}

// HasBlock reports whether index addresses a current block.
func (v *ScenarioView) HasBlock(index int) bool {
	return index >= 0 && index < len(v.blocks)
}
