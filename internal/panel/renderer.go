// Package panel renders the comment store into the side panel markup: one
// visual group per commented block, sorted by block index.
package panel

import (
	"bytes"
	"fmt"
	"html/template"

	"redbook/api/internal/blocks"
	"redbook/api/internal/comments"
)

var panelTemplate = template.Must(template.New("panel").Funcs(template.FuncMap{
	"colorClass": blocks.ColorClass,
	"paragraph":  func(blockIndex int) int { return blockIndex + 1 },
}).Parse(`{{if .Groups -}}
{{range .Groups -}}
<div class="comment-group mb-3 border-r-4 pr-3 text-right {{colorClass .BlockIndex}}" data-block-index="{{.BlockIndex}}">
<h4 class="text-sm font-semibold text-gray-600 mb-1">Comments for paragraph {{paragraph .BlockIndex}}</h4>
{{range .Comments -}}
<div class="comment-item bg-gray-50 p-2 rounded text-sm mb-1 border border-gray-200 text-right relative" data-comment-id="{{.ID}}">
{{if .CanDelete}}<button class="delete-comment-btn absolute top-1 left-1" data-action="delete-comment" data-comment-id="{{.ID}}" title="Delete comment">&#128465;</button>
{{end -}}
<p class="text-gray-800 mr-6">{{.Text}}</p>
<p class="text-xs text-gray-500 mt-1"><span class="font-medium">{{.Author}}</span> - {{.Timestamp}}</p>
</div>
{{end -}}
</div>
{{end -}}
{{else -}}
<p id="no-comments-msg" class="text-gray-500 text-sm">No comments yet. Click a paragraph to start a discussion.</p>
{{end}}`))

// Render produces the panel fragment for the store's current state. When no
// groups exist the placeholder message is rendered instead.
func Render(s *comments.Store) (string, error) {
	var buf bytes.Buffer
	data := struct{ Groups []comments.Group }{Groups: s.Groups()}
	if err := panelTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render panel: %w", err)
	}
	return buf.String(), nil
}
