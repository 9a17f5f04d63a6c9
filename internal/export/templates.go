package export

import (
	"bytes"
	"embed"
	"html/template"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var episodeTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}

	templateContent, err := templateFS.ReadFile("templates/episode.html")
	if err != nil {
		episodeTemplate = template.Must(template.New("episode").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}
	episodeTemplate = template.Must(template.New("episode").Funcs(funcMap).Parse(string(templateContent)))
}

// TemplateData holds data for episode template rendering
type TemplateData struct {
	Title        string
	TrackName    string
	Status       string
	PlanHTML     template.HTML
	ScenarioHTML template.HTML
	UpdatedAt    time.Time
}

// RenderEpisodeHTML renders the episode template with provided data
func RenderEpisodeHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := episodeTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load
const fallbackTemplate = `<!DOCTYPE html>
<html lang="ar" dir="rtl">
<head>
  <meta charset="UTF-8">
  <title>Export: {{.Title}}</title>
</head>
<body>
  <h1>{{.Title}}</h1>
  <h2>Plan</h2>
  <div>{{.PlanHTML}}</div>
  <hr>
  <h2>Scenario</h2>
  <div>{{.ScenarioHTML}}</div>
</body>
</html>`
