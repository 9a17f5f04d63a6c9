package export

import (
	"context"
	"fmt"
	"html/template"

	"redbook/api/internal/blocks"
	"redbook/api/internal/store"
)

// DataStore defines the interface for data access
type DataStore interface {
	GetEpisode(ctx context.Context, id int64) (store.Episode, error)
}

// Service renders episodes into downloadable documents.
type Service struct {
	store DataStore
}

// NewService creates a new export service
func NewService(store DataStore) *Service {
	return &Service{store: store}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	episode, err := s.store.GetEpisode(ctx, req.EpisodeID)
	if err != nil {
		return nil, fmt.Errorf("get episode: %w", err)
	}

	planHTML, err := blocks.Render(episode.Plan)
	if err != nil {
		return nil, fmt.Errorf("render plan: %w", err)
	}
	scenarioHTML, err := blocks.Render(episode.Scenario)
	if err != nil {
		return nil, fmt.Errorf("render scenario: %w", err)
	}

	data := TemplateData{
		Title:        episode.Title,
		TrackName:    episode.TrackName,
		Status:       episode.Status,
		PlanHTML:     template.HTML(planHTML),
		ScenarioHTML: template.HTML(scenarioHTML),
		UpdatedAt:    episode.LastUpdated,
	}

	html, err := RenderEpisodeHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	filename := fmt.Sprintf("episode_%d_%s", episode.ID, sanitizeFilename(episode.Title))
	switch req.Format {
	case FormatPDF:
		return exportPDF(html, filename)
	case FormatDOCX:
		return exportDOCX(html, filename)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}
