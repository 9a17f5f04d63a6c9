package search

import (
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxEpisodes = "redbook_episodes"

// Meili indexes and searches episodes via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the episode index.
// The caller should proceed without Meilisearch if the first health check
// fails; the background loop will pick it up when it recovers.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxEpisodes,
		PrimaryKey: "id",
	}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", idxEpisodes, err)
	}

	index := m.client.Index(idxEpisodes)
	filterable := []interface{}{"track_id", "status"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("search: update filterable attrs for %s: %v", idxEpisodes, err)
	}
	searchable := []string{"title", "plan", "scenario"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: update searchable attrs for %s: %v", idxEpisodes, err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries the episode index.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	sr := &meili.SearchRequest{
		Limit:                 limit,
		Offset:                int64(q.Offset),
		AttributesToHighlight: []string{"*"},
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
	}
	if q.TrackID != 0 {
		sr.Filter = fmt.Sprintf("track_id = %d", q.TrackID)
	}

	resp, err := m.client.Index(idxEpisodes).Search(q.Text, sr)
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	var results []Result
	for _, hit := range resp.Hits {
		results = append(results, hitToResult(hit))
	}
	return results, int(resp.EstimatedTotalHits), nil
}

func hitToResult(hit meili.Hit) Result {
	r := Result{
		EpisodeID: decodeInt(hit, "id"),
		Title:     decodeString(hit, "title"),
		TrackID:   decodeInt(hit, "track_id"),
		Status:    decodeString(hit, "status"),
	}

	if title := decodeFormattedString(hit, "title"); title != "" {
		r.Title = title
	}
	r.Snippet = firstNonBlank(
		decodeFormattedString(hit, "scenario"),
		decodeFormattedString(hit, "plan"),
	)
	if r.Snippet == "" {
		r.Snippet = snippetOf(firstNonBlank(decodeString(hit, "scenario"), decodeString(hit, "plan")))
	}
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return ""
}

func decodeInt(hit meili.Hit, key string) int64 {
	raw, ok := hit[key]
	if !ok {
		return 0
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		parsed, _ := strconv.ParseInt(s, 10, 64)
		return parsed
	}
	return 0
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]string
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	return strings.TrimSpace(formatted[key])
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func snippetOf(text string) string {
	const max = 160
	text = strings.TrimSpace(text)
	if len(text) <= max {
		return text
	}
	return text[:max]
}

// IndexEpisode adds or updates one episode in the search index.
func (m *Meili) IndexEpisode(record EpisodeRecord) error {
	_, err := m.client.Index(idxEpisodes).AddDocuments([]EpisodeRecord{record}, nil)
	return err
}

// IndexEpisodes bulk-indexes episodes.
func (m *Meili) IndexEpisodes(records []EpisodeRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxEpisodes).AddDocuments(records, nil)
	return err
}

// DeleteEpisode removes an episode from the search index.
func (m *Meili) DeleteEpisode(id int64) error {
	_, err := m.client.Index(idxEpisodes).DeleteDocument(strconv.FormatInt(id, 10), nil)
	return err
}
