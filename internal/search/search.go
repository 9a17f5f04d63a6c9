package search

// Result is a single search hit returned to the caller.
type Result struct {
	EpisodeID int64  `json:"episode_id"`
	Title     string `json:"title"`
	Snippet   string `json:"snippet"`
	TrackID   int64  `json:"track_id"`
	Status    string `json:"status"`
}

// Query describes a search request.
type Query struct {
	Text    string
	TrackID int64 // 0 = all tracks
	Limit   int
	Offset  int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// EpisodeRecord is the data we index for an episode.
type EpisodeRecord struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Plan     string `json:"plan"`
	Scenario string `json:"scenario"`
	TrackID  int64  `json:"track_id"`
	Status   string `json:"status"`
}
