package clipsearch

import "time"

// Sort orders accepted by the catalog
const (
	SortViews  = "views"
	SortRecent = "recent"
)

// Query describes one page request against the catalog
type Query struct {
	Term        string
	Language    string
	MinDuration float64 // seconds
	MaxDuration float64 // seconds
	Sort        string
	Page        int
	PageSize    int
}

// Movie is the film or show a clip was cut from
type Movie struct {
	Title   string   `json:"title"`
	Year    int      `json:"year,omitempty"`
	Runtime int      `json:"runtime,omitempty"` // minutes
	Cast    []string `json:"cast,omitempty"`
}

// Hit is one search result
type Hit struct {
	ID          string  `json:"id"`
	Slug        string  `json:"slug"`
	Title       string  `json:"title"`
	Transcript  string  `json:"transcript"`
	Subtitles   string  `json:"subtitles,omitempty"`
	DownloadURL string  `json:"download_url"`
	Duration    float64 `json:"duration"`
	Resolution  string  `json:"resolution,omitempty"`
	ViewCount   int64   `json:"view_count"`
	Language    string  `json:"language,omitempty"`
	Movie       Movie   `json:"movie"`

	// FetchedAt is when this client received the hit. Download URLs are
	// only honored for a short window after it.
	FetchedAt time.Time `json:"-"`
}

// Page is one page of results
type Page struct {
	Hits       []Hit `json:"hits"`
	Page       int   `json:"page"`
	TotalPages int   `json:"total_pages"`
	Total      int   `json:"total"`
}

// HasMore reports whether another page can be requested
func (p *Page) HasMore() bool {
	return len(p.Hits) > 0 && p.Page < p.TotalPages
}
