package models

// Site is one searchable Stack Exchange site from the site catalog.
type Site struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Audience string `json:"audience"`
	IconURL  string `json:"icon_url"`
	IsMeta   bool   `json:"is_meta"`
}

// Answer is a single question returned by a search. Link doubles as its identity.
type Answer struct {
	Title    string   `json:"title"`
	Link     string   `json:"link"`
	Tags     []string `json:"tags"`
	Answered bool     `json:"answered"`
}

// SearchParams describes one search against a site.
type SearchParams struct {
	Site  string   `json:"site"`
	Query string   `json:"query,omitempty"`
	Tags  []string `json:"tags,omitempty"`
	Limit int      `json:"limit"`
}
