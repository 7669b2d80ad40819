package history

import "time"

// Result is a single retrieved source attached to a turn
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Turn is one query/results/response triple in a session
type Turn struct {
	Query         string    `json:"query"`
	SearchResults []Result  `json:"search_results"`
	Response      string    `json:"response"`
	CreatedAt     time.Time `json:"created_at"`
}

// Session is the ordered turn history of one live connection
type Session struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	Turns     []*Turn   `json:"turns"`
}
