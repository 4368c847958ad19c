package search

// Result is a single heading hit returned to the caller.
type Result struct {
	ID       int64    `json:"id"`
	Name     string   `json:"name"`
	Snippet  string   `json:"snippet"`
	Families []string `json:"families"`
	Status   string   `json:"status"`
	Stage    string   `json:"stage"`
}

// Query describes a search request, always scoped to one account.
type Query struct {
	Text      string
	AccountID int64
	Limit     int
	Offset    int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push headings into a search index.
type Indexer interface {
	IndexHeading(h HeadingRecord) error
	DeleteHeading(id int64) error
}

// HeadingRecord is the data we index for a heading.
type HeadingRecord struct {
	ID        int64    `json:"id"`
	AccountID int64    `json:"accountId"`
	Name      string   `json:"name"`
	Families  []string `json:"families"`
	Status    string   `json:"status"`
	Stage     string   `json:"stage"`
}
