package search

// ResultType identifies which catalog kind a search hit came from.
type ResultType string

const (
	ResultModule  ResultType = "module"
	ResultTask    ResultType = "task"
	ResultProject ResultType = "project"
	ResultCourse  ResultType = "course"
)

// Result is one search hit, shaped for the catalog browser.
type Result struct {
	Type    ResultType `json:"type"`
	ID      string     `json:"id"`
	Title   string     `json:"title"`
	Snippet string     `json:"snippet"`
	Status  string     `json:"status,omitempty"`
	Source  string     `json:"source,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text         string
	FilterKind   ResultType // empty = all kinds
	FilterStatus string
	Limit        int
	Offset       int
	// HideDrafts is set for callers who may only see published content.
	HideDrafts bool
}

// Response is what the search endpoint returns: the merged hits plus the
// engine's estimate of how many matched in total.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher runs a full-text query against one engine.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer keeps an external engine's view of the catalog current.
type Indexer interface {
	IndexEntry(rec CatalogRecord) error
	IndexEntries(recs []CatalogRecord) error
	DeleteEntry(kind ResultType, id string) error
}

// CatalogRecord is the indexed shape of one catalog entry.
type CatalogRecord struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Source      string `json:"source"`
}
