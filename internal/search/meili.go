package search

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

// One Meilisearch index per catalog kind. Separate indexes keep per-kind
// totals cheap and let a reindex touch one kind at a time.
const (
	idxModules  = "trellis_modules"
	idxTasks    = "trellis_tasks"
	idxProjects = "trellis_projects"
	idxCourses  = "trellis_courses"
)

// kindIndexes fixes the order in which the catalog kinds are queried and
// reported.
var kindIndexes = []struct {
	kind ResultType
	uid  string
}{
	{ResultModule, idxModules},
	{ResultTask, idxTasks},
	{ResultProject, idxProjects},
	{ResultCourse, idxCourses},
}

func indexFor(kind ResultType) string {
	for _, ki := range kindIndexes {
		if ki.kind == kind {
			return ki.uid
		}
	}
	return ""
}

func kindFor(uid string) ResultType {
	for _, ki := range kindIndexes {
		if ki.uid == uid {
			return ki.kind
		}
	}
	return ""
}

// Meili is the primary engine. It implements both Searcher and Indexer
// against one Meilisearch instance.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{} // closed by Close to stop the monitor
}

// NewMeili dials Meilisearch and prepares the catalog indexes. A failed
// first probe leaves the engine marked unhealthy; the background monitor
// keeps probing so it can come back without a restart.
func NewMeili(url, apiKey string) *Meili {
	m := &Meili{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		done:   make(chan struct{}),
	}
	if _, err := m.client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}
	go m.monitor()
	return m
}

// configureIndexes creates the catalog indexes and applies their settings.
// Failures are logged and skipped: an index that already exists comes back
// as a conflict, and settings are retried on the next recovery anyway.
func (m *Meili) configureIndexes() {
	for _, ki := range kindIndexes {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: ki.uid, PrimaryKey: "id"}); err != nil {
			log.Printf("search: create index %s (may already exist): %v", ki.uid, err)
		}
		idx := m.client.Index(ki.uid)
		filterable := []interface{}{"status", "source"}
		if _, err := idx.UpdateFilterableAttributes(&filterable); err != nil {
			log.Printf("search: index %s filterable attributes: %v", ki.uid, err)
		}
		searchable := []string{"title", "description"}
		if _, err := idx.UpdateSearchableAttributes(&searchable); err != nil {
			log.Printf("search: index %s searchable attributes: %v", ki.uid, err)
		}
	}
}

// monitor re-probes Meilisearch every ten seconds. Recovery after an
// outage reapplies index settings in case the instance came back empty.
func (m *Meili) monitor() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
		}
		_, err := m.client.Health()
		recovered := err == nil && !m.healthy.Load()
		m.healthy.Store(err == nil)
		if recovered {
			log.Println("search: meilisearch recovered, reapplying index settings")
			m.configureIndexes()
		}
	}
}

// Close stops the health monitor goroutine.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether the last probe reached Meilisearch.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search fans the query out across the catalog indexes in one multi-search
// call and merges the hits in kind order.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	var queries []*meili.SearchRequest
	for _, ki := range kindIndexes {
		if q.FilterKind != "" && q.FilterKind != ki.kind {
			continue
		}
		queries = append(queries, buildRequest(q, ki.uid))
	}
	if len(queries) == 0 {
		return nil, 0, nil
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{Queries: queries})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var merged []Result
	total := 0
	for _, part := range resp.Results {
		total += int(part.EstimatedTotalHits)
		kind := kindFor(part.IndexUID)
		for _, hit := range part.Hits {
			merged = append(merged, hitToResult(hit, kind))
		}
	}
	return merged, total, nil
}

// buildRequest shapes the per-index request. Highlighting wraps matches in
// <mark> tags, which the editor renders directly.
func buildRequest(q Query, uid string) *meili.SearchRequest {
	req := &meili.SearchRequest{
		IndexUID:              uid,
		Query:                 q.Text,
		Limit:                 requestLimit(q),
		Offset:                int64(q.Offset),
		AttributesToHighlight: []string{"*"},
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
	}
	if filters := buildFilters(q); len(filters) > 0 {
		req.Filter = filters
	}
	return req
}

func requestLimit(q Query) int64 {
	if q.Limit <= 0 {
		return 20
	}
	return int64(q.Limit)
}

func buildFilters(q Query) []string {
	var filters []string
	if q.FilterStatus != "" {
		filters = append(filters, fmt.Sprintf("status = %q", q.FilterStatus))
	}
	if q.HideDrafts {
		filters = append(filters, `status != "DRAFTING"`, `status != "DRAFT"`)
	}
	return filters
}

func hitToResult(hit meili.Hit, kind ResultType) Result {
	return Result{
		Type:    kind,
		ID:      hitField(hit, "id"),
		Title:   hitText(hit, "title"),
		Snippet: hitText(hit, "description"),
		Status:  hitField(hit, "status"),
		Source:  hitField(hit, "source"),
	}
}

// hitField decodes one stored string field from a hit.
func hitField(hit meili.Hit, key string) string {
	var s string
	if raw, ok := hit[key]; ok {
		_ = json.Unmarshal(raw, &s)
	}
	return s
}

// hitText prefers the highlighted form of a field, falling back to the
// stored value when Meilisearch returned no _formatted block.
func hitText(hit meili.Hit, key string) string {
	if raw, ok := hit["_formatted"]; ok {
		formatted := map[string]string{}
		if json.Unmarshal(raw, &formatted) == nil {
			if v := strings.TrimSpace(formatted[key]); v != "" {
				return v
			}
		}
	}
	return strings.TrimSpace(hitField(hit, key))
}

// IndexEntry adds or refreshes one catalog entry in its kind's index.
func (m *Meili) IndexEntry(rec CatalogRecord) error {
	uid := indexFor(ResultType(rec.Kind))
	if uid == "" {
		return fmt.Errorf("unknown catalog kind %q", rec.Kind)
	}
	_, err := m.client.Index(uid).AddDocuments([]CatalogRecord{rec}, nil)
	return err
}

// IndexEntries bulk-indexes catalog entries, batched per kind.
func (m *Meili) IndexEntries(recs []CatalogRecord) error {
	batches := make(map[string][]CatalogRecord)
	for _, rec := range recs {
		if uid := indexFor(ResultType(rec.Kind)); uid != "" {
			batches[uid] = append(batches[uid], rec)
		}
	}
	for uid, batch := range batches {
		if _, err := m.client.Index(uid).AddDocuments(batch, nil); err != nil {
			return fmt.Errorf("index %s: %w", uid, err)
		}
	}
	return nil
}

// DeleteEntry removes a catalog entry from its kind's index.
func (m *Meili) DeleteEntry(kind ResultType, id string) error {
	uid := indexFor(kind)
	if uid == "" {
		return fmt.Errorf("unknown catalog kind %q", kind)
	}
	_, err := m.client.Index(uid).DeleteDocument(id, nil)
	return err
}
