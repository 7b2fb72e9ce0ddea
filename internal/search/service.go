package search

import (
	"context"
	"log"
)

// Service routes catalog queries to whichever engine is available:
// Meilisearch when reachable, the Postgres projection otherwise.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService wires the facade. meili is nil when no MEILI_URL is configured;
// every query then goes straight to Postgres.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// Search answers from Meilisearch when healthy, falling back to Postgres
// full-text search. A failing engine never surfaces an error to the caller;
// the response is just empty.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return respond(q, results, total)
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Query: q.Text}
	}
	return respond(q, results, total)
}

// respond normalizes a raw engine result set into the API response shape.
func respond(q Query, results []Result, total int) Response {
	if results == nil {
		results = []Result{}
	}
	return Response{
		Results: sanitizeResults(results, q.HideDrafts),
		Total:   total,
		Query:   q.Text,
	}
}

// IndexEntry pushes one catalog entry to Meilisearch in the background.
// Indexing failures are logged and otherwise ignored; Postgres remains the
// source of truth and the next reindex repairs the gap.
func (s *Service) IndexEntry(rec CatalogRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexEntry(rec); err != nil {
			log.Printf("search: index %s %s: %v", rec.Kind, rec.ID, err)
		}
	}()
}

// DeleteEntry removes a catalog entry from the search index in the background.
func (s *Service) DeleteEntry(kind ResultType, id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteEntry(kind, id); err != nil {
			log.Printf("search: delete %s %s: %v", kind, id, err)
		}
	}()
}

// ReindexAll pushes a batch of catalog entries to Meilisearch.
func (s *Service) ReindexAll(recs []CatalogRecord) {
	if s.meili == nil || !s.meili.Healthy() || len(recs) == 0 {
		return
	}
	if err := s.meili.IndexEntries(recs); err != nil {
		log.Printf("search: reindex catalog: %v", err)
	}
}

// ReindexAllFromPG reads the whole catalog snapshot from PostgreSQL and
// pushes it to Meilisearch. Called at startup when Meilisearch is healthy.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	records, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	s.ReindexAll(records)
}

// sanitizeResults drops draft-status entries for callers restricted to
// published content, even when a stale index still returns them.
func sanitizeResults(results []Result, hideDrafts bool) []Result {
	if !hideDrafts {
		return results
	}
	filtered := make([]Result, 0, len(results))
	for _, result := range results {
		if result.Status == "DRAFTING" || result.Status == "DRAFT" {
			continue
		}
		filtered = append(filtered, result)
	}
	return filtered
}
