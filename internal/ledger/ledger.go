// Package ledger reads the chain indexer, the query service over the
// distributed ledger. It is strictly read-only; transaction construction and
// submission belong to the wallet side of the platform.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"trellis/api/internal/upstream"
)

// Module is a chain-resident credential record.
type Module struct {
	Hash        string    `json:"hash"`
	CreatedBy   string    `json:"created_by"`
	Prereqs     []string  `json:"prereqs"`
	Reward      int64     `json:"reward"`
	CreatedAt   time.Time `json:"created_at"`
	BlockHeight int64     `json:"block_height"`
}

// Commitment is a chain-resident attempt against a module or task.
type Commitment struct {
	ID          string    `json:"id"`
	ModuleHash  string    `json:"module_hash"`
	TaskHash    string    `json:"task_hash"`
	CommittedBy string    `json:"committed_by"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// Task is a chain-resident project task.
type Task struct {
	Hash        string    `json:"hash"`
	ProjectHash string    `json:"project_hash"`
	CreatedBy   string    `json:"created_by"`
	Reward      int64     `json:"reward"`
	CreatedAt   time.Time `json:"created_at"`
}

// Project is a chain-resident task container.
type Project struct {
	Hash       string    `json:"hash"`
	CreatedBy  string    `json:"created_by"`
	TaskHashes []string  `json:"task_hashes"`
	CreatedAt  time.Time `json:"created_at"`
}

// Service wraps the indexer's HTTP API.
type Service struct {
	api *upstream.Client
}

func New(api *upstream.Client) *Service {
	return &Service{api: api}
}

// Modules lists every module the indexer knows. 404 means the indexer has
// none yet.
func (s *Service) Modules(ctx context.Context) ([]Module, error) {
	return list[Module](ctx, s, "/v1/modules")
}

// Module fetches one module by hash; nil means the chain has no such module.
func (s *Service) Module(ctx context.Context, hash string) (*Module, error) {
	return one[Module](ctx, s, "/v1/modules/"+hash)
}

// CommitmentsByModule lists chain commitments against one module.
func (s *Service) CommitmentsByModule(ctx context.Context, hash string) ([]Commitment, error) {
	return list[Commitment](ctx, s, "/v1/modules/"+hash+"/commitments")
}

// Tasks lists every chain task.
func (s *Service) Tasks(ctx context.Context) ([]Task, error) {
	return list[Task](ctx, s, "/v1/tasks")
}

// Task fetches one task by hash.
func (s *Service) Task(ctx context.Context, hash string) (*Task, error) {
	return one[Task](ctx, s, "/v1/tasks/"+hash)
}

// Projects lists every chain project.
func (s *Service) Projects(ctx context.Context) ([]Project, error) {
	return list[Project](ctx, s, "/v1/projects")
}

// Ping reports indexer reachability for health checks.
func (s *Service) Ping(ctx context.Context) error {
	return s.api.Ping(ctx)
}

func list[T any](ctx context.Context, s *Service, path string) ([]T, error) {
	body, err := s.api.Get(ctx, path)
	if errors.Is(err, upstream.ErrNotFound) {
		return []T{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("indexer get %s: %w", path, err)
	}
	items, warning, err := upstream.DecodeList[T](body)
	if warning != "" {
		log.Printf("indexer warning on %s: %s", path, warning)
	}
	if err != nil {
		log.Printf("indexer shape drift on %s: %v", path, err)
		return []T{}, nil
	}
	return items, nil
}

func one[T any](ctx context.Context, s *Service, path string) (*T, error) {
	body, err := s.api.Get(ctx, path)
	if errors.Is(err, upstream.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("indexer get %s: %w", path, err)
	}
	item, warning, err := upstream.DecodeOne[T](body)
	if warning != "" {
		log.Printf("indexer warning on %s: %s", path, warning)
	}
	if err != nil {
		log.Printf("indexer shape drift on %s: %v", path, err)
		return nil, nil
	}
	return item, nil
}
