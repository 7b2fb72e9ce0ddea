// Package contentdb talks to the content API, the mutable relational half of
// the platform. Reads mirror the indexer client; the one write path submits
// a draft's partial update and distinguishes domain rejections from
// transport failures so callers can branch on them.
package contentdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"trellis/api/internal/draft"
	"trellis/api/internal/upstream"
)

// Domain rejection codes the content API emits.
const (
	CodeLockViolation = "LOCK_VIOLATION"
	CodeValidation    = "VALIDATION_ERROR"
)

// RejectionError is a domain-level refusal by the content API, as opposed to
// a transport failure. A LOCK_VIOLATION means another session approved the
// module first; the caller must re-fetch and re-open the draft rather than
// retry the same request.
type RejectionError struct {
	Status  int
	Code    string
	Message string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("content api rejected: %s: %s", e.Code, e.Message)
}

// IsLockViolation reports whether err is a stale-lock rejection.
func IsLockViolation(err error) bool {
	var rej *RejectionError
	return errors.As(err, &rej) && rej.Code == CodeLockViolation
}

// SLTRow is a stored learning target.
type SLTRow struct {
	SLTIndex int    `json:"slt_index"`
	Text     string `json:"text"`
}

// AssignmentRow is the stored assignment singleton.
type AssignmentRow struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
}

// IntroRow is the stored introduction singleton.
type IntroRow struct {
	Body     string `json:"body"`
	VideoURL string `json:"video_url"`
}

// LessonRow is one stored lesson, keyed by SLT position.
type LessonRow struct {
	SLTIndex int    `json:"slt_index"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	VideoURL string `json:"video_url"`
}

// ModuleRow is a module's database payload. Source, when set, is the
// server-computed provenance tag and is authoritative over any client-side
// presence heuristic.
type ModuleRow struct {
	ID          string         `json:"id"`
	Source      string         `json:"source"`
	Status      string         `json:"status"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	ImageURL    string         `json:"image_url"`
	VideoURL    string         `json:"video_url"`
	SLTs        []SLTRow       `json:"slts"`
	Assignment  *AssignmentRow `json:"assignment"`
	Intro       *IntroRow      `json:"intro"`
	Lessons     []LessonRow    `json:"lessons"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// CommitmentRow is a commitment's database payload.
type CommitmentRow struct {
	ID       string `json:"id"`
	ModuleID string `json:"module_id"`
	TaskID   string `json:"task_id"`
	Status   string `json:"status"`
	Note     string `json:"note"`
}

// TaskRow is a task's database payload.
type TaskRow struct {
	ID          string `json:"id"`
	ProjectID   string `json:"project_id"`
	Source      string `json:"source"`
	Status      string `json:"status"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// ProjectRow is a project's database payload.
type ProjectRow struct {
	ID          string   `json:"id"`
	Source      string   `json:"source"`
	Status      string   `json:"status"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	TaskIDs     []string `json:"task_ids"`
}

// CourseRow is a course; courses live only in the database.
type CourseRow struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	ImageURL    string   `json:"image_url"`
	ModuleIDs   []string `json:"module_ids"`
}

// Counts enumerates what one save did to one child kind. Display data only;
// correctness never depends on it.
type Counts struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
}

// ChangeCounts groups per-kind counts for a save confirmation.
type ChangeCounts struct {
	SLTs       Counts `json:"slts"`
	Lessons    Counts `json:"lessons"`
	Assignment Counts `json:"assignment"`
	Intro      Counts `json:"intro"`
}

// UpdateResult is the content API's echo after a successful save.
type UpdateResult struct {
	Module  ModuleRow    `json:"module"`
	Changes ChangeCounts `json:"changes"`
}

// Service wraps the content API.
type Service struct {
	api *upstream.Client
}

func New(api *upstream.Client) *Service {
	return &Service{api: api}
}

// Modules lists module content rows.
func (s *Service) Modules(ctx context.Context) ([]ModuleRow, error) {
	return list[ModuleRow](ctx, s, "/api/modules")
}

// Module fetches one module's content; nil means the database has none.
func (s *Service) Module(ctx context.Context, id string) (*ModuleRow, error) {
	return one[ModuleRow](ctx, s, "/api/modules/"+id)
}

// CommitmentsByModule lists the database-side commitment rows for a module.
func (s *Service) CommitmentsByModule(ctx context.Context, moduleID string) ([]CommitmentRow, error) {
	return list[CommitmentRow](ctx, s, "/api/modules/"+moduleID+"/commitments")
}

// Tasks lists task content rows.
func (s *Service) Tasks(ctx context.Context) ([]TaskRow, error) {
	return list[TaskRow](ctx, s, "/api/tasks")
}

// Task fetches one task's content.
func (s *Service) Task(ctx context.Context, id string) (*TaskRow, error) {
	return one[TaskRow](ctx, s, "/api/tasks/"+id)
}

// Projects lists project content rows.
func (s *Service) Projects(ctx context.Context) ([]ProjectRow, error) {
	return list[ProjectRow](ctx, s, "/api/projects")
}

// Courses lists courses.
func (s *Service) Courses(ctx context.Context) ([]CourseRow, error) {
	return list[CourseRow](ctx, s, "/api/courses")
}

// SubmitModuleUpdate sends a draft's computed partial update. Domain
// refusals come back as *RejectionError; anything else keeps its transport
// error shape.
func (s *Service) SubmitModuleUpdate(ctx context.Context, id string, req draft.UpdateRequest) (*UpdateResult, error) {
	body, err := s.api.Do(ctx, "PATCH", "/api/modules/"+id, req)
	if err != nil {
		if rej := rejectionFrom(err); rej != nil {
			return nil, rej
		}
		return nil, fmt.Errorf("submit module update: %w", err)
	}

	result, warning, err := upstream.DecodeOne[UpdateResult](body)
	if warning != "" {
		log.Printf("content api warning on module %s update: %s", id, warning)
	}
	if err != nil {
		return nil, fmt.Errorf("decode update result: %w", err)
	}
	if result == nil {
		return nil, fmt.Errorf("decode update result: empty response")
	}
	return result, nil
}

// Ping reports content API reachability for health checks.
func (s *Service) Ping(ctx context.Context) error {
	return s.api.Ping(ctx)
}

// rejectionFrom extracts a domain rejection from a non-2xx response body of
// the form {"error": {"code": ..., "message": ...}}. A body without that
// envelope stays a transport failure.
func rejectionFrom(err error) *RejectionError {
	var statusErr *upstream.StatusError
	if !errors.As(err, &statusErr) {
		return nil
	}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if jsonErr := json.Unmarshal(statusErr.Body, &envelope); jsonErr != nil {
		return nil
	}
	if envelope.Error.Code == "" {
		return nil
	}
	return &RejectionError{
		Status:  statusErr.Status,
		Code:    envelope.Error.Code,
		Message: envelope.Error.Message,
	}
}

func list[T any](ctx context.Context, s *Service, path string) ([]T, error) {
	body, err := s.api.Get(ctx, path)
	if errors.Is(err, upstream.ErrNotFound) {
		return []T{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("content api get %s: %w", path, err)
	}
	items, warning, err := upstream.DecodeList[T](body)
	if warning != "" {
		log.Printf("content api warning on %s: %s", path, warning)
	}
	if err != nil {
		log.Printf("content api shape drift on %s: %v", path, err)
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
		return nil, fmt.Errorf("content api get %s: %w", path, err)
	}
	item, warning, err := upstream.DecodeOne[T](body)
	if warning != "" {
		log.Printf("content api warning on %s: %s", path, warning)
	}
	if err != nil {
		log.Printf("content api shape drift on %s: %v", path, err)
		return nil, nil
	}
	return item, nil
}
