// Package reconcile merges the two halves of every entity into the canonical
// shape handed to presentation code. Reads classify provenance and normalize
// statuses; the one write path submits a draft's partial update and reports
// which cached views went stale. The package holds no state and adds no
// retries; retry and timeout policy live in the transport clients.
package reconcile

import (
	"context"
	"fmt"
	"sync"

	"trellis/api/internal/contentdb"
	"trellis/api/internal/draft"
	"trellis/api/internal/entity"
	"trellis/api/internal/ledger"
	"trellis/api/internal/status"
	"trellis/api/internal/viewcache"
)

// ChainReader is the slice of the chain indexer this package needs.
type ChainReader interface {
	Modules(ctx context.Context) ([]ledger.Module, error)
	Module(ctx context.Context, hash string) (*ledger.Module, error)
	CommitmentsByModule(ctx context.Context, hash string) ([]ledger.Commitment, error)
	Tasks(ctx context.Context) ([]ledger.Task, error)
	Task(ctx context.Context, hash string) (*ledger.Task, error)
	Projects(ctx context.Context) ([]ledger.Project, error)
}

// ContentReader is the slice of the content API this package needs.
type ContentReader interface {
	Modules(ctx context.Context) ([]contentdb.ModuleRow, error)
	Module(ctx context.Context, id string) (*contentdb.ModuleRow, error)
	CommitmentsByModule(ctx context.Context, moduleID string) ([]contentdb.CommitmentRow, error)
	Tasks(ctx context.Context) ([]contentdb.TaskRow, error)
	Task(ctx context.Context, id string) (*contentdb.TaskRow, error)
	Projects(ctx context.Context) ([]contentdb.ProjectRow, error)
	Courses(ctx context.Context) ([]contentdb.CourseRow, error)
	SubmitModuleUpdate(ctx context.Context, id string, req draft.UpdateRequest) (*contentdb.UpdateResult, error)
}

// Service is the reconciliation coordinator.
type Service struct {
	chain   ChainReader
	content ContentReader
}

func New(chain ChainReader, content ContentReader) *Service {
	return &Service{chain: chain, content: content}
}

// CommitmentView pairs the per-item records with the single status the UI
// should surface for their parent.
type CommitmentView struct {
	Items []entity.Commitment `json:"items"`
	// Aggregate is empty when there are no commitments at all.
	Aggregate string `json:"aggregate,omitempty"`
}

// SaveOutcome reports a successful draft save: the re-reconciled module, the
// per-kind change counts for the confirmation message, and the cache keys
// the save made stale.
type SaveOutcome struct {
	Module      entity.Module
	Changes     contentdb.ChangeCounts
	Invalidated []viewcache.Key
}

// ListModules returns every module either store knows, reconciled. The two
// stores are listed concurrently; chain-listed modules come first in chain
// order, database-only ones follow in database order.
func (s *Service) ListModules(ctx context.Context) ([]entity.Module, error) {
	var (
		wg        sync.WaitGroup
		chainMods []ledger.Module
		rows      []contentdb.ModuleRow
		chainErr  error
		rowsErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		chainMods, chainErr = s.chain.Modules(ctx)
	}()
	go func() {
		defer wg.Done()
		rows, rowsErr = s.content.Modules(ctx)
	}()
	wg.Wait()
	if chainErr != nil {
		return nil, fmt.Errorf("list chain modules: %w", chainErr)
	}
	if rowsErr != nil {
		return nil, fmt.Errorf("list module content: %w", rowsErr)
	}

	rowByID := make(map[string]*contentdb.ModuleRow, len(rows))
	for i := range rows {
		rowByID[rows[i].ID] = &rows[i]
	}

	out := make([]entity.Module, 0, len(chainMods)+len(rows))
	seen := make(map[string]bool, len(chainMods))
	for i := range chainMods {
		cm := &chainMods[i]
		out = append(out, buildModule(cm, rowByID[cm.Hash]))
		seen[cm.Hash] = true
	}
	for i := range rows {
		if seen[rows[i].ID] {
			continue
		}
		out = append(out, buildModule(nil, &rows[i]))
	}
	return out, nil
}

// GetModule reconciles one module; nil means neither store knows it.
func (s *Service) GetModule(ctx context.Context, id string) (*entity.Module, error) {
	chainMod, err := s.chain.Module(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get chain module: %w", err)
	}
	row, err := s.content.Module(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get module content: %w", err)
	}
	if chainMod == nil && row == nil {
		return nil, nil
	}
	m := buildModule(chainMod, row)
	return &m, nil
}

// CommitmentsByModule reconciles the commitment records against one module
// and resolves their aggregate status.
func (s *Service) CommitmentsByModule(ctx context.Context, moduleID string) (*CommitmentView, error) {
	chainCommits, err := s.chain.CommitmentsByModule(ctx, moduleID)
	if err != nil {
		return nil, fmt.Errorf("list chain commitments: %w", err)
	}
	rows, err := s.content.CommitmentsByModule(ctx, moduleID)
	if err != nil {
		return nil, fmt.Errorf("list commitment content: %w", err)
	}

	rowByID := make(map[string]*contentdb.CommitmentRow, len(rows))
	for i := range rows {
		rowByID[rows[i].ID] = &rows[i]
	}

	view := &CommitmentView{Items: make([]entity.Commitment, 0, len(chainCommits)+len(rows))}
	seen := make(map[string]bool, len(chainCommits))
	for i := range chainCommits {
		cc := &chainCommits[i]
		view.Items = append(view.Items, buildCommitment(cc, rowByID[cc.ID]))
		seen[cc.ID] = true
	}
	for i := range rows {
		if seen[rows[i].ID] {
			continue
		}
		view.Items = append(view.Items, buildCommitment(nil, &rows[i]))
	}

	statuses := make([]string, len(view.Items))
	for i, c := range view.Items {
		statuses[i] = c.Status
	}
	if aggregate, ok := status.Resolve(statuses); ok {
		view.Aggregate = aggregate
	}
	return view, nil
}

// ListTasks reconciles the task collection.
func (s *Service) ListTasks(ctx context.Context) ([]entity.Task, error) {
	chainTasks, err := s.chain.Tasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list chain tasks: %w", err)
	}
	rows, err := s.content.Tasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list task content: %w", err)
	}

	rowByID := make(map[string]*contentdb.TaskRow, len(rows))
	for i := range rows {
		rowByID[rows[i].ID] = &rows[i]
	}

	out := make([]entity.Task, 0, len(chainTasks)+len(rows))
	seen := make(map[string]bool, len(chainTasks))
	for i := range chainTasks {
		ct := &chainTasks[i]
		out = append(out, buildTask(ct, rowByID[ct.Hash]))
		seen[ct.Hash] = true
	}
	for i := range rows {
		if seen[rows[i].ID] {
			continue
		}
		out = append(out, buildTask(nil, &rows[i]))
	}
	return out, nil
}

// GetTask reconciles one task; nil means neither store knows it.
func (s *Service) GetTask(ctx context.Context, id string) (*entity.Task, error) {
	chainTask, err := s.chain.Task(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get chain task: %w", err)
	}
	row, err := s.content.Task(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get task content: %w", err)
	}
	if chainTask == nil && row == nil {
		return nil, nil
	}
	t := buildTask(chainTask, row)
	return &t, nil
}

// ListProjects reconciles the project collection.
func (s *Service) ListProjects(ctx context.Context) ([]entity.Project, error) {
	chainProjects, err := s.chain.Projects(ctx)
	if err != nil {
		return nil, fmt.Errorf("list chain projects: %w", err)
	}
	rows, err := s.content.Projects(ctx)
	if err != nil {
		return nil, fmt.Errorf("list project content: %w", err)
	}

	rowByID := make(map[string]*contentdb.ProjectRow, len(rows))
	for i := range rows {
		rowByID[rows[i].ID] = &rows[i]
	}

	out := make([]entity.Project, 0, len(chainProjects)+len(rows))
	seen := make(map[string]bool, len(chainProjects))
	for i := range chainProjects {
		cp := &chainProjects[i]
		out = append(out, buildProject(cp, rowByID[cp.Hash]))
		seen[cp.Hash] = true
	}
	for i := range rows {
		if seen[rows[i].ID] {
			continue
		}
		out = append(out, buildProject(nil, &rows[i]))
	}
	return out, nil
}

// ListCourses returns the course catalog. Courses live only in the content
// database; there is nothing to merge.
func (s *Service) ListCourses(ctx context.Context) ([]entity.Course, error) {
	rows, err := s.content.Courses(ctx)
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	out := make([]entity.Course, 0, len(rows))
	for _, row := range rows {
		out = append(out, entity.Course{
			ID:          row.ID,
			Source:      entity.SourceDBOnly,
			Title:       row.Title,
			Description: row.Description,
			ImageURL:    row.ImageURL,
			ModuleIDs:   row.ModuleIDs,
		})
	}
	return out, nil
}

// SaveModuleDraft builds the partial update for a draft, submits it, and on
// success reconciles the echoed module and lists the stale cache keys: the
// module itself, the module list, the counts view, and the module's
// commitment view when the save changed its children. Errors pass through
// untouched so the caller can branch on domain rejections.
func (s *Service) SaveModuleDraft(ctx context.Context, d draft.Draft) (*SaveOutcome, error) {
	req := draft.BuildRequest(d)
	result, err := s.content.SubmitModuleUpdate(ctx, d.ModuleID, req)
	if err != nil {
		return nil, err
	}

	// Re-merge with the chain half so the caller sees a canonical entity,
	// not a raw store payload. A chain read failure here must not turn a
	// completed save into an error; the ledger half is simply omitted.
	chainMod, chainErr := s.chain.Module(ctx, d.ModuleID)
	if chainErr != nil {
		chainMod = nil
	}

	outcome := &SaveOutcome{
		Module:  buildModule(chainMod, &result.Module),
		Changes: result.Changes,
		Invalidated: []viewcache.Key{
			viewcache.EntityKey(entity.KindModule, d.ModuleID),
			viewcache.ListKey(entity.KindModule),
			viewcache.CountsKey(),
		},
	}
	if result.Changes != (contentdb.ChangeCounts{}) {
		outcome.Invalidated = append(outcome.Invalidated,
			viewcache.ChildKey(entity.KindCommitment, d.ModuleID, ""))
	}
	return outcome, nil
}

func buildModule(chainMod *ledger.Module, row *contentdb.ModuleRow) entity.Module {
	src := classifyWith(rowSource(row), chainMod != nil, row != nil)

	m := entity.Module{Source: src}
	if chainMod != nil {
		m.ID = chainMod.Hash
		m.Ledger = &entity.LedgerPayload{
			Hash:        chainMod.Hash,
			CreatedBy:   chainMod.CreatedBy,
			Prereqs:     chainMod.Prereqs,
			Reward:      chainMod.Reward,
			CreatedAt:   chainMod.CreatedAt,
			BlockHeight: chainMod.BlockHeight,
		}
	}

	raw := ""
	if row != nil {
		m.ID = row.ID
		m.Title = row.Title
		m.Description = row.Description
		m.ImageURL = row.ImageURL
		m.VideoURL = row.VideoURL
		m.UpdatedAt = row.UpdatedAt
		raw = row.Status
		for _, s := range row.SLTs {
			m.SLTs = append(m.SLTs, entity.SLT{Index: s.SLTIndex, Text: s.Text})
		}
		if row.Assignment != nil {
			m.Assignment = &entity.Assignment{Title: row.Assignment.Title, Body: row.Assignment.Body, URL: row.Assignment.URL}
		}
		if row.Intro != nil {
			m.Intro = &entity.Intro{Body: row.Intro.Body, VideoURL: row.Intro.VideoURL}
		}
		for _, l := range row.Lessons {
			m.Lessons = append(m.Lessons, entity.Lesson{SLTIndex: l.SLTIndex, Title: l.Title, Body: l.Body, VideoURL: l.VideoURL})
		}
	}
	m.Status = status.Normalize(raw, entity.KindModule, src)
	return m
}

func buildCommitment(chainCommit *ledger.Commitment, row *contentdb.CommitmentRow) entity.Commitment {
	src := classifyWith("", chainCommit != nil, row != nil)

	c := entity.Commitment{Source: src}
	raw := ""
	if chainCommit != nil {
		c.ID = chainCommit.ID
		c.ModuleID = chainCommit.ModuleHash
		c.TaskID = chainCommit.TaskHash
		c.CommittedBy = chainCommit.CommittedBy
		c.Ledger = &entity.LedgerPayload{Hash: chainCommit.ID, CreatedBy: chainCommit.CommittedBy, CreatedAt: chainCommit.CreatedAt}
		raw = chainCommit.Status
	}
	if row != nil {
		c.ID = row.ID
		if row.ModuleID != "" {
			c.ModuleID = row.ModuleID
		}
		if row.TaskID != "" {
			c.TaskID = row.TaskID
		}
		c.Note = row.Note
		// The mutable store owns workflow status when it has one recorded.
		if row.Status != "" {
			raw = row.Status
		}
	}
	c.Status = status.Normalize(raw, entity.KindCommitment, src)
	return c
}

func buildTask(chainTask *ledger.Task, row *contentdb.TaskRow) entity.Task {
	src := classifyWith(rowTaskSource(row), chainTask != nil, row != nil)

	t := entity.Task{Source: src}
	raw := ""
	if chainTask != nil {
		t.ID = chainTask.Hash
		t.ProjectID = chainTask.ProjectHash
		t.Reward = chainTask.Reward
		t.Ledger = &entity.LedgerPayload{
			Hash:      chainTask.Hash,
			CreatedBy: chainTask.CreatedBy,
			Reward:    chainTask.Reward,
			CreatedAt: chainTask.CreatedAt,
		}
	}
	if row != nil {
		t.ID = row.ID
		if row.ProjectID != "" {
			t.ProjectID = row.ProjectID
		}
		t.Title = row.Title
		t.Description = row.Description
		raw = row.Status
	}
	t.Status = status.Normalize(raw, entity.KindTask, src)
	return t
}

func buildProject(chainProject *ledger.Project, row *contentdb.ProjectRow) entity.Project {
	srcTag := ""
	if row != nil {
		srcTag = row.Source
	}
	src := classifyWith(srcTag, chainProject != nil, row != nil)

	p := entity.Project{Source: src}
	raw := ""
	if chainProject != nil {
		p.ID = chainProject.Hash
		p.TaskIDs = chainProject.TaskHashes
		p.Ledger = &entity.LedgerPayload{
			Hash:      chainProject.Hash,
			CreatedBy: chainProject.CreatedBy,
			CreatedAt: chainProject.CreatedAt,
		}
	}
	if row != nil {
		p.ID = row.ID
		p.Title = row.Title
		p.Description = row.Description
		if len(row.TaskIDs) > 0 {
			p.TaskIDs = row.TaskIDs
		}
		raw = row.Status
	}
	p.Status = status.Normalize(raw, entity.KindProject, src)
	return p
}

// classifyWith applies the dual-path rule: a recognized explicit tag is
// authoritative, presence is the fallback.
func classifyWith(tag string, hasLedger, hasDB bool) entity.Source {
	if src, ok := entity.SourceFromTag(tag); ok {
		return src
	}
	return entity.Classify(hasLedger, hasDB)
}

func rowSource(row *contentdb.ModuleRow) string {
	if row == nil {
		return ""
	}
	return row.Source
}

func rowTaskSource(row *contentdb.TaskRow) string {
	if row == nil {
		return ""
	}
	return row.Source
}
