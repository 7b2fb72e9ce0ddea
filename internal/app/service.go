package app

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"trellis/api/internal/auth"
	"trellis/api/internal/config"
	"trellis/api/internal/draft"
	"trellis/api/internal/email"
	"trellis/api/internal/entity"
	"trellis/api/internal/export"
	"trellis/api/internal/gitrepo"
	"trellis/api/internal/media"
	"trellis/api/internal/rbac"
	"trellis/api/internal/reconcile"
	"trellis/api/internal/search"
	"trellis/api/internal/session"
	"trellis/api/internal/status"
	"trellis/api/internal/store"
	"trellis/api/internal/util"
	"trellis/api/internal/viewcache"
)

// Session is the verified identity attached to a request. Tokens are issued
// by the platform gateway; this service only verifies them.
type Session struct {
	UserID   string
	UserName string
	Role     rbac.Role
}

// SLTEditInput addresses one learning target by its position in the draft's
// ordered collection, not by server index; new targets have no index yet.
type SLTEditInput struct {
	Position int    `json:"position"`
	Text     string `json:"text"`
}

// LessonEditInput carries one lesson keyed by the SLT position it teaches.
type LessonEditInput struct {
	SLTIndex int    `json:"sltIndex"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	VideoURL string `json:"videoUrl"`
}

// DraftUpdateInput is the PATCH body for an open draft session. Scalar
// pointers distinguish "not sent" from "set to empty"; collection edits are
// applied in the order add, update, remove.
type DraftUpdateInput struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	ImageURL    *string `json:"imageUrl"`
	VideoURL    *string `json:"videoUrl"`

	AddSLTs    []string       `json:"addSlts"`
	UpdateSLTs []SLTEditInput `json:"updateSlts"`
	RemoveSLTs []int          `json:"removeSlts"`

	Assignment       *draft.AssignmentPayload `json:"assignment"`
	DeleteAssignment bool                     `json:"deleteAssignment"`
	Intro            *draft.IntroPayload      `json:"intro"`
	DeleteIntro      bool                     `json:"deleteIntro"`

	Lessons       []LessonEditInput `json:"lessons"`
	RemoveLessons []int             `json:"removeLessons"`

	RequestApproval *bool `json:"requestApproval"`
}

type reconciler interface {
	ListModules(context.Context) ([]entity.Module, error)
	GetModule(context.Context, string) (*entity.Module, error)
	CommitmentsByModule(context.Context, string) (*reconcile.CommitmentView, error)
	ListTasks(context.Context) ([]entity.Task, error)
	GetTask(context.Context, string) (*entity.Task, error)
	ListProjects(context.Context) ([]entity.Project, error)
	ListCourses(context.Context) ([]entity.Course, error)
	SaveModuleDraft(context.Context, draft.Draft) (*reconcile.SaveOutcome, error)
}

// SessionStore is the draft-session backend. Redis serves it when
// configured; the Postgres store stands in otherwise.
type SessionStore interface {
	SaveDraftSession(context.Context, session.Record) error
	LookupDraftSession(ctx context.Context, moduleID, owner string) (session.Record, error)
	RevokeDraftSession(ctx context.Context, moduleID, owner string) error
}

// ViewCache is the canonical-view cache keyed by invalidation tuples.
type ViewCache interface {
	Get(context.Context, viewcache.Key) ([]byte, bool)
	Set(context.Context, viewcache.Key, []byte) error
	Invalidate(context.Context, ...viewcache.Key) error
}

type dataStore interface {
	InsertSaveLog(context.Context, store.SaveLogEntry) error
	ListSaveLog(ctx context.Context, moduleID string, limit int) ([]store.SaveLogEntry, error)
	UpsertCatalogEntry(context.Context, store.CatalogEntry) error
	CatalogCounts(context.Context) (map[string]int, error)
	PendingApprovalCount(context.Context) (int, error)
	Ping(ctx context.Context) error
}

type gitService interface {
	EnsureModuleRepo(moduleID string, initial gitrepo.Content, author string) error
	CommitSave(moduleID string, content gitrepo.Content, author, message string) (gitrepo.CommitInfo, error)
	GetContentByHash(moduleID, hash string) (gitrepo.Content, error)
	GetCommitByHash(moduleID, hash string) (gitrepo.CommitInfo, error)
	History(moduleID string, limit int) ([]gitrepo.CommitInfo, error)
	TagRevision(moduleID, hash, name string) error
}

type searchIndex interface {
	Search(q search.Query) search.Response
	IndexEntry(rec search.CatalogRecord)
}

type mediaUploader interface {
	Upload(ctx context.Context, filename, contentType string, r io.Reader, size int64) (string, error)
}

type notifier interface {
	SendApprovalNotice(to, userName, moduleTitle, moduleURL string) error
}

type exporter interface {
	Export(ctx context.Context, req export.Request) (*export.Result, error)
}

type Service struct {
	cfg      config.Config
	rec      reconciler
	sessions SessionStore
	store    dataStore
	git      gitService
	cache    ViewCache
	search   searchIndex
	media    mediaUploader
	email    notifier
	export   exporter

	saveMu sync.Mutex
	saving map[string]struct{}
}

func New(
	cfg config.Config,
	rec *reconcile.Service,
	sessions SessionStore,
	dataStore *store.PostgresStore,
	gitService *gitrepo.Service,
	cache ViewCache,
	searchSvc *search.Service,
	mediaSvc *media.Service,
	emailSvc *email.Service,
	exportSvc *export.Service,
) *Service {
	svc := &Service{
		cfg:      cfg,
		rec:      rec,
		sessions: sessions,
		store:    dataStore,
		git:      gitService,
		cache:    cache,
		saving:   make(map[string]struct{}),
	}
	if cache == nil {
		svc.cache = viewcache.Disabled{}
	}
	if searchSvc != nil {
		svc.search = searchSvc
	}
	if mediaSvc != nil {
		svc.media = mediaSvc
	}
	if emailSvc != nil && emailSvc.IsConfigured() {
		svc.email = emailSvc
	}
	if exportSvc != nil {
		svc.export = exportSvc
	}
	return svc
}

// SessionFromToken verifies a bearer token and returns the caller's
// identity. Unknown roles degrade to learner.
func (s *Service) SessionFromToken(token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.SessionSecret), token)
	if err != nil {
		return Session{}, err
	}
	return Session{
		UserID:   claims.Sub,
		UserName: claims.Name,
		Role:     rbac.Normalize(claims.Role),
	}, nil
}

func (s *Service) Can(role rbac.Role, action rbac.Action) bool {
	return rbac.Can(role, action)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// ── Canonical reads ──

func (s *Service) ListModules(ctx context.Context) (map[string]any, error) {
	return s.cachedPayload(ctx, viewcache.ListKey(entity.KindModule), func() (map[string]any, error) {
		items, err := s.rec.ListModules(ctx)
		if err != nil {
			return nil, err
		}
		s.syncCatalog(catalogFromModules(items))
		return map[string]any{"modules": items}, nil
	})
}

func (s *Service) GetModule(ctx context.Context, moduleID string) (map[string]any, error) {
	return s.cachedPayload(ctx, viewcache.EntityKey(entity.KindModule, moduleID), func() (map[string]any, error) {
		mod, err := s.rec.GetModule(ctx, moduleID)
		if err != nil {
			return nil, err
		}
		if mod == nil {
			return nil, errModuleNotFound(moduleID)
		}
		return map[string]any{"module": mod}, nil
	})
}

func (s *Service) ModuleCommitments(ctx context.Context, moduleID string) (map[string]any, error) {
	return s.cachedPayload(ctx, viewcache.ChildKey(entity.KindCommitment, moduleID, ""), func() (map[string]any, error) {
		view, err := s.rec.CommitmentsByModule(ctx, moduleID)
		if err != nil {
			return nil, err
		}
		payload := map[string]any{"moduleId": moduleID, "items": view.Items}
		if view.Aggregate != "" {
			payload["aggregate"] = view.Aggregate
		}
		return payload, nil
	})
}

func (s *Service) ListTasks(ctx context.Context) (map[string]any, error) {
	return s.cachedPayload(ctx, viewcache.ListKey(entity.KindTask), func() (map[string]any, error) {
		items, err := s.rec.ListTasks(ctx)
		if err != nil {
			return nil, err
		}
		s.syncCatalog(catalogFromTasks(items))
		return map[string]any{"tasks": items}, nil
	})
}

func (s *Service) GetTask(ctx context.Context, taskID string) (map[string]any, error) {
	return s.cachedPayload(ctx, viewcache.EntityKey(entity.KindTask, taskID), func() (map[string]any, error) {
		task, err := s.rec.GetTask(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if task == nil {
			return nil, domainError(404, "NOT_FOUND", "Task not found", map[string]any{"taskId": taskID})
		}
		return map[string]any{"task": task}, nil
	})
}

func (s *Service) ListProjects(ctx context.Context) (map[string]any, error) {
	return s.cachedPayload(ctx, viewcache.ListKey(entity.KindProject), func() (map[string]any, error) {
		items, err := s.rec.ListProjects(ctx)
		if err != nil {
			return nil, err
		}
		s.syncCatalog(catalogFromProjects(items))
		return map[string]any{"projects": items}, nil
	})
}

func (s *Service) ListCourses(ctx context.Context) (map[string]any, error) {
	return s.cachedPayload(ctx, viewcache.ListKey(entity.KindCourse), func() (map[string]any, error) {
		items, err := s.rec.ListCourses(ctx)
		if err != nil {
			return nil, err
		}
		s.syncCatalog(catalogFromCourses(items))
		return map[string]any{"courses": items}, nil
	})
}

// Stats serves the aggregate-counts view off the local catalog snapshot.
func (s *Service) Stats(ctx context.Context) (map[string]any, error) {
	return s.cachedPayload(ctx, viewcache.CountsKey(), func() (map[string]any, error) {
		counts, err := s.store.CatalogCounts(ctx)
		if err != nil {
			return nil, err
		}
		pending, err := s.store.PendingApprovalCount(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]any{"counts": counts, "pendingApprovals": pending}, nil
	})
}

// Search queries the catalog. Learners never see draft-status entries.
func (s *Service) Search(q, kind string, limit, offset int, role rbac.Role) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q}
	}
	return s.search.Search(search.Query{
		Text:       q,
		FilterKind: search.ResultType(kind),
		Limit:      limit,
		Offset:     offset,
		HideDrafts: role == rbac.RoleLearner,
	})
}

// ── Draft lifecycle ──

// OpenDraft seeds an editing session from the latest reconciled module.
// One live session per module/owner pair; re-opening discards local edits
// and re-seeds from fresh server state.
func (s *Service) OpenDraft(ctx context.Context, moduleID string, sess Session) (map[string]any, error) {
	mod, err := s.rec.GetModule(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	if mod == nil {
		return nil, errModuleNotFound(moduleID)
	}

	locked := mod.Status != status.ModuleDrafting
	now := time.Now()
	rec := session.Record{
		ID:        util.NewID("drs"),
		ModuleID:  moduleID,
		Owner:     sess.UserName,
		Draft:     draft.FromModule(*mod, locked),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.sessions.SaveDraftSession(ctx, rec); err != nil {
		return nil, err
	}
	if err := s.git.EnsureModuleRepo(moduleID, gitrepo.ContentFromModule(*mod), sess.UserName); err != nil {
		log.Printf("ensure repo for %s: %v", moduleID, err)
	}
	return draftPayload(rec), nil
}

func (s *Service) GetDraft(ctx context.Context, moduleID string, sess Session) (map[string]any, error) {
	rec, err := s.sessions.LookupDraftSession(ctx, moduleID, sess.UserName)
	if err != nil {
		return nil, err
	}
	return draftPayload(rec), nil
}

// UpdateDraft applies one batch of edit operations to the open session and
// restarts its idle expiry. Structural SLT edits on a locked draft are
// refused; everything else stays editable.
func (s *Service) UpdateDraft(ctx context.Context, moduleID string, sess Session, input DraftUpdateInput) (map[string]any, error) {
	rec, err := s.sessions.LookupDraftSession(ctx, moduleID, sess.UserName)
	if err != nil {
		return nil, err
	}
	d := &rec.Draft

	if d.Locked && (len(input.AddSLTs) > 0 || len(input.UpdateSLTs) > 0 || len(input.RemoveSLTs) > 0) {
		return nil, errLockViolation("Module has left drafting; its learning targets are frozen", nil)
	}
	if input.RequestApproval != nil && *input.RequestApproval && d.Locked {
		return nil, errValidation("module has already left drafting")
	}

	if input.Title != nil {
		d.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		d.Description = *input.Description
	}
	if input.ImageURL != nil {
		d.ImageURL = strings.TrimSpace(*input.ImageURL)
	}
	if input.VideoURL != nil {
		d.VideoURL = strings.TrimSpace(*input.VideoURL)
	}

	for _, text := range input.AddSLTs {
		if strings.TrimSpace(text) == "" {
			return nil, errValidation("learning target text is required")
		}
		d.AddSLT(text)
	}
	for _, edit := range input.UpdateSLTs {
		if strings.TrimSpace(edit.Text) == "" {
			return nil, errValidation("learning target text is required")
		}
		if err := d.UpdateSLT(edit.Position, edit.Text); err != nil {
			return nil, errValidation(err.Error())
		}
	}
	// Descending order keeps later positions valid while earlier new
	// records compact out of the slice.
	removals := append([]int(nil), input.RemoveSLTs...)
	sort.Sort(sort.Reverse(sort.IntSlice(removals)))
	for _, pos := range removals {
		if err := d.RemoveSLT(pos); err != nil {
			return nil, errValidation(err.Error())
		}
	}

	if input.DeleteAssignment {
		d.RemoveAssignment()
	} else if input.Assignment != nil {
		if strings.TrimSpace(input.Assignment.Body) == "" {
			return nil, errValidation("assignment body is required")
		}
		d.SetAssignment(*input.Assignment)
	}

	if input.DeleteIntro {
		d.RemoveIntro()
	} else if input.Intro != nil {
		if strings.TrimSpace(input.Intro.Body) == "" {
			return nil, errValidation("intro body is required")
		}
		d.SetIntro(*input.Intro)
	}

	for _, lesson := range input.Lessons {
		if lesson.SLTIndex < 0 {
			return nil, errValidation("lesson sltIndex must not be negative")
		}
		d.PutLesson(lesson.SLTIndex, draft.LessonPayload{
			Title:    lesson.Title,
			Body:     lesson.Body,
			VideoURL: lesson.VideoURL,
		})
	}
	for _, idx := range input.RemoveLessons {
		d.RemoveLesson(idx)
	}

	if input.RequestApproval != nil {
		d.RequestApproval = *input.RequestApproval
	}

	rec.UpdatedAt = time.Now()
	if err := s.sessions.SaveDraftSession(ctx, rec); err != nil {
		return nil, err
	}
	return draftPayload(rec), nil
}

// SaveDraft runs the diff engine against the session's draft and submits
// the partial update upstream. Only one save per session runs at a time;
// the module's canonical status is re-checked at save time rather than
// trusting the session's open-time snapshot. On success the session is
// discarded, the stale views invalidated, and the save recorded in the
// audit log and the module's revision history.
func (s *Service) SaveDraft(ctx context.Context, moduleID string, sess Session) (map[string]any, error) {
	rec, err := s.sessions.LookupDraftSession(ctx, moduleID, sess.UserName)
	if err != nil {
		return nil, err
	}
	if !s.beginSave(rec.ID) {
		return nil, errSaveInProgress(rec.ID)
	}
	defer s.endSave(rec.ID)

	fresh, err := s.rec.GetModule(ctx, moduleID)
	if err != nil {
		return nil, err
	}
	if fresh == nil {
		return nil, errModuleNotFound(moduleID)
	}
	if !rec.Draft.Locked && fresh.Status != status.ModuleDrafting {
		return nil, errLockViolation(
			"Module left drafting after this session opened; re-open the draft",
			map[string]any{"moduleStatus": fresh.Status},
		)
	}

	outcome, err := s.rec.SaveModuleDraft(ctx, rec.Draft)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Invalidate(ctx, outcome.Invalidated...); err != nil {
		log.Printf("invalidate views for %s: %v", moduleID, err)
	}

	saveID := util.NewID("save")
	req := draft.BuildRequest(rec.Draft)
	if err := s.store.InsertSaveLog(ctx, store.SaveLogEntry{
		SaveID:    saveID,
		ModuleID:  moduleID,
		SessionID: rec.ID,
		Owner:     rec.Owner,
		Status:    outcome.Module.Status,
		SLTHash:   req.SLTHash,
		Changes:   outcome.Changes,
	}); err != nil {
		// The upstream save already committed; a lost audit row must not
		// turn it into a reported failure.
		log.Printf("save log for %s: %v", moduleID, err)
	}

	payload := map[string]any{
		"success":     true,
		"saveId":      saveID,
		"module":      outcome.Module,
		"changes":     outcome.Changes,
		"invalidated": keyStrings(outcome.Invalidated),
	}

	if err := s.git.EnsureModuleRepo(moduleID, gitrepo.ContentFromModule(outcome.Module), rec.Owner); err != nil {
		log.Printf("ensure repo for %s: %v", moduleID, err)
	}
	commit, err := s.git.CommitSave(moduleID, gitrepo.ContentFromModule(outcome.Module), rec.Owner, "Save draft "+saveID)
	if err != nil {
		log.Printf("record revision for %s: %v", moduleID, err)
	} else {
		payload["revision"] = commit
		if rec.Draft.RequestApproval && outcome.Module.Status == status.ModuleApproved {
			if err := s.git.TagRevision(moduleID, commit.Hash, "approved-"+commit.Hash); err != nil {
				log.Printf("tag approved revision for %s: %v", moduleID, err)
			}
		}
	}

	if rec.Draft.RequestApproval && outcome.Module.Status == status.ModuleApproved {
		s.notifyApproval(outcome.Module, rec.Owner)
	}

	s.syncCatalog(catalogFromModules([]entity.Module{outcome.Module}))

	if err := s.sessions.RevokeDraftSession(ctx, moduleID, rec.Owner); err != nil {
		log.Printf("discard draft session for %s: %v", moduleID, err)
	}
	return payload, nil
}

// CancelDraft abandons the session with no network effect.
func (s *Service) CancelDraft(ctx context.Context, moduleID string, sess Session) (map[string]any, error) {
	if _, err := s.sessions.LookupDraftSession(ctx, moduleID, sess.UserName); err != nil {
		return nil, err
	}
	if err := s.sessions.RevokeDraftSession(ctx, moduleID, sess.UserName); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}

// ── Revision history ──

func (s *Service) ModuleRevisions(ctx context.Context, moduleID string, limit int) (map[string]any, error) {
	history, err := s.git.History(moduleID, limit)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.ListSaveLog(ctx, moduleID, limit)
	if err != nil {
		return nil, err
	}
	saves := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		item := map[string]any{
			"saveId":    entry.SaveID,
			"sessionId": entry.SessionID,
			"owner":     entry.Owner,
			"status":    entry.Status,
			"changes":   entry.Changes,
			"createdAt": entry.CreatedAt,
		}
		if entry.SLTHash != "" {
			item["sltHash"] = entry.SLTHash
		}
		saves = append(saves, item)
	}
	return map[string]any{
		"moduleId":  moduleID,
		"revisions": history,
		"saveLog":   saves,
	}, nil
}

func (s *Service) ModuleRevision(ctx context.Context, moduleID, hash string) (map[string]any, error) {
	commit, err := s.git.GetCommitByHash(moduleID, hash)
	if err != nil {
		return nil, err
	}
	content, err := s.git.GetContentByHash(moduleID, hash)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"moduleId": moduleID,
		"revision": commit,
		"content":  content,
	}, nil
}

func (s *Service) CompareRevisions(ctx context.Context, moduleID, fromHash, toHash string) (map[string]any, error) {
	from, err := s.git.GetContentByHash(moduleID, fromHash)
	if err != nil {
		return nil, err
	}
	to, err := s.git.GetContentByHash(moduleID, toHash)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"moduleId": moduleID,
		"from":     fromHash,
		"to":       toHash,
		"changes":  gitrepo.DiffFields(from, to),
	}, nil
}

// ── Media & export ──

func (s *Service) UploadMedia(ctx context.Context, filename, contentType string, r io.Reader, size int64) (map[string]any, error) {
	if s.media == nil {
		return nil, domainError(503, "MEDIA_UNAVAILABLE", "Media storage is not configured", nil)
	}
	if !media.AllowedContentType(contentType) {
		return nil, errValidation("only image and video uploads are accepted")
	}
	url, err := s.media.Upload(ctx, filename, contentType, r, size)
	if err != nil {
		return nil, err
	}
	return map[string]any{"url": url}, nil
}

func (s *Service) ExportModule(ctx context.Context, moduleID string, format export.Format) (*export.Result, error) {
	if s.export == nil {
		return nil, domainError(503, "EXPORT_UNAVAILABLE", "Export is not configured", nil)
	}
	return s.export.Export(ctx, export.Request{ModuleID: moduleID, Format: format})
}

// ── Internals ──

func (s *Service) beginSave(sessionID string) bool {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if _, busy := s.saving[sessionID]; busy {
		return false
	}
	s.saving[sessionID] = struct{}{}
	return true
}

func (s *Service) endSave(sessionID string) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	delete(s.saving, sessionID)
}

// cachedPayload serves a view from the cache when present, otherwise
// computes, stores, and returns it. Cache failures are treated as misses.
func (s *Service) cachedPayload(ctx context.Context, key viewcache.Key, compute func() (map[string]any, error)) (map[string]any, error) {
	if raw, ok := s.cache.Get(ctx, key); ok {
		var payload map[string]any
		if err := json.Unmarshal(raw, &payload); err == nil {
			return payload, nil
		}
	}
	payload, err := compute()
	if err != nil {
		return nil, err
	}
	if encoded, err := json.Marshal(payload); err == nil {
		if err := s.cache.Set(ctx, key, encoded); err != nil {
			log.Printf("cache view %s: %v", key, err)
		}
	}
	return payload, nil
}

// syncCatalog projects reconciled entities into the local catalog and the
// search index off the request path. Failures are logged, never surfaced.
func (s *Service) syncCatalog(entries []store.CatalogEntry) {
	if len(entries) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		for _, entry := range entries {
			if err := s.store.UpsertCatalogEntry(ctx, entry); err != nil {
				log.Printf("catalog upsert %s %s: %v", entry.Kind, entry.ID, err)
				continue
			}
			if s.search != nil {
				s.search.IndexEntry(search.CatalogRecord{
					ID:          entry.ID,
					Kind:        entry.Kind,
					Title:       entry.Title,
					Description: entry.Description,
					Status:      entry.Status,
					Source:      entry.Source,
				})
			}
		}
	}()
}

func (s *Service) notifyApproval(mod entity.Module, owner string) {
	if s.email == nil || s.cfg.ApprovalNoticeEmail == "" {
		return
	}
	to := s.cfg.ApprovalNoticeEmail
	title := mod.Title
	if title == "" {
		title = mod.ID
	}
	url := strings.TrimRight(s.cfg.PublicBaseURL, "/") + "/modules/" + mod.ID
	go func() {
		if err := s.email.SendApprovalNotice(to, owner, title, url); err != nil {
			log.Printf("approval notice for %s: %v", mod.ID, err)
		}
	}()
}

func draftPayload(rec session.Record) map[string]any {
	return map[string]any{
		"sessionId": rec.ID,
		"moduleId":  rec.ModuleID,
		"owner":     rec.Owner,
		"locked":    rec.Draft.Locked,
		"draft":     draftView(rec.Draft),
		"createdAt": rec.CreatedAt,
		"updatedAt": rec.UpdatedAt,
	}
}

// draftView renders the session's buffered edits, including pending
// deletion markers, so clients can show what the next save will submit.
func draftView(d draft.Draft) map[string]any {
	slts := make([]map[string]any, 0, len(d.SLTs))
	for pos, rec := range d.SLTs {
		item := map[string]any{
			"position": pos,
			"state":    string(rec.State()),
		}
		if rec.State() != draft.StateDeleted {
			item["text"] = rec.Text()
		}
		if idx, ok := rec.Index(); ok {
			item["sltIndex"] = idx
		}
		slts = append(slts, item)
	}

	view := map[string]any{
		"moduleId":        d.ModuleID,
		"locked":          d.Locked,
		"title":           d.Title,
		"description":     d.Description,
		"imageUrl":        d.ImageURL,
		"videoUrl":        d.VideoURL,
		"slts":            slts,
		"requestApproval": d.RequestApproval,
	}

	if state := d.Assignment.State(); state != draft.StateAbsent {
		item := map[string]any{"state": string(state)}
		if state != draft.StateDeleted {
			p := d.Assignment.Payload()
			item["title"] = p.Title
			item["body"] = p.Body
			item["url"] = p.URL
		}
		view["assignment"] = item
	}
	if state := d.Intro.State(); state != draft.StateAbsent {
		item := map[string]any{"state": string(state)}
		if state != draft.StateDeleted {
			p := d.Intro.Payload()
			item["body"] = p.Body
			item["videoUrl"] = p.VideoURL
		}
		view["intro"] = item
	}

	keys := make([]int, 0, len(d.Lessons))
	for k := range d.Lessons {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	lessons := make([]map[string]any, 0, len(keys))
	for _, k := range keys {
		p := d.Lessons[k]
		lessons = append(lessons, map[string]any{
			"sltIndex": k,
			"title":    p.Title,
			"body":     p.Body,
			"videoUrl": p.VideoURL,
		})
	}
	view["lessons"] = lessons
	return view
}

func keyStrings(keys []viewcache.Key) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.String())
	}
	return out
}

func catalogFromModules(items []entity.Module) []store.CatalogEntry {
	entries := make([]store.CatalogEntry, 0, len(items))
	for _, m := range items {
		title := m.Title
		if title == "" {
			title = m.ID
		}
		entries = append(entries, store.CatalogEntry{
			ID:          m.ID,
			Kind:        string(entity.KindModule),
			Source:      string(m.Source),
			Status:      m.Status,
			Title:       title,
			Description: m.Description,
		})
	}
	return entries
}

func catalogFromTasks(items []entity.Task) []store.CatalogEntry {
	entries := make([]store.CatalogEntry, 0, len(items))
	for _, t := range items {
		title := t.Title
		if title == "" {
			title = t.ID
		}
		entries = append(entries, store.CatalogEntry{
			ID:          t.ID,
			Kind:        string(entity.KindTask),
			Source:      string(t.Source),
			Status:      t.Status,
			Title:       title,
			Description: t.Description,
		})
	}
	return entries
}

func catalogFromProjects(items []entity.Project) []store.CatalogEntry {
	entries := make([]store.CatalogEntry, 0, len(items))
	for _, p := range items {
		title := p.Title
		if title == "" {
			title = p.ID
		}
		entries = append(entries, store.CatalogEntry{
			ID:          p.ID,
			Kind:        string(entity.KindProject),
			Source:      string(p.Source),
			Status:      p.Status,
			Title:       title,
			Description: p.Description,
		})
	}
	return entries
}

func catalogFromCourses(items []entity.Course) []store.CatalogEntry {
	entries := make([]store.CatalogEntry, 0, len(items))
	for _, c := range items {
		entries = append(entries, store.CatalogEntry{
			ID:          c.ID,
			Kind:        string(entity.KindCourse),
			Source:      string(c.Source),
			Status:      "",
			Title:       c.Title,
			Description: c.Description,
		})
	}
	return entries
}
