package contentdb

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"trellis/api/internal/draft"
	"trellis/api/internal/upstream"
)

// stubContentAPI is a reference implementation of the content API's module
// update contract: scalars overwrite, collections follow delete-by-absence,
// singletons honor the tri-state, and learning-target writes against a
// module that left drafting are refused with LOCK_VIOLATION.
type stubContentAPI struct {
	module ModuleRow
}

func (s *stubContentAPI) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/modules/") {
			json.NewEncoder(w).Encode(map[string]any{"data": s.module})
			return
		}
		if r.Method != http.MethodPatch {
			http.NotFound(w, r)
			return
		}

		var req draft.UpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("stub decode: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if req.SLTs != nil && s.module.Status != "DRAFTING" {
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]string{
					"code":    "LOCK_VIOLATION",
					"message": "learning targets are frozen once the module leaves drafting",
				},
			})
			return
		}

		var changes ChangeCounts
		s.module.Title = req.Title
		s.module.Description = req.Description
		s.module.ImageURL = req.ImageURL
		s.module.VideoURL = req.VideoURL

		if req.SLTs != nil {
			changes.SLTs = s.applySLTs(*req.SLTs)
		}
		if req.Lessons != nil {
			changes.Lessons = s.applyLessons(*req.Lessons)
		}
		switch {
		case req.DeleteAssignment:
			if s.module.Assignment != nil {
				changes.Assignment.Deleted = 1
			}
			s.module.Assignment = nil
		case req.Assignment != nil:
			if s.module.Assignment == nil {
				changes.Assignment.Created = 1
			} else {
				changes.Assignment.Updated = 1
			}
			s.module.Assignment = &AssignmentRow{Title: req.Assignment.Title, Body: req.Assignment.Body, URL: req.Assignment.URL}
		}
		switch {
		case req.DeleteIntro:
			if s.module.Intro != nil {
				changes.Intro.Deleted = 1
			}
			s.module.Intro = nil
		case req.Intro != nil:
			if s.module.Intro == nil {
				changes.Intro.Created = 1
			} else {
				changes.Intro.Updated = 1
			}
			s.module.Intro = &IntroRow{Body: req.Intro.Body, VideoURL: req.Intro.VideoURL}
		}
		if req.Status != "" {
			s.module.Status = req.Status
		}

		json.NewEncoder(w).Encode(map[string]any{
			"data": UpdateResult{Module: s.module, Changes: changes},
		})
	}
}

func (s *stubContentAPI) applySLTs(submitted []draft.SLTWire) Counts {
	var counts Counts
	existing := make(map[int]string, len(s.module.SLTs))
	for _, row := range s.module.SLTs {
		existing[row.SLTIndex] = row.Text
	}
	next := 0
	for idx := range existing {
		if idx >= next {
			next = idx + 1
		}
	}

	kept := make(map[int]string)
	for _, wire := range submitted {
		if wire.SLTIndex != nil {
			if _, ok := existing[*wire.SLTIndex]; ok {
				counts.Updated++
			}
			kept[*wire.SLTIndex] = wire.Text
			continue
		}
		kept[next] = wire.Text
		counts.Created++
		next++
	}
	for idx := range existing {
		if _, ok := kept[idx]; !ok {
			counts.Deleted++
		}
	}

	indexes := make([]int, 0, len(kept))
	for idx := range kept {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	s.module.SLTs = s.module.SLTs[:0]
	for _, idx := range indexes {
		s.module.SLTs = append(s.module.SLTs, SLTRow{SLTIndex: idx, Text: kept[idx]})
	}
	return counts
}

func (s *stubContentAPI) applyLessons(submitted []draft.LessonWire) Counts {
	var counts Counts
	existing := make(map[int]LessonRow, len(s.module.Lessons))
	for _, row := range s.module.Lessons {
		existing[row.SLTIndex] = row
	}

	kept := make(map[int]LessonRow)
	for _, wire := range submitted {
		if _, ok := existing[wire.SLTIndex]; ok {
			counts.Updated++
		} else {
			counts.Created++
		}
		kept[wire.SLTIndex] = LessonRow{SLTIndex: wire.SLTIndex, Title: wire.Title, Body: wire.Body, VideoURL: wire.VideoURL}
	}
	for idx := range existing {
		if _, ok := kept[idx]; !ok {
			counts.Deleted++
		}
	}

	indexes := make([]int, 0, len(kept))
	for idx := range kept {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	s.module.Lessons = s.module.Lessons[:0]
	for _, idx := range indexes {
		s.module.Lessons = append(s.module.Lessons, kept[idx])
	}
	return counts
}

func seededStub() *stubContentAPI {
	return &stubContentAPI{module: ModuleRow{
		ID:     "mod_1",
		Status: "DRAFTING",
		Title:  "Intro to X",
		SLTs: []SLTRow{
			{SLTIndex: 0, Text: "identify the parts"},
			{SLTIndex: 1, Text: "explain the whole"},
		},
		Lessons: []LessonRow{
			{SLTIndex: 0, Title: "Lesson 0", Body: "b0"},
			{SLTIndex: 1, Title: "Lesson 1", Body: "b1"},
			{SLTIndex: 2, Title: "Lesson 2", Body: "b2"},
		},
	}}
}

func newTestService(t *testing.T, stub *stubContentAPI) *Service {
	t.Helper()
	srv := httptest.NewServer(stub.handler(t))
	t.Cleanup(srv.Close)
	return New(upstream.NewClient(srv.URL, time.Second))
}

func draftFromStub(stub *stubContentAPI, locked bool) draft.Draft {
	d := draft.Draft{
		ModuleID: stub.module.ID,
		Locked:   locked,
		Title:    stub.module.Title,
		Lessons:  make(map[int]draft.LessonPayload),
	}
	for _, s := range stub.module.SLTs {
		d.SLTs = append(d.SLTs, draft.ExistingSLT(s.SLTIndex, s.Text))
	}
	for _, l := range stub.module.Lessons {
		d.Lessons[l.SLTIndex] = draft.LessonPayload{Title: l.Title, Body: l.Body, VideoURL: l.VideoURL}
	}
	return d
}

func TestSubmitDeletesExactlyTheAbsentLesson(t *testing.T) {
	stub := seededStub()
	s := newTestService(t, stub)

	d := draftFromStub(stub, false)
	d.RemoveLesson(1)

	result, err := s.SubmitModuleUpdate(context.Background(), "mod_1", draft.BuildRequest(d))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Changes.Lessons.Deleted != 1 {
		t.Fatalf("lessons deleted = %d, want 1", result.Changes.Lessons.Deleted)
	}
	if len(stub.module.Lessons) != 2 {
		t.Fatalf("stub lessons = %+v", stub.module.Lessons)
	}
	if stub.module.Lessons[0].SLTIndex != 0 || stub.module.Lessons[1].SLTIndex != 2 {
		t.Fatalf("surviving lessons = %+v, want keys 0 and 2", stub.module.Lessons)
	}
	// The untouched lessons kept their content.
	if stub.module.Lessons[0].Body != "b0" || stub.module.Lessons[1].Body != "b2" {
		t.Fatalf("lesson content drifted: %+v", stub.module.Lessons)
	}
}

func TestSubmitCreatesUpdatesAndDeletesSLTs(t *testing.T) {
	stub := seededStub()
	s := newTestService(t, stub)

	d := draftFromStub(stub, false)
	if err := d.UpdateSLT(1, "explain the whole, precisely"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := d.RemoveSLT(0); err != nil {
		t.Fatalf("remove: %v", err)
	}
	d.AddSLT("apply the method")

	result, err := s.SubmitModuleUpdate(context.Background(), "mod_1", draft.BuildRequest(d))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if c := result.Changes.SLTs; c.Created != 1 || c.Updated != 1 || c.Deleted != 1 {
		t.Fatalf("slt changes = %+v", c)
	}
	if len(stub.module.SLTs) != 2 {
		t.Fatalf("stub slts = %+v", stub.module.SLTs)
	}
	if stub.module.SLTs[0].SLTIndex != 1 || stub.module.SLTs[0].Text != "explain the whole, precisely" {
		t.Fatalf("updated slt = %+v", stub.module.SLTs[0])
	}
	if stub.module.SLTs[1].Text != "apply the method" {
		t.Fatalf("created slt = %+v", stub.module.SLTs[1])
	}
}

func TestSubmitLockedModuleRefusesSLTs(t *testing.T) {
	stub := seededStub()
	stub.module.Status = "APPROVED"
	s := newTestService(t, stub)

	// A mis-built request that carries slts despite the server-side lock.
	d := draftFromStub(stub, false)
	_, err := s.SubmitModuleUpdate(context.Background(), "mod_1", draft.BuildRequest(d))
	if err == nil {
		t.Fatal("expected rejection")
	}
	var rej *RejectionError
	if !errors.As(err, &rej) {
		t.Fatalf("err = %v, want RejectionError", err)
	}
	if rej.Code != CodeLockViolation || rej.Status != http.StatusConflict {
		t.Fatalf("rejection = %+v", rej)
	}
	if !IsLockViolation(err) {
		t.Fatal("IsLockViolation = false")
	}
}

func TestSubmitLockAwareDraftPassesLockedModule(t *testing.T) {
	stub := seededStub()
	stub.module.Status = "APPROVED"
	s := newTestService(t, stub)

	// Built with the lock honored: no slts key, so only scalars and
	// lessons go out and the server accepts.
	d := draftFromStub(stub, true)
	d.Title = "Intro to X, revised"

	result, err := s.SubmitModuleUpdate(context.Background(), "mod_1", draft.BuildRequest(d))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Module.Title != "Intro to X, revised" {
		t.Fatalf("title = %q", result.Module.Title)
	}
	if len(stub.module.SLTs) != 2 {
		t.Fatalf("slts changed under lock: %+v", stub.module.SLTs)
	}
}

func TestSubmitSingletonRoundTrip(t *testing.T) {
	stub := seededStub()
	stub.module.Assignment = &AssignmentRow{Body: "old assignment"}
	s := newTestService(t, stub)

	d := draftFromStub(stub, false)
	d.Assignment = draft.UnchangedAssignment(draft.AssignmentPayload{Body: "old assignment"})
	d.RemoveAssignment()
	d.SetIntro(draft.IntroPayload{Body: "welcome"})

	result, err := s.SubmitModuleUpdate(context.Background(), "mod_1", draft.BuildRequest(d))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Changes.Assignment.Deleted != 1 || result.Changes.Intro.Created != 1 {
		t.Fatalf("changes = %+v", result.Changes)
	}
	if stub.module.Assignment != nil {
		t.Fatal("assignment not deleted")
	}
	if stub.module.Intro == nil || stub.module.Intro.Body != "welcome" {
		t.Fatalf("intro = %+v", stub.module.Intro)
	}
}

func TestSubmitPlainServerErrorStaysTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()
	s := New(upstream.NewClient(srv.URL, time.Second))

	_, err := s.SubmitModuleUpdate(context.Background(), "mod_1", draft.UpdateRequest{})
	if err == nil {
		t.Fatal("expected error")
	}
	var rej *RejectionError
	if errors.As(err, &rej) {
		t.Fatalf("plain 500 misread as domain rejection: %+v", rej)
	}
	var statusErr *upstream.StatusError
	if !errors.As(err, &statusErr) || statusErr.Status != http.StatusInternalServerError {
		t.Fatalf("err = %v", err)
	}
}

func TestModule404MeansAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()
	s := New(upstream.NewClient(srv.URL, time.Second))

	row, err := s.Module(context.Background(), "missing")
	if err != nil || row != nil {
		t.Fatalf("row = %+v, err = %v", row, err)
	}
	list, err := s.Modules(context.Background())
	if err != nil || len(list) != 0 {
		t.Fatalf("list = %+v, err = %v", list, err)
	}
}
