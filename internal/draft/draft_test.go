package draft

import (
	"encoding/json"
	"testing"

	"trellis/api/internal/entity"
)

func seedModule() entity.Module {
	return entity.Module{
		ID:          "mod_1",
		Source:      entity.SourceMerged,
		Status:      "DRAFTING",
		Title:       "Intro to X",
		Description: "first steps",
		SLTs: []entity.SLT{
			{Index: 0, Text: "identify the parts"},
			{Index: 1, Text: "explain the whole"},
		},
		Assignment: &entity.Assignment{Body: "build a model"},
		Lessons: []entity.Lesson{
			{SLTIndex: 0, Title: "Parts", Body: "lesson body"},
		},
	}
}

func TestFromModuleSeedsUnchanged(t *testing.T) {
	d := FromModule(seedModule(), false)
	if d.ModuleID != "mod_1" || d.Locked {
		t.Fatalf("draft header: %+v", d)
	}
	if len(d.SLTs) != 2 {
		t.Fatalf("len(slts) = %d", len(d.SLTs))
	}
	for i, rec := range d.SLTs {
		if rec.State() != StateUnchanged {
			t.Fatalf("slt %d state = %s", i, rec.State())
		}
		idx, ok := rec.Index()
		if !ok || idx != i {
			t.Fatalf("slt %d index = %d, ok=%v", i, idx, ok)
		}
	}
	if d.Assignment.State() != StateUnchanged {
		t.Fatalf("assignment state = %s", d.Assignment.State())
	}
	if d.Intro.State() != StateAbsent {
		t.Fatalf("intro state = %s", d.Intro.State())
	}
	if len(d.Lessons) != 1 {
		t.Fatalf("lessons = %v", d.Lessons)
	}

	// A freshly-seeded draft submits no singleton changes.
	req := BuildRequest(d)
	if req.Assignment != nil || req.DeleteAssignment || req.Intro != nil || req.DeleteIntro {
		t.Fatalf("fresh draft submitted singleton changes: %+v", req)
	}
}

func TestNewRecordHasNoIndex(t *testing.T) {
	rec := NewSLT("apply the method")
	if _, ok := rec.Index(); ok {
		t.Fatal("new record reports a server index")
	}
	if rec.State() != StateNew {
		t.Fatalf("state = %s", rec.State())
	}
}

func TestRemoveSLTNewDisappears(t *testing.T) {
	d := FromModule(seedModule(), false)
	pos := d.AddSLT("apply the method")
	if err := d.RemoveSLT(pos); err != nil {
		t.Fatalf("remove new slt: %v", err)
	}
	if len(d.SLTs) != 2 {
		t.Fatalf("len(slts) = %d; new record should vanish", len(d.SLTs))
	}
	req := BuildRequest(d)
	if len(*req.SLTs) != 2 {
		t.Fatalf("request slts = %d", len(*req.SLTs))
	}
}

func TestRemoveSLTExistingBecomesDeleted(t *testing.T) {
	d := FromModule(seedModule(), false)
	if err := d.RemoveSLT(0); err != nil {
		t.Fatalf("remove existing slt: %v", err)
	}
	// Positions stay stable until save.
	if len(d.SLTs) != 2 {
		t.Fatalf("len(slts) = %d; deletion marker expected in place", len(d.SLTs))
	}
	if d.SLTs[0].State() != StateDeleted {
		t.Fatalf("slt 0 state = %s", d.SLTs[0].State())
	}
	if err := d.RemoveSLT(0); err == nil {
		t.Fatal("double delete allowed")
	}
	req := BuildRequest(d)
	if len(*req.SLTs) != 1 {
		t.Fatalf("request slts = %d, want 1 survivor", len(*req.SLTs))
	}
}

func TestUpdateSLTKeepsServerIndex(t *testing.T) {
	d := FromModule(seedModule(), false)
	if err := d.UpdateSLT(1, "explain the whole, precisely"); err != nil {
		t.Fatalf("update: %v", err)
	}
	idx, ok := d.SLTs[1].Index()
	if !ok || idx != 1 {
		t.Fatalf("index after update = %d, ok=%v", idx, ok)
	}
	if d.SLTs[1].Text() != "explain the whole, precisely" {
		t.Fatalf("text = %q", d.SLTs[1].Text())
	}
	if err := d.UpdateSLT(5, "x"); err == nil {
		t.Fatal("out-of-range update allowed")
	}
}

func TestSingletonTransitions(t *testing.T) {
	var d Draft

	// Absent, then added: new.
	d.SetAssignment(AssignmentPayload{Body: "v1"})
	if d.Assignment.State() != StateNew {
		t.Fatalf("state = %s, want new", d.Assignment.State())
	}
	// Editing a new one keeps it new; the server has never seen it.
	d.SetAssignment(AssignmentPayload{Body: "v2"})
	if d.Assignment.State() != StateNew {
		t.Fatalf("state = %s, want new after re-edit", d.Assignment.State())
	}
	// Removing a new one reverts to absent, no delete directive.
	d.RemoveAssignment()
	if d.Assignment.State() != StateAbsent {
		t.Fatalf("state = %s, want absent", d.Assignment.State())
	}

	// Server-known, then edited: modified. Then removed: deleted.
	d.Assignment = UnchangedAssignment(AssignmentPayload{Body: "server copy"})
	d.SetAssignment(AssignmentPayload{Body: "edited"})
	if d.Assignment.State() != StateModified {
		t.Fatalf("state = %s, want modified", d.Assignment.State())
	}
	d.RemoveAssignment()
	if d.Assignment.State() != StateDeleted {
		t.Fatalf("state = %s, want deleted", d.Assignment.State())
	}
}

func TestDraftJSONRoundTrip(t *testing.T) {
	d := FromModule(seedModule(), false)
	d.AddSLT("apply the method")
	_ = d.RemoveSLT(0)
	d.SetIntro(IntroPayload{Body: "welcome"})
	d.RemoveAssignment()
	d.PutLesson(1, LessonPayload{Title: "Whole", Body: "lesson"})
	d.RequestApproval = true

	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Draft
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	// The rebuilt draft must produce the identical request.
	want, _ := json.Marshal(BuildRequest(d))
	got, _ := json.Marshal(BuildRequest(back))
	if string(want) != string(got) {
		t.Fatalf("request drifted through storage:\nwant %s\ngot  %s", want, got)
	}
}

func TestSLTRecordRejectsUnknownState(t *testing.T) {
	var rec SLTRecord
	if err := json.Unmarshal([]byte(`{"state":"zombie","index":0,"text":""}`), &rec); err == nil {
		t.Fatal("unknown state accepted")
	}
}
