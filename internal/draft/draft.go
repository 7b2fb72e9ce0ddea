// Package draft holds the locally-buffered editing aggregate for a module
// and the diff engine that turns it into a minimal partial-update request.
//
// Child records are closed sums built only through constructors, so
// impossible flag combinations (a record that is both new and deleted)
// cannot be represented. The aggregate is plain data otherwise; it marshals
// to JSON so editing sessions can park it in Redis or Postgres between
// requests.
package draft

import (
	"encoding/json"
	"fmt"
	"sort"

	"trellis/api/internal/entity"
)

// RecordState is the lifecycle position of one child record inside a draft.
type RecordState string

const (
	StateAbsent    RecordState = "absent"
	StateUnchanged RecordState = "unchanged"
	StateNew       RecordState = "new"
	StateModified  RecordState = "modified"
	StateDeleted   RecordState = "deleted"
)

// SLTRecord is one student learning target inside a draft. A new record has
// no server index yet; existing and deleted records carry the index the
// server assigned.
type SLTRecord struct {
	state RecordState
	index int
	text  string
}

// NewSLT is a target created in this editing session.
func NewSLT(text string) SLTRecord {
	return SLTRecord{state: StateNew, text: text}
}

// ExistingSLT is a server-known target, possibly with edited text.
func ExistingSLT(index int, text string) SLTRecord {
	return SLTRecord{state: StateUnchanged, index: index, text: text}
}

// DeletedSLT marks a server-known target for removal.
func DeletedSLT(index int) SLTRecord {
	return SLTRecord{state: StateDeleted, index: index}
}

func (r SLTRecord) State() RecordState { return r.state }
func (r SLTRecord) Text() string       { return r.text }

// Index reports the server-assigned index. ok is false for new records,
// which have no identity until the server assigns one.
func (r SLTRecord) Index() (int, bool) {
	if r.state == StateNew {
		return 0, false
	}
	return r.index, true
}

// AssignmentPayload is the singleton assignment content.
type AssignmentPayload struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
}

// IntroPayload is the singleton introduction content.
type IntroPayload struct {
	Body     string `json:"body"`
	VideoURL string `json:"videoUrl,omitempty"`
}

// LessonPayload is one lesson's content; its key is the SLT position.
type LessonPayload struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	VideoURL string `json:"videoUrl,omitempty"`
}

// AssignmentRecord tracks the singleton assignment. The zero value means the
// module has no assignment and the session has not added one.
type AssignmentRecord struct {
	state   RecordState
	payload AssignmentPayload
}

func UnchangedAssignment(p AssignmentPayload) AssignmentRecord {
	return AssignmentRecord{state: StateUnchanged, payload: p}
}

func NewAssignment(p AssignmentPayload) AssignmentRecord {
	return AssignmentRecord{state: StateNew, payload: p}
}

func ModifiedAssignment(p AssignmentPayload) AssignmentRecord {
	return AssignmentRecord{state: StateModified, payload: p}
}

func DeletedAssignment() AssignmentRecord {
	return AssignmentRecord{state: StateDeleted}
}

func (r AssignmentRecord) State() RecordState {
	if r.state == "" {
		return StateAbsent
	}
	return r.state
}

func (r AssignmentRecord) Payload() AssignmentPayload { return r.payload }

// IntroRecord tracks the singleton introduction, same lifecycle as the
// assignment.
type IntroRecord struct {
	state   RecordState
	payload IntroPayload
}

func UnchangedIntro(p IntroPayload) IntroRecord {
	return IntroRecord{state: StateUnchanged, payload: p}
}

func NewIntro(p IntroPayload) IntroRecord {
	return IntroRecord{state: StateNew, payload: p}
}

func ModifiedIntro(p IntroPayload) IntroRecord {
	return IntroRecord{state: StateModified, payload: p}
}

func DeletedIntro() IntroRecord {
	return IntroRecord{state: StateDeleted}
}

func (r IntroRecord) State() RecordState {
	if r.state == "" {
		return StateAbsent
	}
	return r.state
}

func (r IntroRecord) Payload() IntroPayload { return r.payload }

// Draft is one editing session's buffered view of a module. Scalars are
// edited in place; children go through the record constructors. Locked is
// captured when the session opens: once the module has left drafting status
// its SLT set is structurally frozen and the diff engine must not submit it.
type Draft struct {
	ModuleID        string
	Locked          bool
	Title           string
	Description     string
	ImageURL        string
	VideoURL        string
	SLTs            []SLTRecord
	Assignment      AssignmentRecord
	Intro           IntroRecord
	Lessons         map[int]LessonPayload
	RequestApproval bool
}

// FromModule seeds a draft from the last reconciled module. Every child
// starts unchanged; locked is decided by the caller from the module's
// canonical status.
func FromModule(m entity.Module, locked bool) Draft {
	d := Draft{
		ModuleID:    m.ID,
		Locked:      locked,
		Title:       m.Title,
		Description: m.Description,
		ImageURL:    m.ImageURL,
		VideoURL:    m.VideoURL,
		Lessons:     make(map[int]LessonPayload),
	}
	for _, s := range m.SLTs {
		d.SLTs = append(d.SLTs, ExistingSLT(s.Index, s.Text))
	}
	if m.Assignment != nil {
		d.Assignment = UnchangedAssignment(AssignmentPayload{
			Title: m.Assignment.Title,
			Body:  m.Assignment.Body,
			URL:   m.Assignment.URL,
		})
	}
	if m.Intro != nil {
		d.Intro = UnchangedIntro(IntroPayload{
			Body:     m.Intro.Body,
			VideoURL: m.Intro.VideoURL,
		})
	}
	for _, l := range m.Lessons {
		d.Lessons[l.SLTIndex] = LessonPayload{
			Title:    l.Title,
			Body:     l.Body,
			VideoURL: l.VideoURL,
		}
	}
	return d
}

// AddSLT appends a target created in this session and returns its position
// in the draft's ordered collection.
func (d *Draft) AddSLT(text string) int {
	d.SLTs = append(d.SLTs, NewSLT(text))
	return len(d.SLTs) - 1
}

// UpdateSLT replaces the text of the record at the given draft position.
// Existing records keep their server index; the record stays in its current
// state because the full surviving set is submitted either way.
func (d *Draft) UpdateSLT(pos int, text string) error {
	if pos < 0 || pos >= len(d.SLTs) {
		return fmt.Errorf("slt position %d out of range", pos)
	}
	rec := d.SLTs[pos]
	if rec.state == StateDeleted {
		return fmt.Errorf("slt position %d is deleted", pos)
	}
	rec.text = text
	d.SLTs[pos] = rec
	return nil
}

// RemoveSLT deletes the record at the given draft position. A record born in
// this session simply disappears; a server-known one is kept as a deletion
// marker so later positions stay stable until save.
func (d *Draft) RemoveSLT(pos int) error {
	if pos < 0 || pos >= len(d.SLTs) {
		return fmt.Errorf("slt position %d out of range", pos)
	}
	rec := d.SLTs[pos]
	switch rec.state {
	case StateNew:
		d.SLTs = append(d.SLTs[:pos], d.SLTs[pos+1:]...)
	case StateDeleted:
		return fmt.Errorf("slt position %d already deleted", pos)
	default:
		d.SLTs[pos] = DeletedSLT(rec.index)
	}
	return nil
}

// SetAssignment records a created or edited assignment, picking the new or
// modified state from whether the module had one before this call.
func (d *Draft) SetAssignment(p AssignmentPayload) {
	switch d.Assignment.State() {
	case StateAbsent, StateNew:
		d.Assignment = NewAssignment(p)
	default:
		d.Assignment = ModifiedAssignment(p)
	}
}

// RemoveAssignment marks the assignment for deletion. Removing one created
// in this session reverts to absent; there is nothing server-side to delete.
func (d *Draft) RemoveAssignment() {
	if d.Assignment.State() == StateNew || d.Assignment.State() == StateAbsent {
		d.Assignment = AssignmentRecord{}
		return
	}
	d.Assignment = DeletedAssignment()
}

// SetIntro mirrors SetAssignment for the introduction.
func (d *Draft) SetIntro(p IntroPayload) {
	switch d.Intro.State() {
	case StateAbsent, StateNew:
		d.Intro = NewIntro(p)
	default:
		d.Intro = ModifiedIntro(p)
	}
}

// RemoveIntro mirrors RemoveAssignment for the introduction.
func (d *Draft) RemoveIntro() {
	if d.Intro.State() == StateNew || d.Intro.State() == StateAbsent {
		d.Intro = IntroRecord{}
		return
	}
	d.Intro = DeletedIntro()
}

// PutLesson sets the lesson for an SLT position.
func (d *Draft) PutLesson(sltIndex int, p LessonPayload) {
	if d.Lessons == nil {
		d.Lessons = make(map[int]LessonPayload)
	}
	d.Lessons[sltIndex] = p
}

// RemoveLesson drops the lesson for an SLT position from the collection; the
// submitted request then omits its key and the server deletes it.
func (d *Draft) RemoveLesson(sltIndex int) {
	delete(d.Lessons, sltIndex)
}

// lessonKeys returns the draft's lesson keys in ascending order.
func (d *Draft) lessonKeys() []int {
	keys := make([]int, 0, len(d.Lessons))
	for k := range d.Lessons {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// JSON representations for session storage. The record sums serialize with
// an explicit state discriminator.

type sltRecordJSON struct {
	State RecordState `json:"state"`
	Index int         `json:"index"`
	Text  string      `json:"text"`
}

func (r SLTRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(sltRecordJSON{State: r.state, Index: r.index, Text: r.text})
}

func (r *SLTRecord) UnmarshalJSON(data []byte) error {
	var raw sltRecordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.State {
	case StateNew:
		*r = NewSLT(raw.Text)
	case StateUnchanged, StateModified:
		*r = ExistingSLT(raw.Index, raw.Text)
	case StateDeleted:
		*r = DeletedSLT(raw.Index)
	default:
		return fmt.Errorf("unknown slt record state %q", raw.State)
	}
	return nil
}

type assignmentRecordJSON struct {
	State   RecordState       `json:"state"`
	Payload AssignmentPayload `json:"payload"`
}

func (r AssignmentRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(assignmentRecordJSON{State: r.State(), Payload: r.payload})
}

func (r *AssignmentRecord) UnmarshalJSON(data []byte) error {
	var raw assignmentRecordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.State {
	case StateAbsent:
		*r = AssignmentRecord{}
	case StateUnchanged:
		*r = UnchangedAssignment(raw.Payload)
	case StateNew:
		*r = NewAssignment(raw.Payload)
	case StateModified:
		*r = ModifiedAssignment(raw.Payload)
	case StateDeleted:
		*r = DeletedAssignment()
	default:
		return fmt.Errorf("unknown assignment record state %q", raw.State)
	}
	return nil
}

type introRecordJSON struct {
	State   RecordState  `json:"state"`
	Payload IntroPayload `json:"payload"`
}

func (r IntroRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(introRecordJSON{State: r.State(), Payload: r.payload})
}

func (r *IntroRecord) UnmarshalJSON(data []byte) error {
	var raw introRecordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw.State {
	case StateAbsent:
		*r = IntroRecord{}
	case StateUnchanged:
		*r = UnchangedIntro(raw.Payload)
	case StateNew:
		*r = NewIntro(raw.Payload)
	case StateModified:
		*r = ModifiedIntro(raw.Payload)
	case StateDeleted:
		*r = DeletedIntro()
	default:
		return fmt.Errorf("unknown intro record state %q", raw.State)
	}
	return nil
}
