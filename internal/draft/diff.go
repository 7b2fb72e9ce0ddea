package draft

import (
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// StatusApproved is the one-way transition a draft may request. The content
// API accepts no other transition on this path.
const StatusApproved = "APPROVED"

// SLTWire is one submitted learning target. slt_index present means update
// the record in place; absent means create, the server assigns the index.
type SLTWire struct {
	SLTIndex *int   `json:"slt_index,omitempty"`
	Text     string `json:"text"`
}

// AssignmentWire is the full assignment payload.
type AssignmentWire struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
}

// IntroWire is the full introduction payload.
type IntroWire struct {
	Body     string `json:"body"`
	VideoURL string `json:"video_url,omitempty"`
}

// LessonWire is one submitted lesson, keyed by its SLT position.
type LessonWire struct {
	SLTIndex int    `json:"slt_index"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	VideoURL string `json:"video_url,omitempty"`
}

// UpdateRequest is the partial-update body submitted to the content API.
//
// Scalars are always present; the server no-ops on unchanged values. The
// collections follow delete-by-absence: any server-known item missing from a
// submitted collection is deleted, which is why a locked draft must omit the
// slts key entirely rather than send a partial set. A nil pointer keeps the
// key off the wire; a present empty collection means delete everything.
type UpdateRequest struct {
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	ImageURL         string          `json:"image_url"`
	VideoURL         string          `json:"video_url"`
	SLTs             *[]SLTWire      `json:"slts,omitempty"`
	Assignment       *AssignmentWire `json:"assignment,omitempty"`
	DeleteAssignment bool            `json:"delete_assignment,omitempty"`
	Intro            *IntroWire      `json:"intro,omitempty"`
	DeleteIntro      bool            `json:"delete_intro,omitempty"`
	Lessons          *[]LessonWire   `json:"lessons,omitempty"`
	Status           string          `json:"status,omitempty"`
	SLTHash          string          `json:"slt_hash,omitempty"`
}

// BuildRequest computes the minimal partial-update request for a draft.
//
// Deleted SLT records are excluded so the server removes them; new records
// go out without slt_index, surviving server-known ones with it. When the
// draft is locked the slts key is omitted no matter what the records say.
// The assignment and intro each resolve to exactly one of: delete directive,
// full payload, or omitted key. Lessons are always submitted in full, keyed
// and sorted by SLT position; they are never locked. A requested approval
// carries the BLAKE2b hash of the surviving SLT texts in submitted order,
// the identifier the ledger side will use to recognize this exact set.
func BuildRequest(d Draft) UpdateRequest {
	req := UpdateRequest{
		Title:       d.Title,
		Description: d.Description,
		ImageURL:    d.ImageURL,
		VideoURL:    d.VideoURL,
	}

	slts := make([]SLTWire, 0, len(d.SLTs))
	texts := make([]string, 0, len(d.SLTs))
	for _, rec := range d.SLTs {
		switch rec.state {
		case StateDeleted:
			continue
		case StateNew:
			slts = append(slts, SLTWire{Text: rec.text})
			texts = append(texts, rec.text)
		default:
			idx := rec.index
			slts = append(slts, SLTWire{SLTIndex: &idx, Text: rec.text})
			texts = append(texts, rec.text)
		}
	}
	if !d.Locked {
		req.SLTs = &slts
	}

	switch d.Assignment.State() {
	case StateDeleted:
		req.DeleteAssignment = true
	case StateNew, StateModified:
		p := d.Assignment.payload
		req.Assignment = &AssignmentWire{Title: p.Title, Body: p.Body, URL: p.URL}
	}

	switch d.Intro.State() {
	case StateDeleted:
		req.DeleteIntro = true
	case StateNew, StateModified:
		p := d.Intro.payload
		req.Intro = &IntroWire{Body: p.Body, VideoURL: p.VideoURL}
	}

	lessons := make([]LessonWire, 0, len(d.Lessons))
	for _, k := range d.lessonKeys() {
		p := d.Lessons[k]
		lessons = append(lessons, LessonWire{
			SLTIndex: k,
			Title:    p.Title,
			Body:     p.Body,
			VideoURL: p.VideoURL,
		})
	}
	req.Lessons = &lessons

	if d.RequestApproval {
		req.Status = StatusApproved
		req.SLTHash = HashSLTTexts(texts)
	}

	return req
}

// HashSLTTexts derives the content hash for an ordered SLT set. Each text is
// length-prefixed before hashing so boundary shifts between adjacent texts
// change the digest.
func HashSLTTexts(texts []string) string {
	h, err := blake2b.New256(nil)
	if err != nil {
		// Only reachable with a key longer than the block size; no key here.
		panic(err)
	}
	var prefix [8]byte
	for _, t := range texts {
		binary.BigEndian.PutUint64(prefix[:], uint64(len(t)))
		h.Write(prefix[:])
		h.Write([]byte(t))
	}
	return hex.EncodeToString(h.Sum(nil))
}
