// Package entity defines the canonical entity model shared by every layer:
// entity kinds, provenance classification across the two stores, and the
// merged shapes handed to presentation code.
package entity

import "time"

// Kind identifies one of the platform's entity families.
type Kind string

const (
	KindModule     Kind = "module"
	KindTask       Kind = "task"
	KindCommitment Kind = "commitment"
	KindProject    Kind = "project"
	KindCourse     Kind = "course"
)

// Source records where an entity's authoritative payloads live.
type Source string

const (
	SourceMerged    Source = "merged"
	SourceChainOnly Source = "chain_only"
	SourceDBOnly    Source = "db_only"
)

// SourceFromTag interprets an explicit provenance tag supplied by an
// upstream feed. Feeds that compute provenance server-side carry context the
// presence heuristic cannot reconstruct, so a recognized tag is
// authoritative. Unrecognized or empty tags report false and the caller
// falls back to Classify.
func SourceFromTag(tag string) (Source, bool) {
	switch Source(tag) {
	case SourceMerged, SourceChainOnly, SourceDBOnly:
		return Source(tag), true
	default:
		return "", false
	}
}

// Classify derives provenance from payload presence. Both present means the
// stores agree on the entity's identity; one-sided presence means the entity
// has not yet been written to the other store. Callers must not invoke it
// when neither payload exists; that combination means the entity does not
// exist and there is nothing to classify. It returns db_only in that case so
// the result is at least stable.
func Classify(hasLedger, hasDB bool) Source {
	switch {
	case hasLedger && hasDB:
		return SourceMerged
	case hasLedger:
		return SourceChainOnly
	default:
		return SourceDBOnly
	}
}

// LedgerPayload is the chain-resident half of an entity.
type LedgerPayload struct {
	Hash        string    `json:"hash"`
	CreatedBy   string    `json:"createdBy"`
	Prereqs     []string  `json:"prereqs,omitempty"`
	Reward      int64     `json:"reward,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	BlockHeight int64     `json:"blockHeight,omitempty"`
}

// SLT is one student learning target, ordered within its module.
type SLT struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// Assignment is a module's singleton assignment child.
type Assignment struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
}

// Intro is a module's singleton introduction child.
type Intro struct {
	Body     string `json:"body"`
	VideoURL string `json:"videoUrl,omitempty"`
}

// Lesson is keyed by the position of the SLT it teaches.
type Lesson struct {
	SLTIndex int    `json:"sltIndex"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	VideoURL string `json:"videoUrl,omitempty"`
}

// Module is the canonical credential entity handed to callers. Ledger is nil
// for db_only modules; the content fields are zero for chain_only ones.
type Module struct {
	ID          string         `json:"id"`
	Source      Source         `json:"source"`
	Status      string         `json:"status"`
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	ImageURL    string         `json:"imageUrl,omitempty"`
	VideoURL    string         `json:"videoUrl,omitempty"`
	SLTs        []SLT          `json:"slts,omitempty"`
	Assignment  *Assignment    `json:"assignment,omitempty"`
	Intro       *Intro         `json:"intro,omitempty"`
	Lessons     []Lesson       `json:"lessons,omitempty"`
	Ledger      *LedgerPayload `json:"ledger,omitempty"`
	UpdatedAt   time.Time      `json:"updatedAt,omitempty"`
}

// Commitment is one attempt against a module or task.
type Commitment struct {
	ID          string         `json:"id"`
	ModuleID    string         `json:"moduleId,omitempty"`
	TaskID      string         `json:"taskId,omitempty"`
	CommittedBy string         `json:"committedBy,omitempty"`
	Source      Source         `json:"source"`
	Status      string         `json:"status"`
	Note        string         `json:"note,omitempty"`
	Ledger      *LedgerPayload `json:"ledger,omitempty"`
}

// Task is a project task entity.
type Task struct {
	ID          string         `json:"id"`
	ProjectID   string         `json:"projectId,omitempty"`
	Source      Source         `json:"source"`
	Status      string         `json:"status"`
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	Reward      int64          `json:"reward,omitempty"`
	Ledger      *LedgerPayload `json:"ledger,omitempty"`
}

// Project groups tasks.
type Project struct {
	ID          string         `json:"id"`
	Source      Source         `json:"source"`
	Status      string         `json:"status"`
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	TaskIDs     []string       `json:"taskIds,omitempty"`
	Ledger      *LedgerPayload `json:"ledger,omitempty"`
}

// Course is an ordered, database-resident collection of modules.
type Course struct {
	ID          string   `json:"id"`
	Source      Source   `json:"source"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	ImageURL    string   `json:"imageUrl,omitempty"`
	ModuleIDs   []string `json:"moduleIds,omitempty"`
}
