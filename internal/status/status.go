// Package status owns both status vocabularies and every translation between
// them. No other package may map a store-native status string to a display
// one.
package status

import "trellis/api/internal/entity"

// Canonical commitment statuses.
const (
	CommitmentDraft               = "DRAFT"
	CommitmentPendingConfirmation = "PENDING_CONFIRMATION"
	CommitmentPendingApproval     = "PENDING_APPROVAL"
	CommitmentAccepted            = "ASSIGNMENT_ACCEPTED"
	CommitmentRefused             = "ASSIGNMENT_REFUSED"
)

// Canonical module statuses.
const (
	ModuleDrafting        = "DRAFTING"
	ModulePendingApproval = "PENDING_APPROVAL"
	ModuleApproved        = "APPROVED"
	ModuleArchived        = "ARCHIVED"
)

// commitmentTable maps store-native commitment statuses to canonical ones.
// APPROVED and REJECTED are legacy aliases the content API still emits for
// rows written before its vocabulary migration.
var commitmentTable = map[string]string{
	"DRAFT":     CommitmentDraft,
	"PENDING":   CommitmentPendingConfirmation,
	"SUBMITTED": CommitmentPendingApproval,
	"ACCEPTED":  CommitmentAccepted,
	"REFUSED":   CommitmentRefused,
	"APPROVED":  CommitmentAccepted,
	"REJECTED":  CommitmentRefused,
}

// moduleTable maps store-native module statuses to canonical ones.
// PUBLISHED is the legacy alias for APPROVED.
var moduleTable = map[string]string{
	"DRAFTING":  ModuleDrafting,
	"SUBMITTED": ModulePendingApproval,
	"APPROVED":  ModuleApproved,
	"ARCHIVED":  ModuleArchived,
	"PUBLISHED": ModuleApproved,
}

// Normalize translates a raw store status into the canonical vocabulary for
// the given kind. An empty raw status falls back to a default inferred from
// the entity's source: chain-resident entities with no recorded database
// status are pending review, db-only ones are still being drafted. Unknown
// raw values pass through unchanged so new upstream statuses degrade to a
// verbatim label instead of an error.
func Normalize(raw string, kind entity.Kind, fallback entity.Source) string {
	if raw == "" {
		return defaultFor(kind, fallback)
	}
	table := tableFor(kind)
	if canonical, ok := table[raw]; ok {
		return canonical
	}
	return raw
}

func tableFor(kind entity.Kind) map[string]string {
	switch kind {
	case entity.KindModule:
		return moduleTable
	default:
		// Tasks and projects share the commitment workflow vocabulary.
		return commitmentTable
	}
}

func defaultFor(kind entity.Kind, fallback entity.Source) string {
	if kind == entity.KindModule {
		if fallback == entity.SourceDBOnly {
			return ModuleDrafting
		}
		return ModuleApproved
	}
	if fallback == entity.SourceDBOnly {
		return CommitmentDraft
	}
	return CommitmentPendingApproval
}

// commitmentPriority is the fixed total order used to pick the single
// representative status out of many attempts. Higher wins. Statuses outside
// the table rank below everything known.
var commitmentPriority = map[string]int{
	CommitmentRefused:             1,
	CommitmentPendingConfirmation: 2,
	CommitmentPendingApproval:     3,
	CommitmentAccepted:            4,
}

// Resolve reduces a list of canonical commitment statuses to the one the
// caller should surface. The reduction keeps the first occurrence of the
// highest priority seen, so the result does not depend on input order and a
// tie (which the strict total order precludes) would resolve to the earliest
// element. ok is false for an empty input.
func Resolve(statuses []string) (best string, ok bool) {
	if len(statuses) == 0 {
		return "", false
	}
	best = statuses[0]
	bestPriority := commitmentPriority[best]
	for _, s := range statuses[1:] {
		if p := commitmentPriority[s]; p > bestPriority {
			best = s
			bestPriority = p
		}
	}
	return best, true
}
