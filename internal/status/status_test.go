package status

import (
	"testing"

	"trellis/api/internal/entity"
)

func TestNormalizeCommitmentTable(t *testing.T) {
	cases := map[string]string{
		"DRAFT":     "DRAFT",
		"PENDING":   "PENDING_CONFIRMATION",
		"SUBMITTED": "PENDING_APPROVAL",
		"ACCEPTED":  "ASSIGNMENT_ACCEPTED",
		"REFUSED":   "ASSIGNMENT_REFUSED",
		// Legacy aliases from before the vocabulary migration.
		"APPROVED": "ASSIGNMENT_ACCEPTED",
		"REJECTED": "ASSIGNMENT_REFUSED",
	}
	for raw, want := range cases {
		if got := Normalize(raw, entity.KindCommitment, entity.SourceMerged); got != want {
			t.Errorf("Normalize(%q, commitment) = %q, want %q", raw, got, want)
		}
	}
}

func TestNormalizeModuleTable(t *testing.T) {
	cases := map[string]string{
		"DRAFTING":  "DRAFTING",
		"SUBMITTED": "PENDING_APPROVAL",
		"APPROVED":  "APPROVED",
		"ARCHIVED":  "ARCHIVED",
		"PUBLISHED": "APPROVED",
	}
	for raw, want := range cases {
		if got := Normalize(raw, entity.KindModule, entity.SourceMerged); got != want {
			t.Errorf("Normalize(%q, module) = %q, want %q", raw, got, want)
		}
	}
}

func TestNormalizeUnknownPassesThrough(t *testing.T) {
	for _, raw := range []string{"ESCALATED", "frozen", "STATUS_42"} {
		if got := Normalize(raw, entity.KindCommitment, entity.SourceMerged); got != raw {
			t.Errorf("Normalize(%q) = %q, want passthrough", raw, got)
		}
		if got := Normalize(raw, entity.KindModule, entity.SourceDBOnly); got != raw {
			t.Errorf("Normalize(%q, module) = %q, want passthrough", raw, got)
		}
	}
}

func TestNormalizeEmptyFallsBackToSource(t *testing.T) {
	cases := []struct {
		kind     entity.Kind
		fallback entity.Source
		want     string
	}{
		{entity.KindCommitment, entity.SourceChainOnly, "PENDING_APPROVAL"},
		{entity.KindCommitment, entity.SourceMerged, "PENDING_APPROVAL"},
		{entity.KindCommitment, entity.SourceDBOnly, "DRAFT"},
		{entity.KindModule, entity.SourceChainOnly, "APPROVED"},
		{entity.KindModule, entity.SourceMerged, "APPROVED"},
		{entity.KindModule, entity.SourceDBOnly, "DRAFTING"},
	}
	for _, tc := range cases {
		if got := Normalize("", tc.kind, tc.fallback); got != tc.want {
			t.Errorf("Normalize(\"\", %s, %s) = %q, want %q", tc.kind, tc.fallback, got, tc.want)
		}
	}
}

func TestResolveEmpty(t *testing.T) {
	if got, ok := Resolve(nil); ok {
		t.Fatalf("Resolve(nil) = %q, ok=true, want no result", got)
	}
	if got, ok := Resolve([]string{}); ok {
		t.Fatalf("Resolve([]) = %q, ok=true, want no result", got)
	}
}

func TestResolvePicksHighestPriority(t *testing.T) {
	got, ok := Resolve([]string{"ASSIGNMENT_REFUSED", "PENDING_APPROVAL"})
	if !ok || got != "PENDING_APPROVAL" {
		t.Fatalf("Resolve = %q, ok=%v, want PENDING_APPROVAL", got, ok)
	}
}

func TestResolveOrderIndependent(t *testing.T) {
	statuses := []string{
		"ASSIGNMENT_REFUSED",
		"PENDING_CONFIRMATION",
		"ASSIGNMENT_ACCEPTED",
		"PENDING_APPROVAL",
	}
	perms := permutations(statuses)
	for _, p := range perms {
		got, ok := Resolve(p)
		if !ok || got != "ASSIGNMENT_ACCEPTED" {
			t.Fatalf("Resolve(%v) = %q, ok=%v, want ASSIGNMENT_ACCEPTED", p, got, ok)
		}
	}
}

func TestResolveUnknownRanksLowest(t *testing.T) {
	got, ok := Resolve([]string{"ESCALATED", "ASSIGNMENT_REFUSED"})
	if !ok || got != "ASSIGNMENT_REFUSED" {
		t.Fatalf("Resolve = %q, ok=%v, want ASSIGNMENT_REFUSED over unknown", got, ok)
	}
	// All-unknown input keeps the first element for determinism.
	got, ok = Resolve([]string{"ESCALATED", "FROZEN"})
	if !ok || got != "ESCALATED" {
		t.Fatalf("Resolve(all unknown) = %q, ok=%v, want first element", got, ok)
	}
}

func TestResolveSingle(t *testing.T) {
	got, ok := Resolve([]string{"PENDING_CONFIRMATION"})
	if !ok || got != "PENDING_CONFIRMATION" {
		t.Fatalf("Resolve(single) = %q, ok=%v", got, ok)
	}
}

func permutations(in []string) [][]string {
	if len(in) <= 1 {
		return [][]string{append([]string(nil), in...)}
	}
	var out [][]string
	for i := range in {
		rest := make([]string, 0, len(in)-1)
		rest = append(rest, in[:i]...)
		rest = append(rest, in[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([]string{in[i]}, p...))
		}
	}
	return out
}
