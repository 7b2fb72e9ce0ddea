package rbac

import "testing"

// TestCan walks the full role/action grid so a grants-table edit cannot
// silently widen a role.
func TestCan(t *testing.T) {
	all := []Action{ActionRead, ActionDraft, ActionUpload, ActionApprove, ActionAdmin}
	allowed := map[Role][]Action{
		RoleLearner:       {ActionRead},
		RoleAuthor:        {ActionRead, ActionDraft, ActionUpload, ActionApprove},
		RoleAdmin:         all,
		Role("anonymous"): {},
	}

	for role, grants := range allowed {
		want := make(map[Action]bool, len(grants))
		for _, action := range grants {
			want[action] = true
		}
		for _, action := range all {
			if got := Can(role, action); got != want[action] {
				t.Errorf("Can(%q, %q) = %v, want %v", role, action, got, want[action])
			}
		}
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("author"); got != RoleAuthor {
		t.Fatalf("Normalize(author) = %q", got)
	}
	if got := Normalize("superuser"); got != RoleLearner {
		t.Fatalf("Normalize(superuser) = %q, want learner", got)
	}
	if got := Normalize(""); got != RoleLearner {
		t.Fatalf("Normalize(\"\") = %q, want learner", got)
	}
}
