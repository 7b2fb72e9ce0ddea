// Package rbac maps platform roles to the actions the API exposes.
package rbac

type Role string
type Action string

const (
	RoleLearner Role = "learner"
	RoleAuthor  Role = "author"
	RoleAdmin   Role = "admin"
)

const (
	ActionRead    Action = "read"
	ActionDraft   Action = "draft"
	ActionUpload  Action = "upload"
	ActionApprove Action = "approve"
	ActionAdmin   Action = "admin"
)

// grants lists the actions each role may take. RoleAdmin is absent on
// purpose: admins pass every check.
var grants = map[Role]map[Action]bool{
	RoleLearner: {ActionRead: true},
	RoleAuthor:  {ActionRead: true, ActionDraft: true, ActionUpload: true, ActionApprove: true},
}

// Can reports whether role is allowed to perform action. Unknown roles
// are allowed nothing.
func Can(role Role, action Action) bool {
	if role == RoleAdmin {
		return true
	}
	return grants[role][action]
}

// Normalize degrades unknown roles to learner.
func Normalize(role string) Role {
	switch Role(role) {
	case RoleLearner, RoleAuthor, RoleAdmin:
		return Role(role)
	default:
		return RoleLearner
	}
}
