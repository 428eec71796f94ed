// Package policy decides which actions a principal may perform. Core
// services call it instead of comparing role strings themselves.
package policy

import (
	"context"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"lms_core/backend/internal/shared"
)

// Permissions checked by the core services
const (
	MarksWrite   = "marks:write"
	MarksReadOwn = "marks:read-own"
	MarksReadAll = "marks:read-all"
	MarksRebuild = "marks:rebuild"

	ExamCreate    = "exam:create"
	ExamUpdate    = "exam:update"
	ExamUpdateAny = "exam:update-any"
	ExamView      = "exam:view"
	ExamViewKey   = "exam:view-answers"

	SubmissionCreate    = "submission:create"
	SubmissionUpdate    = "submission:update"
	SubmissionUpdateOwn = "submission:update-own"
	SubmissionViewOwn   = "submission:view-own"
	SubmissionViewAll   = "submission:view-all"
	SubmissionGrade     = "submission:grade"
)

// RolePermissions is the default role to permission table
var RolePermissions = map[string][]string{
	shared.RoleStudent: {
		MarksReadOwn,
		ExamView,
		SubmissionCreate,
		SubmissionUpdateOwn,
		SubmissionViewOwn,
	},
	shared.RoleInstructor: {
		"marks:*",
		ExamCreate,
		ExamUpdate,
		ExamView,
		ExamViewKey,
		SubmissionUpdate,
		SubmissionViewAll,
		SubmissionGrade,
	},
	shared.RoleAdmin: {
		"*",
	},
}

// Principal is the authenticated caller
type Principal struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// IsStudent reports whether the principal acts as a student
func (p Principal) IsStudent() bool { return p.Role == shared.RoleStudent }

// Checker answers permission questions for a role table
type Checker struct {
	RolePermissions map[string][]string
}

// NewChecker creates a checker; nil selects RolePermissions
func NewChecker(rp map[string][]string) *Checker {
	if rp == nil {
		rp = RolePermissions
	}
	return &Checker{RolePermissions: rp}
}

// Has reports whether role holds perm, honouring "*" and "prefix:*" grants
func (c *Checker) Has(role, perm string) bool {
	perms, ok := c.RolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if matchPerm(p, perm) {
			return true
		}
	}
	return false
}

// Require returns PermissionDenied unless the principal holds perm
func (c *Checker) Require(p Principal, perm string) error {
	if p.ID == "" {
		return status.Error(codes.Unauthenticated, "authentication required")
	}
	if !c.Has(p.Role, perm) {
		return status.Errorf(codes.PermissionDenied, "role %q may not %s", p.Role, perm)
	}
	return nil
}

// RequireOwnerOr allows the principal when it holds anyPerm, or when it holds
// ownPerm and owns the resource.
func (c *Checker) RequireOwnerOr(p Principal, ownerID, ownPerm, anyPerm string) error {
	if p.ID == "" {
		return status.Error(codes.Unauthenticated, "authentication required")
	}
	if c.Has(p.Role, anyPerm) {
		return nil
	}
	if c.Has(p.Role, ownPerm) && p.ID == ownerID {
		return nil
	}
	return status.Error(codes.PermissionDenied, "access denied: resource belongs to another user")
}

func matchPerm(pattern, perm string) bool {
	if pattern == "*" || pattern == perm {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(perm, strings.TrimSuffix(pattern, "*"))
	}
	return false
}

// ---- principal in context ----

type ctxKey struct{}

// WithPrincipal stores p in ctx
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns the principal stored by WithPrincipal
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}
