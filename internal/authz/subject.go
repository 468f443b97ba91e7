package authz

import "context"

// Subject describes the authenticated actor being authorized. Permissions
// holds an explicit per-user override; when non-empty it fully replaces the
// permissions derived from Role.
type Subject struct {
	ID          int64
	Email       string
	Role        string
	Permissions []Permission
	Status      string
}

// IsActive reports whether the account may pass active-user checks.
func (s Subject) IsActive() bool {
	return s.Status == StatusActive
}

type subjectContextKey struct{}

// ContextWithSubject stores the authenticated subject in context.
func ContextWithSubject(ctx context.Context, sub *Subject) context.Context {
	return context.WithValue(ctx, subjectContextKey{}, sub)
}

// SubjectFromContext extracts the authenticated subject, or nil.
func SubjectFromContext(ctx context.Context) *Subject {
	sub, _ := ctx.Value(subjectContextKey{}).(*Subject)
	return sub
}
