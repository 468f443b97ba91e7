package authz

import (
	"context"
	"log/slog"
)

// Denial reasons surfaced to callers and metrics.
const (
	ReasonAuthRequired      = "authentication required"
	ReasonAccountNotActive  = "account not active"
	ReasonMissingPermission = "missing required permission"
	ReasonMissingRole       = "missing required role"
	ReasonEvaluationFailure = "authorization evaluation failed"
)

// Requirement describes what a caller must satisfy. The zero value requires
// only an authenticated, active user.
type Requirement struct {
	// Permissions the subject must hold: any of them by default, all of
	// them when RequireAll is set.
	Permissions []Permission
	// Roles the subject's single role must be among. RequireAll has no
	// effect here: a user carries exactly one role, so membership is the
	// only meaningful check.
	Roles []string
	// RequireAll switches the permission check from ANY to ALL semantics.
	RequireAll bool
	// AllowAnonymous skips the authenticated-subject check.
	AllowAnonymous bool
	// AllowInactive skips the active-account check.
	AllowInactive bool
}

// Decision is the result of an authorization check. Denials are values,
// never errors: callers branch on Allowed without exception-driven flow.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason string) Decision { return Decision{Allowed: false, Reason: reason} }

// DecisionRecorder receives every guard decision for metrics.
type DecisionRecorder interface {
	RecordDecision(allowed bool, reason string)
}

// Guard evaluates requirements against subjects. Evaluation is stateless
// and read-only; concurrent calls are independent.
type Guard struct {
	resolver *Resolver
	recorder DecisionRecorder
	logger   *slog.Logger
}

// NewGuard constructs a Guard. recorder and logger may be nil.
func NewGuard(resolver *Resolver, recorder DecisionRecorder, logger *slog.Logger) *Guard {
	return &Guard{resolver: resolver, recorder: recorder, logger: logger}
}

// Evaluate runs the short-circuiting decision chain: authentication, account
// status, permission set (ALL/ANY), then role membership. A requirement with
// no permissions and no roles allows any active authenticated subject.
// Every failure path denies; evaluation never grants access by accident.
func (g *Guard) Evaluate(ctx context.Context, sub *Subject, req Requirement) (decision Decision) {
	defer func() {
		if r := recover(); r != nil {
			if g.logger != nil {
				g.logger.Error("authorization panic", slog.Any("panic", r))
			}
			decision = deny(ReasonEvaluationFailure)
		}
		g.record(decision)
	}()

	if sub == nil {
		if req.AllowAnonymous {
			return allow()
		}
		return deny(ReasonAuthRequired)
	}

	if !req.AllowInactive && !sub.IsActive() {
		return deny(ReasonAccountNotActive)
	}

	if len(req.Permissions) > 0 {
		granted := toSet(g.resolver.EffectivePermissions(ctx, *sub))
		if req.RequireAll {
			for _, p := range req.Permissions {
				if _, ok := granted[p]; !ok {
					return deny(ReasonMissingPermission)
				}
			}
		} else {
			found := false
			for _, p := range req.Permissions {
				if _, ok := granted[p]; ok {
					found = true
					break
				}
			}
			if !found {
				return deny(ReasonMissingPermission)
			}
		}
	}

	if len(req.Roles) > 0 {
		member := false
		for _, role := range req.Roles {
			if sub.Role == role {
				member = true
				break
			}
		}
		if !member {
			return deny(ReasonMissingRole)
		}
	}

	return allow()
}

func (g *Guard) record(d Decision) {
	if g.recorder == nil {
		return
	}
	reason := d.Reason
	if d.Allowed {
		reason = "allowed"
	}
	g.recorder.RecordDecision(d.Allowed, reason)
}

func toSet(perms []Permission) map[Permission]struct{} {
	set := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}
