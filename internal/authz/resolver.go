package authz

import (
	"context"
	"log/slog"
)

// RoleLookup fetches the permission set attached to a role name. The second
// return value is false when the registry has no active role by that name.
type RoleLookup interface {
	PermissionsByRole(ctx context.Context, name string) ([]Permission, bool, error)
}

// PermissionSource resolves the effective permission set for a subject.
// A source returns ok=false when it has no answer, letting the chain
// continue with the next source.
type PermissionSource interface {
	Resolve(ctx context.Context, sub Subject) ([]Permission, bool, error)
}

// explicitSource returns the subject's explicit override set when present.
type explicitSource struct{}

func (explicitSource) Resolve(_ context.Context, sub Subject) ([]Permission, bool, error) {
	if len(sub.Permissions) == 0 {
		return nil, false, nil
	}
	return sub.Permissions, true, nil
}

// registrySource resolves permissions through the role registry.
type registrySource struct {
	lookup RoleLookup
}

func (s registrySource) Resolve(ctx context.Context, sub Subject) ([]Permission, bool, error) {
	if s.lookup == nil || sub.Role == "" {
		return nil, false, nil
	}
	perms, ok, err := s.lookup.PermissionsByRole(ctx, sub.Role)
	if err != nil {
		return nil, false, err
	}
	return perms, ok, nil
}

// defaultsSource falls back to the static per-role baseline table.
type defaultsSource struct{}

func (defaultsSource) Resolve(_ context.Context, sub Subject) ([]Permission, bool, error) {
	perms, ok := DefaultPermissions(sub.Role)
	return perms, ok, nil
}

// Resolver walks an ordered source chain (explicit override, role registry,
// static defaults) and stops at the first source with an answer. A source
// error is logged and skipped so that a registry outage degrades to the
// static baseline instead of failing the request.
type Resolver struct {
	sources []PermissionSource
	logger  *slog.Logger
}

// NewResolver builds the standard three-step resolver chain. lookup may be
// nil, in which case role resolution goes straight to the defaults table.
func NewResolver(lookup RoleLookup, logger *slog.Logger) *Resolver {
	return &Resolver{
		sources: []PermissionSource{
			explicitSource{},
			registrySource{lookup: lookup},
			defaultsSource{},
		},
		logger: logger,
	}
}

// EffectivePermissions resolves the subject's permission set. A subject
// whose role is unknown everywhere resolves to the empty set, never an
// error.
func (r *Resolver) EffectivePermissions(ctx context.Context, sub Subject) []Permission {
	for _, src := range r.sources {
		perms, ok, err := src.Resolve(ctx, sub)
		if err != nil {
			if r.logger != nil {
				r.logger.Warn("permission source failed",
					slog.String("role", sub.Role),
					slog.Int64("user_id", sub.ID),
					slog.Any("error", err))
			}
			continue
		}
		if ok {
			return perms
		}
	}
	return nil
}
