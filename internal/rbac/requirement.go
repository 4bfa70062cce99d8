package rbac

import (
	"context"
	"strings"
)

// Mode selects how a Requirement is evaluated.
type Mode int

const (
	// ModeSingle passes when the role holds the one named permission.
	ModeSingle Mode = iota + 1
	// ModeAny passes when the role holds at least one listed permission.
	ModeAny
	// ModeAll passes when the role holds every listed permission.
	ModeAll
)

func (m Mode) String() string {
	switch m {
	case ModeSingle:
		return "single"
	case ModeAny:
		return "any"
	case ModeAll:
		return "all"
	default:
		return "unknown"
	}
}

// Requirement is the permission demand a route declares at registration.
// Names are matched exactly.
type Requirement struct {
	mode  Mode
	names []string
}

// Single requires exactly one permission.
func Single(name string) Requirement {
	return Requirement{mode: ModeSingle, names: normalize([]string{name})}
}

// AnyOf requires at least one of names.
func AnyOf(names ...string) Requirement {
	return Requirement{mode: ModeAny, names: normalize(names)}
}

// AllOf requires every one of names.
func AllOf(names ...string) Requirement {
	return Requirement{mode: ModeAll, names: normalize(names)}
}

// Mode returns the evaluation mode.
func (q Requirement) Mode() Mode { return q.mode }

// Names returns a copy of the required permission names.
func (q Requirement) Names() []string {
	return append([]string(nil), q.names...)
}

// Empty reports whether the requirement names no permission. An empty
// requirement never passes.
func (q Requirement) Empty() bool {
	return len(q.names) == 0 || (q.mode == ModeSingle && len(q.names) != 1)
}

// DeniedMessage is the caller-facing explanation of a failed check.
func (q Requirement) DeniedMessage() string {
	switch q.mode {
	case ModeSingle:
		return "Access denied. Required permission: " + strings.Join(q.names, ", ")
	case ModeAny:
		return "Access denied. Required one of: " + strings.Join(q.names, ", ")
	default:
		return "Access denied. Required all of: " + strings.Join(q.names, ", ")
	}
}

// Evaluate decides the requirement for roleID against resolver.
func (q Requirement) Evaluate(ctx context.Context, resolver Resolver, roleID string) (bool, error) {
	if q.Empty() || roleID == "" {
		return false, nil
	}
	if q.mode == ModeSingle {
		return resolver.HasPermission(ctx, roleID, q.names[0])
	}
	granted, err := resolver.GetPermissions(ctx, roleID)
	if err != nil {
		return false, err
	}
	switch q.mode {
	case ModeAny:
		for _, n := range q.names {
			if granted.Has(n) {
				return true, nil
			}
		}
		return false, nil
	case ModeAll:
		for _, n := range q.names {
			if !granted.Has(n) {
				return false, nil
			}
		}
		return true, nil
	default:
		return false, nil
	}
}

func normalize(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
