package authz

import "pickdesk/internal/models"

// ScopeRead applies the per-role read policy to a decision list.
//   - user: rows owned by the requester, nothing else.
//   - observer: every row, with owner-identifying fields stripped.
//   - support/ops_admin/admin: every row, optionally narrowed by an explicit
//     owner filter supplied by the caller.
//
// The input slice is never mutated; decisions are owned by the evaluation
// pipeline.
func ScopeRead(ident *Identity, decisions []models.Decision, ownerFilter *string) []models.Decision {
	if ident == nil {
		return nil
	}
	out := make([]models.Decision, 0, len(decisions))
	switch ident.Role {
	case RoleUser:
		for _, d := range decisions {
			if d.OwnerUserID == ident.UserID {
				out = append(out, d)
			}
		}
	case RoleObserver:
		for _, d := range decisions {
			out = append(out, Anonymize(d))
		}
	default:
		for _, d := range decisions {
			if ownerFilter != nil && d.OwnerUserID != *ownerFilter {
				continue
			}
			out = append(out, d)
		}
	}
	return out
}

// Anonymize returns a copy with the owner-identifying fields removed. The
// empty owner id is dropped from JSON output entirely.
func Anonymize(d models.Decision) models.Decision {
	d.OwnerUserID = ""
	return d
}

// ContainsNonOwned reports whether the scoped result exposes rows the
// requester does not own, which privileged reads must audit.
func ContainsNonOwned(ident *Identity, decisions []models.Decision) bool {
	if ident == nil {
		return false
	}
	for _, d := range decisions {
		if d.OwnerUserID != ident.UserID {
			return true
		}
	}
	return false
}
