// Package access implements row-level visibility for documents.
//
// A Principal is compiled into a Filter once per request. The Filter is
// data, not behavior: store backends translate it into SQL predicates so
// inaccessible rows never leave the store layer, and in-memory callers
// evaluate it with Matches. Both paths implement the same rule.
package access

// Principal identifies the caller of a retrieval or ingestion operation.
// The zero value is an anonymous caller who sees only public documents.
type Principal struct {
	UserID  string
	Email   string
	Groups  []string
	IsAdmin bool
}

// IsAnonymous reports whether the principal carries no identity at all.
func (p Principal) IsAnonymous() bool {
	return !p.IsAdmin && p.UserID == "" && p.Email == "" && len(p.Groups) == 0
}

// DocumentACL is the access-relevant slice of a document row.
type DocumentACL struct {
	OwnerID    string
	OwnerEmail string
	IsPublic   bool
	SharedWith []string
	GroupIDs   []string
}

// Filter is a compiled access predicate.
//
// A document is visible when any clause holds: the filter is unrestricted
// (admin), the document is public, the caller owns it by user id or email,
// the caller appears in its share list, or the caller shares a group with it.
type Filter struct {
	// All disables filtering entirely. Only admins get this.
	All    bool
	UserID string
	Email  string
	Groups []string
}

// Compile translates a principal into the filter applied to every read.
func Compile(p Principal) Filter {
	if p.IsAdmin {
		return Filter{All: true}
	}
	return Filter{
		UserID: p.UserID,
		Email:  p.Email,
		Groups: dedupe(p.Groups),
	}
}

// Matches evaluates the filter against a document's ACL in memory.
// Store backends must produce exactly this rule in SQL.
func (f Filter) Matches(doc DocumentACL) bool {
	if f.All {
		return true
	}
	if doc.IsPublic {
		return true
	}
	if f.UserID != "" && doc.OwnerID == f.UserID {
		return true
	}
	if f.Email != "" && doc.OwnerEmail == f.Email {
		return true
	}
	if f.UserID != "" && contains(doc.SharedWith, f.UserID) {
		return true
	}
	return intersects(f.Groups, doc.GroupIDs)
}

// CanWrite reports whether the principal may delete or re-index the
// document. Writes require ownership by user id, or admin.
func CanWrite(p Principal, doc DocumentACL) bool {
	if p.IsAdmin {
		return true
	}
	return p.UserID != "" && doc.OwnerID == p.UserID
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func intersects(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	seen := make(map[string]struct{}, len(a))
	for _, s := range a {
		seen[s] = struct{}{}
	}
	for _, s := range b {
		if _, ok := seen[s]; ok {
			return true
		}
	}
	return false
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
