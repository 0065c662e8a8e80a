// Package access defines typed roles and permissions and the gates built on them.
package access

import (
	"encoding/json"
	"sort"
	"strings"
)

// Permission is a capability granted by the backend.
type Permission int

// Known permissions. PermUnknown stands for any backend string this client
// does not recognize; it never satisfies a gate.
const (
	PermUnknown Permission = iota
	PermCreateApplication
	PermViewApplications
	PermReviewApplications
	PermApproveApplications
	PermViewReports
	PermExportReports
	PermViewRiskScores
	PermManageUsers
)

var permNames = map[Permission]string{
	PermCreateApplication:   "create_application",
	PermViewApplications:    "view_applications",
	PermReviewApplications:  "review_applications",
	PermApproveApplications: "approve_applications",
	PermViewReports:         "view_reports",
	PermExportReports:       "export_reports",
	PermViewRiskScores:      "view_risk_scores",
	PermManageUsers:         "manage_users",
}

var permByName = func() map[string]Permission {
	m := make(map[string]Permission, len(permNames))
	for p, n := range permNames {
		m[n] = p
	}
	return m
}()

// ParsePermission maps a backend string to a Permission. Matching ignores case
// and surrounding spaces; everything else is PermUnknown.
func ParsePermission(s string) Permission {
	if p, ok := permByName[strings.ToLower(strings.TrimSpace(s))]; ok {
		return p
	}
	return PermUnknown
}

// String returns the backend name of the permission.
func (p Permission) String() string {
	if n, ok := permNames[p]; ok {
		return n
	}
	return "unknown"
}

// AllPermissions lists every known permission in declaration order.
func AllPermissions() []Permission {
	out := make([]Permission, 0, len(permNames))
	for p := PermCreateApplication; p <= PermManageUsers; p++ {
		out = append(out, p)
	}
	return out
}

// Role is a coarse user role.
type Role int

// Known roles.
const (
	RoleUnknown Role = iota
	RoleApplicant
	RoleLoanOfficer
	RoleUnderwriter
	RoleAnalyst
	RoleAdmin
)

var roleNames = map[Role]string{
	RoleApplicant:   "applicant",
	RoleLoanOfficer: "loan_officer",
	RoleUnderwriter: "underwriter",
	RoleAnalyst:     "analyst",
	RoleAdmin:       "admin",
}

var roleByName = func() map[string]Role {
	m := make(map[string]Role, len(roleNames))
	for r, n := range roleNames {
		m[n] = r
	}
	return m
}()

// ParseRole maps a backend string to a Role; unrecognized values are RoleUnknown.
func ParseRole(s string) Role {
	if r, ok := roleByName[strings.ToLower(strings.TrimSpace(s))]; ok {
		return r
	}
	return RoleUnknown
}

// String returns the backend name of the role.
func (r Role) String() string {
	if n, ok := roleNames[r]; ok {
		return n
	}
	return "unknown"
}

// Permissions is a set of permissions. Raw keeps unrecognized backend strings
// so that a save/load cycle does not lose them.
type Permissions struct {
	set     map[Permission]struct{}
	unknown []string
}

// NewPermissions builds a set from typed values.
func NewPermissions(ps ...Permission) Permissions {
	out := Permissions{set: make(map[Permission]struct{}, len(ps))}
	for _, p := range ps {
		if p != PermUnknown {
			out.set[p] = struct{}{}
		}
	}
	return out
}

// ParsePermissions builds a set from backend strings.
func ParsePermissions(names []string) Permissions {
	out := Permissions{set: make(map[Permission]struct{}, len(names))}
	for _, n := range names {
		if p := ParsePermission(n); p != PermUnknown {
			out.set[p] = struct{}{}
		} else if n != "" {
			out.unknown = append(out.unknown, n)
		}
	}
	return out
}

// Has reports whether p is in the set. PermUnknown is never present.
func (ps Permissions) Has(p Permission) bool {
	_, ok := ps.set[p]
	return ok
}

// HasAny reports whether at least one of want is present.
func (ps Permissions) HasAny(want ...Permission) bool {
	for _, p := range want {
		if ps.Has(p) {
			return true
		}
	}
	return false
}

// HasAll reports whether every one of want is present.
func (ps Permissions) HasAll(want ...Permission) bool {
	for _, p := range want {
		if !ps.Has(p) {
			return false
		}
	}
	return true
}

// Len returns the number of known permissions in the set.
func (ps Permissions) Len() int { return len(ps.set) }

// Unknown returns the backend strings that did not map to a known permission.
func (ps Permissions) Unknown() []string { return append([]string(nil), ps.unknown...) }

// Strings returns backend names, known ones sorted, followed by unknown ones.
func (ps Permissions) Strings() []string {
	out := make([]string, 0, len(ps.set)+len(ps.unknown))
	for p := range ps.set {
		out = append(out, p.String())
	}
	sort.Strings(out)
	return append(out, ps.unknown...)
}

// MarshalJSON encodes the set as a string array.
func (ps Permissions) MarshalJSON() ([]byte, error) { return json.Marshal(ps.Strings()) }

// UnmarshalJSON decodes a string array.
func (ps *Permissions) UnmarshalJSON(b []byte) error {
	var names []string
	if err := json.Unmarshal(b, &names); err != nil {
		return err
	}
	*ps = ParsePermissions(names)
	return nil
}

// Roles is a set of roles with the same semantics as Permissions.
type Roles struct {
	set     map[Role]struct{}
	unknown []string
}

// NewRoles builds a set from typed values.
func NewRoles(rs ...Role) Roles {
	out := Roles{set: make(map[Role]struct{}, len(rs))}
	for _, r := range rs {
		if r != RoleUnknown {
			out.set[r] = struct{}{}
		}
	}
	return out
}

// ParseRoles builds a set from backend strings.
func ParseRoles(names []string) Roles {
	out := Roles{set: make(map[Role]struct{}, len(names))}
	for _, n := range names {
		if r := ParseRole(n); r != RoleUnknown {
			out.set[r] = struct{}{}
		} else if n != "" {
			out.unknown = append(out.unknown, n)
		}
	}
	return out
}

// Has reports whether r is in the set.
func (rs Roles) Has(r Role) bool {
	_, ok := rs.set[r]
	return ok
}

// HasAny reports whether at least one of want is present.
func (rs Roles) HasAny(want ...Role) bool {
	for _, r := range want {
		if rs.Has(r) {
			return true
		}
	}
	return false
}

// Len returns the number of known roles in the set.
func (rs Roles) Len() int { return len(rs.set) }

// Strings returns backend names, known ones sorted, followed by unknown ones.
func (rs Roles) Strings() []string {
	out := make([]string, 0, len(rs.set)+len(rs.unknown))
	for r := range rs.set {
		out = append(out, r.String())
	}
	sort.Strings(out)
	return append(out, rs.unknown...)
}

// MarshalJSON encodes the set as a string array.
func (rs Roles) MarshalJSON() ([]byte, error) { return json.Marshal(rs.Strings()) }

// UnmarshalJSON decodes a string array.
func (rs *Roles) UnmarshalJSON(b []byte) error {
	var names []string
	if err := json.Unmarshal(b, &names); err != nil {
		return err
	}
	*rs = ParseRoles(names)
	return nil
}
