package access

import (
	"fmt"

	"github.com/and161185/lendclient/internal/errs"
)

// Grants is what a gate needs to know about a session.
type Grants struct {
	Authenticated bool
	Roles         Roles
	Permissions   Permissions
}

// Can reports whether the grants allow p. Admins pass every known permission;
// PermUnknown is always denied.
func (g Grants) Can(p Permission) bool {
	if !g.Authenticated || p == PermUnknown {
		return false
	}
	if g.Roles.Has(RoleAdmin) {
		return true
	}
	return g.Permissions.Has(p)
}

// Require returns errs.ErrForbidden wrapped with the missing permission names.
func (g Grants) Require(ps ...Permission) error {
	for _, p := range ps {
		if !g.Can(p) {
			return fmt.Errorf("%w: requires %s", errs.ErrForbidden, p)
		}
	}
	return nil
}

// Gate names an operation and the permissions it needs.
type Gate struct {
	Name  string
	Needs []Permission
}

// Gates for the client's permission-gated operations.
var (
	GateCreateApplication = Gate{Name: "create application", Needs: []Permission{PermCreateApplication}}
	GateViewApplications  = Gate{Name: "view applications", Needs: []Permission{PermViewApplications}}
	GateReviewApplication = Gate{Name: "review application", Needs: []Permission{PermReviewApplications}}
	GateViewReports       = Gate{Name: "view reports", Needs: []Permission{PermViewReports}}
	GateViewRiskScores    = Gate{Name: "view risk scores", Needs: []Permission{PermViewReports, PermViewRiskScores}}
	GateManageUsers       = Gate{Name: "manage users", Needs: []Permission{PermManageUsers}}
)

// Check applies the gate to g.
func (gt Gate) Check(g Grants) error {
	if err := g.Require(gt.Needs...); err != nil {
		return fmt.Errorf("%s: %w", gt.Name, err)
	}
	return nil
}
