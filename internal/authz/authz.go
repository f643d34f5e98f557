package authz

import (
	"fmt"
	"slices"
	"strings"

	"github.com/wolfeidau/upiwallet/internal/auth"
	"github.com/wolfeidau/upiwallet/internal/session"
)

// Route is an application page path.
type Route string

const (
	RouteLogin        Route = "/login"
	RouteDashboard    Route = "/dashboard"
	RouteTransfer     Route = "/transfer"
	RouteTransactions Route = "/transactions"
	RouteContacts     Route = "/contacts"
	RouteScheduled    Route = "/scheduled"
	RouteSecurity     Route = "/security"

	RouteAdminDashboard    Route = "/admin/dashboard"
	RouteAdminAnalytics    Route = "/admin/analytics"
	RouteAdminTransactions Route = "/admin/transactions"
	RouteAdminAuditLogs    Route = "/admin/audit-logs"
	RouteAdminUnauthorized Route = "/admin/unauthorized"
)

// Requirement declares who may open a route.
type Requirement struct {
	admin bool
	roles []auth.Role
}

// AnyUser admits every authenticated session.
func AnyUser() Requirement { return Requirement{} }

// AnyAdmin admits every session holding an admin role.
func AnyAdmin() Requirement { return Requirement{admin: true} }

// AdminRoles admits admin sessions whose role is one of roles. With no
// roles it is the same as AnyAdmin.
func AdminRoles(roles ...auth.Role) Requirement {
	return Requirement{admin: true, roles: slices.Clone(roles)}
}

// Roles returns the admin roles the requirement is restricted to.
func (r Requirement) Roles() []auth.Role { return slices.Clone(r.roles) }

func (r Requirement) String() string {
	switch {
	case !r.admin:
		return "any user"
	case len(r.roles) == 0:
		return "any admin"
	default:
		names := make([]string, len(r.roles))
		for i, role := range r.roles {
			names[i] = role.String()
		}
		return "admin: " + strings.Join(names, ", ")
	}
}

// Outcome is the verdict of a Decision.
type Outcome int

const (
	// Pending means the session has not been restored yet.
	Pending Outcome = iota
	Allow
	Deny
)

func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Decision is the result of Decide. RedirectTo is set only on Deny.
type Decision struct {
	Outcome    Outcome
	RedirectTo Route
}

func (d Decision) Allowed() bool { return d.Outcome == Allow }

func allow() Decision              { return Decision{Outcome: Allow} }
func deny(redirect Route) Decision { return Decision{Outcome: Deny, RedirectTo: redirect} }

// Decide applies req to sess, checking in order: signed in, user-level
// route, admin at all, role membership.
func Decide(sess session.Session, req Requirement) Decision {
	if !sess.Restored {
		return Decision{Outcome: Pending}
	}
	if !sess.Authenticated {
		return deny(RouteLogin)
	}
	if !req.admin {
		return allow()
	}
	if !sess.Admin {
		return deny(RouteDashboard)
	}
	if len(req.roles) > 0 && !slices.Contains(req.roles, sess.AdminRole) {
		return deny(RouteAdminUnauthorized)
	}
	return allow()
}

var adminLanding = map[auth.Role]Route{
	auth.RoleSuperAdmin:   RouteAdminDashboard,
	auth.RoleAnalytics:    RouteAdminAnalytics,
	auth.RoleTransactions: RouteAdminTransactions,
	auth.RoleAuditLogs:    RouteAdminAuditLogs,
}

// LandingPage is where sess goes right after login.
func LandingPage(sess session.Session) Route {
	if !sess.Admin {
		return RouteDashboard
	}
	if route, ok := adminLanding[sess.AdminRole]; ok {
		return route
	}
	return RouteAdminDashboard
}
