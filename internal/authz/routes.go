package authz

import "github.com/wolfeidau/upiwallet/internal/auth"

// RouteRule pairs a route with the requirement guarding it.
type RouteRule struct {
	Route       Route
	Title       string
	Requirement Requirement
}

var routes = []RouteRule{
	{RouteDashboard, "Dashboard", AnyUser()},
	{RouteTransfer, "Send money", AnyUser()},
	{RouteTransactions, "Transactions", AnyUser()},
	{RouteContacts, "Contacts", AnyUser()},
	{RouteScheduled, "Scheduled payments", AnyUser()},
	{RouteSecurity, "Security", AnyUser()},
	{RouteAdminDashboard, "Admin dashboard", AnyAdmin()},
	{RouteAdminAnalytics, "Analytics", AdminRoles(auth.RoleSuperAdmin, auth.RoleAnalytics)},
	{RouteAdminTransactions, "All transactions", AdminRoles(auth.RoleSuperAdmin, auth.RoleTransactions)},
	{RouteAdminAuditLogs, "Audit logs", AdminRoles(auth.RoleSuperAdmin, auth.RoleAuditLogs)},
}

// Routes returns the guarded routes of the app.
func Routes() []RouteRule {
	out := make([]RouteRule, len(routes))
	copy(out, routes)
	return out
}

// Lookup finds the rule for route.
func Lookup(route Route) (RouteRule, bool) {
	for _, r := range routes {
		if r.Route == route {
			return r, true
		}
	}
	return RouteRule{}, false
}
