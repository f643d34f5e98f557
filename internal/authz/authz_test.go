package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/upiwallet/internal/auth"
	"github.com/wolfeidau/upiwallet/internal/session"
)

func signedIn(role string) session.Session {
	sess := session.Session{Restored: true, Authenticated: true, RawToken: "t", Role: role}
	if r, ok := auth.AdminRole(role); ok {
		sess.Admin = true
		sess.AdminRole = r
	}
	return sess
}

func TestDecide(t *testing.T) {
	analyticsOnly := AdminRoles(auth.RoleSuperAdmin, auth.RoleAnalytics)
	auditOnly := AdminRoles(auth.RoleAuditLogs)

	tests := []struct {
		name     string
		session  session.Session
		req      Requirement
		outcome  Outcome
		redirect Route
	}{
		{"not restored yet", session.Session{}, AnyUser(), Pending, ""},
		{"signed out user route", session.Session{Restored: true}, AnyUser(), Deny, RouteLogin},
		{"signed out admin route", session.Session{Restored: true}, analyticsOnly, Deny, RouteLogin},
		{"user on user route", signedIn("ROLE_USER"), AnyUser(), Allow, ""},
		{"admin on user route", signedIn("ROLE_AUDIT_LOGS"), AnyUser(), Allow, ""},
		{"user on admin route", signedIn("ROLE_USER"), AnyAdmin(), Deny, RouteDashboard},
		{"user on role route", signedIn("ROLE_USER"), auditOnly, Deny, RouteDashboard},
		{"no role on admin route", signedIn(""), AnyAdmin(), Deny, RouteDashboard},
		{"admin on any admin route", signedIn("ROLE_TRANSACTIONS"), AnyAdmin(), Allow, ""},
		{"analytics allowed", signedIn("ROLE_ANALYTICS"), analyticsOnly, Allow, ""},
		{"analytics denied audit logs", signedIn("ROLE_ANALYTICS"), auditOnly, Deny, RouteAdminUnauthorized},
		{"super admin not implied", signedIn("ROLE_SUPER_ADMIN"), auditOnly, Deny, RouteAdminUnauthorized},
		{"empty role set means any admin", signedIn("ROLE_AUDIT_LOGS"), AdminRoles(), Allow, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.session, tt.req)
			assert.Equal(t, tt.outcome, d.Outcome)
			assert.Equal(t, tt.redirect, d.RedirectTo)
			assert.Equal(t, tt.outcome == Allow, d.Allowed())
		})
	}
}

func TestLandingPage(t *testing.T) {
	tests := []struct {
		role string
		want Route
	}{
		{"ROLE_USER", RouteDashboard},
		{"", RouteDashboard},
		{"ROLE_ANALYTICS", RouteAdminAnalytics},
		{"ROLE_TRANSACTIONS", RouteAdminTransactions},
		{"ROLE_AUDIT_LOGS", RouteAdminAuditLogs},
		{"ROLE_SUPER_ADMIN", RouteAdminDashboard},
	}

	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			assert.Equal(t, tt.want, LandingPage(signedIn(tt.role)))
		})
	}

	t.Run("unmapped admin role", func(t *testing.T) {
		sess := signedIn("ROLE_SUPER_ADMIN")
		sess.AdminRole = auth.Role("ROLE_NEW_TAB")
		assert.Equal(t, RouteAdminDashboard, LandingPage(sess))
	})
}

func TestRoutes(t *testing.T) {
	rules := Routes()
	require.NotEmpty(t, rules)

	seen := map[Route]bool{}
	for _, r := range rules {
		assert.False(t, seen[r.Route], "duplicate route %s", r.Route)
		seen[r.Route] = true
		assert.NotEmpty(t, r.Title)
	}

	// Every admin landing page must be reachable by its own role.
	for _, role := range auth.AdminRoles() {
		sess := signedIn(role.String())
		landing := LandingPage(sess)
		rule, ok := Lookup(landing)
		require.True(t, ok, "landing %s for %s is not a declared route", landing, role)
		assert.True(t, Decide(sess, rule.Requirement).Allowed(), "%s cannot open its landing page", role)
	}

	rules[0].Route = "/mutated"
	_, ok := Lookup("/mutated")
	assert.False(t, ok)
}

func TestRequirement_String(t *testing.T) {
	assert.Equal(t, "any user", AnyUser().String())
	assert.Equal(t, "any admin", AnyAdmin().String())
	assert.Equal(t, "admin: ROLE_SUPER_ADMIN, ROLE_ANALYTICS",
		AdminRoles(auth.RoleSuperAdmin, auth.RoleAnalytics).String())
}
