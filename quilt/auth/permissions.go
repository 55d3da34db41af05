package auth

import (
	"net/http"
	"quiltplatform/quilt/schema"
	"slices"
)

// Requirement is a declarative permission check. Checks are AND-ed and
// evaluated in order: auth, tenant, roles.
type Requirement struct {
	RequiresAuth             bool
	RequiresPrivilegedTenant bool
	AllowedRoles             []string
}

// HasPermission evaluates a requirement against the given auth state. Pure
// function, no side effects. A nil principal means unauthenticated; a nil
// profile always fails a role check even if the other checks pass.
func HasPermission(req Requirement, principal *Principal, profile *schema.User, isPrivileged bool) bool {
	if req.RequiresAuth && principal == nil {
		return false
	}

	if req.RequiresPrivilegedTenant && !isPrivileged {
		return false
	}

	if req.AllowedRoles != nil {
		if profile == nil {
			return false
		}
		return slices.Contains(req.AllowedRoles, profile.Role)
	}

	return true
}

func (s Session) check(req Requirement) bool {
	principal := s.Principal
	profile := s.Profile
	return HasPermission(req, &principal, &profile, s.Tenant.IsPrivileged)
}

func (s Session) CanManageUsers() bool {
	return s.check(Requirement{
		RequiresAuth:             true,
		RequiresPrivilegedTenant: true,
		AllowedRoles:             []string{schema.RoleAdmin},
	})
}

func (s Session) CanViewAdminDashboard() bool {
	return s.check(Requirement{
		RequiresAuth:             true,
		RequiresPrivilegedTenant: true,
		AllowedRoles:             []string{schema.RoleAdmin},
	})
}

func (s Session) CanViewStaffDashboard() bool {
	return s.check(Requirement{
		RequiresAuth:             true,
		RequiresPrivilegedTenant: true,
		AllowedRoles:             []string{schema.RoleAdmin, schema.RoleStaff},
	})
}

// CanEditBooking is the only capability with record-level granularity: staff
// may edit their own bookings, admins may edit any.
func (s Session) CanEditBooking(bookingUserId string) bool {
	if !s.check(Requirement{RequiresAuth: true}) {
		return false
	}

	if s.Profile.Role == schema.RoleAdmin {
		return true
	}

	return bookingUserId == s.Principal.Id
}

func (s Session) CanDeleteBooking() bool {
	return s.check(Requirement{
		RequiresAuth: true,
		AllowedRoles: []string{schema.RoleAdmin},
	})
}

func (s Session) CanViewAuditLogs() bool {
	return s.check(Requirement{
		RequiresAuth: true,
		AllowedRoles: []string{schema.RoleAdmin},
	})
}

// RoleOnly gates an endpoint to the given roles. Must be mounted after
// SessionMiddleware. Denials are deliberately uninformative.
func RoleOnly(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			session, err := SessionFromContext(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			if !slices.Contains(roles, session.Profile.Role) {
				http.Error(w, accessDeniedMsg, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(hfn)
	}
}

func AdminOnly() func(http.Handler) http.Handler {
	return RoleOnly(schema.RoleAdmin)
}

func PrivilegedTenantOnly() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			session, err := SessionFromContext(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			if !session.Tenant.IsPrivileged {
				http.Error(w, accessDeniedMsg, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(hfn)
	}
}
