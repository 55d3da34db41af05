package gateway

import (
	"errors"
	"log/slog"
	"net/http"
	"quiltplatform/quilt/auth"
	"quiltplatform/quilt/schema"
	"quiltplatform/quilt/tenant"

	"gorm.io/gorm"
)

// Target is the outcome of root-route resolution. Exactly one target is
// produced for any auth state, and resolution has no side effect beyond the
// single redirect the caller issues.
type Target int

const (
	TargetLoading Target = iota
	TargetUnauthenticated
	TargetNoProfile
	TargetWrongTenant
	TargetAdmin
	TargetStaff
	TargetUnknownRole
)

func (t Target) String() string {
	switch t {
	case TargetLoading:
		return "LOADING"
	case TargetUnauthenticated:
		return "UNAUTHENTICATED"
	case TargetNoProfile:
		return "NO_PROFILE"
	case TargetWrongTenant:
		return "WRONG_TENANT"
	case TargetAdmin:
		return "ADMIN"
	case TargetStaff:
		return "STAFF"
	case TargetUnknownRole:
		return "UNKNOWN_ROLE"
	}
	return "UNKNOWN"
}

// Path returns the route the target redirects to. The loading target does
// not navigate and has no path.
func (t Target) Path() string {
	switch t {
	case TargetUnauthenticated:
		return "/auth"
	case TargetAdmin:
		return "/mky-admin"
	case TargetStaff:
		return "/mky-staff"
	case TargetNoProfile, TargetWrongTenant, TargetUnknownRole:
		return "/access-denied"
	}
	return ""
}

// State is the full input to gateway resolution. Resolve must be re-run
// whenever any of these change.
type State struct {
	Loading            bool
	Principal          *auth.Principal
	Profile            *schema.User
	IsPrivilegedTenant bool
}

// Resolve is a pure function of the auth state. While authentication is
// still loading no navigation decision is made.
func Resolve(s State) Target {
	if s.Loading {
		return TargetLoading
	}

	if s.Principal == nil {
		return TargetUnauthenticated
	}

	if s.Profile == nil {
		return TargetNoProfile
	}

	if !s.IsPrivilegedTenant {
		return TargetWrongTenant
	}

	switch s.Profile.Role {
	case schema.RoleAdmin:
		return TargetAdmin
	case schema.RoleStaff:
		return TargetStaff
	}

	return TargetUnknownRole
}

// Handler performs redirect resolution for the root route. The request may
// or may not carry a token; a verifier middleware (without an authenticator)
// must run before it so that claims are available when present.
type Handler struct {
	db        *gorm.DB
	tenantCfg tenant.Config
}

func NewHandler(db *gorm.DB, tenantCfg tenant.Config) *Handler {
	return &Handler{db: db, tenantCfg: tenantCfg}
}

func (h *Handler) resolveRequest(r *http.Request) (Target, error) {
	state := State{}

	principal, err := auth.PrincipalFromContext(r)
	if err != nil {
		return Resolve(state), nil
	}
	state.Principal = &principal

	profile, err := schema.GetUser(principal.Id, h.db)
	if err != nil {
		if errors.Is(err, schema.ErrNotFound) {
			return Resolve(state), nil
		}
		return TargetLoading, err
	}
	state.Profile = &profile
	state.IsPrivilegedTenant = tenant.Resolve(h.tenantCfg, principal.Email, profile.Company).IsPrivileged

	return Resolve(state), nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	target, err := h.resolveRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	slog.Info("gateway resolved", "target", target.String())
	http.Redirect(w, r, target.Path(), http.StatusFound)
}
