package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"quiltplatform/quilt/schema"
	"quiltplatform/quilt/tenant"

	"gorm.io/gorm"
)

// Session bundles the authenticated principal with its profile row and the
// tenant membership derived from the two. It is rebuilt on every request;
// nothing about it is cached between requests.
type Session struct {
	Principal Principal
	Profile   schema.User
	Tenant    tenant.Info
}

type sessionCtxKey struct{}

const accessDeniedMsg = "access denied"

// SessionMiddleware resolves the request principal into a full session.
// Must be mounted after the identity provider's auth middleware. A verified
// token whose principal has no profile row is rejected outright: no profile
// means unauthorized, never "no role".
func SessionMiddleware(db *gorm.DB, tenantCfg tenant.Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			principal, err := PrincipalFromContext(r)
			if err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}

			profile, err := schema.GetUser(principal.Id, db)
			if err != nil {
				if errors.Is(err, schema.ErrNotFound) {
					http.Error(w, accessDeniedMsg, http.StatusUnauthorized)
				} else {
					http.Error(w, err.Error(), http.StatusInternalServerError)
				}
				return
			}

			if profile.Status != schema.StatusActive {
				http.Error(w, accessDeniedMsg, http.StatusUnauthorized)
				return
			}

			session := Session{
				Principal: principal,
				Profile:   profile,
				Tenant:    tenant.Resolve(tenantCfg, principal.Email, profile.Company),
			}

			ctx := context.WithValue(r.Context(), sessionCtxKey{}, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		}
		return http.HandlerFunc(hfn)
	}
}

func SessionFromContext(r *http.Request) (Session, error) {
	sessionUntyped := r.Context().Value(sessionCtxKey{})
	if sessionUntyped == nil {
		return Session{}, fmt.Errorf("session not found in request context")
	}
	session, ok := sessionUntyped.(Session)
	if !ok {
		return Session{}, fmt.Errorf("invalid value for session field")
	}
	return session, nil
}
