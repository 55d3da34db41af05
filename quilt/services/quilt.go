package services

import (
	"errors"
	"fmt"
	"log"
	"quiltplatform/quilt/auth"
	"quiltplatform/quilt/config"
	"quiltplatform/quilt/feed"
	"quiltplatform/quilt/gateway"
	"quiltplatform/quilt/obs"
	"quiltplatform/quilt/schema"
	"quiltplatform/quilt/tenant"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gorm.io/gorm"
)

// Quilt is the top level service container. One instance owns the identity
// provider, the change feed hub, and every mounted service.
type Quilt struct {
	userAuth   auth.IdentityProvider
	jwtManager *auth.JwtManager
	hub        *feed.Hub

	user     UserService
	template TemplateService
	booking  BookingService
	document DocumentService
	audit    AuditService
	gateway  *gateway.Handler
}

func NewQuilt(db *gorm.DB, cfg config.Config) (*Quilt, error) {
	jwtManager := auth.NewJwtManager([]byte(cfg.JwtSecret))

	var userAuth auth.IdentityProvider
	switch cfg.IdentityProvider {
	case "", "basic":
		userAuth = auth.NewBasicIdentityProvider(db, jwtManager)
	case "keycloak":
		userAuth = auth.NewKeycloakIdentityProvider(cfg.Keycloak, db, jwtManager)
	default:
		return nil, fmt.Errorf("unknown identity provider '%v'", cfg.IdentityProvider)
	}

	hub := feed.NewHub()
	tenantCfg := cfg.Tenant

	return &Quilt{
		userAuth:   userAuth,
		jwtManager: jwtManager,
		hub:        hub,
		user:       UserService{db: db, userAuth: userAuth, tenantCfg: tenantCfg},
		template:   TemplateService{db: db, userAuth: userAuth, tenantCfg: tenantCfg, hub: hub},
		booking:    BookingService{db: db, userAuth: userAuth, tenantCfg: tenantCfg, hub: hub},
		document:   DocumentService{db: db, userAuth: userAuth, tenantCfg: tenantCfg},
		audit:      AuditService{db: db, userAuth: userAuth, tenantCfg: tenantCfg},
		gateway:    gateway.NewHandler(db, tenantCfg),
	}, nil
}

func (q *Quilt) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(obs.Instrument)

	r.Mount("/api/user", q.user.Routes())
	r.Mount("/api/templates", q.template.Routes())
	r.Mount("/api/bookings", q.booking.Routes())
	r.Mount("/api/documents", q.document.Routes())
	r.Mount("/api/audit", q.audit.Routes())

	// The gateway must see claims when a token is present but must not
	// reject requests without one, so only the verifier runs here.
	r.Group(func(r chi.Router) {
		r.Use(q.jwtManager.Verifier())
		r.Get("/", q.gateway.ServeHTTP)
	})

	return r
}

// InitAdmin ensures the bootstrap admin account exists. An already existing
// account is left untouched so restarts are idempotent.
func (q *Quilt) InitAdmin(cfg config.AdminBootstrap, tenantCfg tenant.Config) {
	if cfg.Email == "" {
		return
	}

	_, err := q.user.userAuth.CreateUser(cfg.Name, cfg.Email, cfg.Password, schema.RoleAdmin)
	if err != nil {
		if errors.Is(err, auth.ErrUserEmailAlreadyExists) {
			return
		}
		log.Panicf("error initializing admin at startup: %v", err)
	}

	// The bootstrap admin must resolve into the privileged tenant, otherwise
	// every admin surface would be unreachable.
	info := tenant.Resolve(tenantCfg, cfg.Email, nil)
	if !info.IsPrivileged {
		company := tenantCfg.Company
		result := q.user.db.Model(&schema.User{}).Where("email = ?", cfg.Email).Update("company", company)
		if result.Error != nil {
			log.Panicf("error assigning company to bootstrap admin: %v", result.Error)
		}
	}
}
