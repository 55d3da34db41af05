package auth

import (
	"context"
	"fmt"
	"log/slog"
	"quiltplatform/quilt/schema"
	"time"

	"github.com/Nerzal/gocloak/v13"
	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

type KeycloakArgs struct {
	ServerUrl     string `yaml:"server_url"`
	Realm         string `yaml:"realm"`
	ClientId      string `yaml:"client_id"`
	ClientSecret  string `yaml:"client_secret"`
	AdminUsername string `yaml:"admin_username"`
	AdminPassword string `yaml:"admin_password"`
}

// KeycloakIdentityProvider delegates credential checks to a Keycloak realm
// and bridges successful logins to platform jwts so that the rest of the
// middleware stack is identical for both providers.
type KeycloakIdentityProvider struct {
	client     *gocloak.GoCloak
	args       KeycloakArgs
	jwtManager *JwtManager
	db         *gorm.DB
}

func NewKeycloakIdentityProvider(args KeycloakArgs, db *gorm.DB, jwtManager *JwtManager) IdentityProvider {
	return &KeycloakIdentityProvider{
		client:     gocloak.NewClient(args.ServerUrl),
		args:       args,
		jwtManager: jwtManager,
		db:         db,
	}
}

func (auth *KeycloakIdentityProvider) AuthMiddleware() chi.Middlewares {
	return chi.Middlewares{auth.jwtManager.Verifier(), auth.jwtManager.Authenticator()}
}

func (auth *KeycloakIdentityProvider) AllowDirectSignup() bool {
	return false
}

func (auth *KeycloakIdentityProvider) issuePlatformJwt(email string) (LoginResult, error) {
	user, err := schema.GetUserByEmail(email, auth.db)
	if err != nil {
		slog.Error("keycloak login succeeded but no profile row exists", "email", email)
		return LoginResult{}, ErrInvalidCredentials
	}

	if user.Status != schema.StatusActive {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := auth.jwtManager.CreateUserJwt(user.Id, user.Email)
	if err != nil {
		return LoginResult{}, fmt.Errorf("login failed: %w", err)
	}

	return LoginResult{UserId: user.Id, AccessToken: token}, nil
}

func (auth *KeycloakIdentityProvider) LoginWithEmail(email, password string) (LoginResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := auth.client.Login(ctx, auth.args.ClientId, auth.args.ClientSecret, auth.args.Realm, email, password)
	if err != nil {
		slog.Info("keycloak login rejected", "error", err)
		return LoginResult{}, ErrInvalidCredentials
	}

	return auth.issuePlatformJwt(email)
}

// LoginWithToken accepts an access token obtained from Keycloak directly,
// for example at the end of an OAuth redirect flow.
func (auth *KeycloakIdentityProvider) LoginWithToken(accessToken string) (LoginResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	introspection, err := auth.client.RetrospectToken(ctx, accessToken, auth.args.ClientId, auth.args.ClientSecret, auth.args.Realm)
	if err != nil {
		return LoginResult{}, fmt.Errorf("error validating access token: %w", err)
	}
	if introspection.Active == nil || !*introspection.Active {
		return LoginResult{}, ErrInvalidCredentials
	}

	info, err := auth.client.GetUserInfo(ctx, accessToken, auth.args.Realm)
	if err != nil {
		return LoginResult{}, fmt.Errorf("error retrieving user info for token: %w", err)
	}
	if info.Email == nil {
		return LoginResult{}, fmt.Errorf("access token has no email claim")
	}

	return auth.issuePlatformJwt(*info.Email)
}

func (auth *KeycloakIdentityProvider) loginAdmin(ctx context.Context) (*gocloak.JWT, error) {
	token, err := auth.client.LoginAdmin(ctx, auth.args.AdminUsername, auth.args.AdminPassword, "master")
	if err != nil {
		return nil, fmt.Errorf("error authenticating with keycloak admin api: %w", err)
	}
	return token, nil
}

func (auth *KeycloakIdentityProvider) CreateUser(name, email, password, role string) (string, error) {
	if err := schema.CheckValidRole(role); err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	token, err := auth.loginAdmin(ctx)
	if err != nil {
		return "", err
	}

	keycloakId, err := auth.client.CreateUser(ctx, token.AccessToken, auth.args.Realm, gocloak.User{
		Username:      gocloak.StringP(email),
		Email:         gocloak.StringP(email),
		FirstName:     gocloak.StringP(name),
		Enabled:       gocloak.BoolP(true),
		EmailVerified: gocloak.BoolP(true),
	})
	if err != nil {
		return "", fmt.Errorf("error creating keycloak user: %w", err)
	}

	err = auth.client.SetPassword(ctx, token.AccessToken, keycloakId, auth.args.Realm, password, false)
	if err != nil {
		return "", fmt.Errorf("error setting keycloak user password: %w", err)
	}

	newUser := schema.User{
		Id:     keycloakId,
		Name:   name,
		Email:  email,
		Role:   role,
		Status: schema.StatusActive,
	}

	err = auth.db.Transaction(func(txn *gorm.DB) error {
		var existingUser schema.User
		result := txn.Find(&existingUser, "email = ?", email)
		if result.Error != nil {
			return schema.NewDbError("checking for existing email", result.Error)
		}
		if result.RowsAffected != 0 {
			return ErrUserEmailAlreadyExists
		}

		result = txn.Create(&newUser)
		if result.Error != nil {
			return schema.NewDbError("creating new user entry", result.Error)
		}

		return nil
	})

	if err != nil {
		return "", fmt.Errorf("error creating new user: %w", err)
	}

	return newUser.Id, nil
}

func (auth *KeycloakIdentityProvider) DeleteUser(userId string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	token, err := auth.loginAdmin(ctx)
	if err != nil {
		return err
	}

	err = auth.client.DeleteUser(ctx, token.AccessToken, auth.args.Realm, userId)
	if err != nil {
		return fmt.Errorf("error deleting keycloak user: %w", err)
	}

	return nil
}
