package auth

import (
	"fmt"
	"log/slog"
	"quiltplatform/quilt/schema"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// BasicIdentityProvider stores bcrypt credentials on the profile row and
// issues platform jwts directly.
type BasicIdentityProvider struct {
	jwtManager *JwtManager
	db         *gorm.DB
}

func NewBasicIdentityProvider(db *gorm.DB, jwtManager *JwtManager) IdentityProvider {
	return &BasicIdentityProvider{
		jwtManager: jwtManager,
		db:         db,
	}
}

func (auth *BasicIdentityProvider) AuthMiddleware() chi.Middlewares {
	return chi.Middlewares{auth.jwtManager.Verifier(), auth.jwtManager.Authenticator()}
}

func (auth *BasicIdentityProvider) AllowDirectSignup() bool {
	return true
}

func (auth *BasicIdentityProvider) LoginWithEmail(email, password string) (LoginResult, error) {
	var user schema.User
	result := auth.db.Find(&user, "email = ?", email)
	if result.Error != nil {
		return LoginResult{}, schema.NewDbError("locating user for email", result.Error)
	}

	// All credential failures collapse into the same error so that login
	// responses cannot be used to enumerate accounts.
	if result.RowsAffected != 1 {
		return LoginResult{}, ErrInvalidCredentials
	}

	err := bcrypt.CompareHashAndPassword(user.Password, []byte(password))
	if err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	if user.Status != schema.StatusActive {
		slog.Info("rejecting login for inactive user", "user_id", user.Id)
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := auth.jwtManager.CreateUserJwt(user.Id, user.Email)
	if err != nil {
		return LoginResult{}, fmt.Errorf("login failed: %w", err)
	}

	return LoginResult{UserId: user.Id, AccessToken: token}, nil
}

func (auth *BasicIdentityProvider) LoginWithToken(accessToken string) (LoginResult, error) {
	return LoginResult{}, fmt.Errorf("login with token is not supported for this identity provider")
}

func (auth *BasicIdentityProvider) CreateUser(name, email, password, role string) (string, error) {
	if err := schema.CheckValidRole(role); err != nil {
		return "", err
	}

	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(password), 10)
	if err != nil {
		return "", fmt.Errorf("error encrypting password: %w", err)
	}

	newUser := schema.User{
		Id:       uuid.New().String(),
		Name:     name,
		Email:    email,
		Password: hashedPwd,
		Role:     role,
		Status:   schema.StatusActive,
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

func (auth *BasicIdentityProvider) DeleteUser(userId string) error {
	return nil
}
