package auth

import (
	"errors"

	"github.com/go-chi/chi/v5"
)

// Principal is the authenticated identity produced by the identity provider
// at sign-in. It carries no application-level role; that lives on the profile
// row keyed by the same id.
type Principal struct {
	Id    string
	Email string
}

type LoginResult struct {
	UserId      string
	AccessToken string
}

type IdentityProvider interface {
	AuthMiddleware() chi.Middlewares

	AllowDirectSignup() bool

	LoginWithEmail(email, password string) (LoginResult, error)

	LoginWithToken(accessToken string) (LoginResult, error)

	CreateUser(name, email, password, role string) (string, error)

	DeleteUser(userId string) error
}

var ErrUserEmailAlreadyExists = errors.New("email is already in use")

// ErrInvalidCredentials is the only error surfaced for failed sign-in
// attempts, regardless of the underlying cause, so that responses do not
// reveal whether an account exists.
var ErrInvalidCredentials = errors.New("invalid email or password")
