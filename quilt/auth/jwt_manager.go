package auth

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/jwtauth/v5"
)

type JwtManager struct {
	auth *jwtauth.JWTAuth
}

func NewJwtManager(secret []byte) *JwtManager {
	if len(secret) == 0 {
		secret = randomSecret()
	}
	return &JwtManager{auth: jwtauth.New("HS256", secret, nil)}
}

func (m *JwtManager) Verifier() func(http.Handler) http.Handler {
	return jwtauth.Verifier(m.auth)
}

func (m *JwtManager) Authenticator() func(http.Handler) http.Handler {
	return jwtauth.Authenticator(m.auth)
}

const (
	userIdKey = "user_id"
	emailKey  = "email"
)

func (m *JwtManager) CreateUserJwt(userId, email string) (string, error) {
	claims := map[string]interface{}{
		userIdKey: userId,
		emailKey:  email,
		"exp":     time.Now().Add(15 * time.Minute),
	}
	_, token, err := m.auth.Encode(claims)
	if err != nil {
		slog.Error("error generating jwt", "error", err)
		return "", fmt.Errorf("error generating access token: %w", err)
	}
	return token, nil
}

func ValueFromContext(r *http.Request, key string) (string, error) {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil {
		return "", fmt.Errorf("error retrieving auth claims: %w", err)
	}

	valueUncasted, ok := claims[key]
	if !ok {
		return "", fmt.Errorf("invalid token: unable to locate key %v in claims", key)
	}

	value, ok := valueUncasted.(string)
	if !ok {
		return "", fmt.Errorf("invalid token: value for key %v has invalid type", key)
	}

	return value, nil
}

// PrincipalFromContext returns the authenticated identity carried by the
// request token. It does not consult the profile table.
func PrincipalFromContext(r *http.Request) (Principal, error) {
	userId, err := ValueFromContext(r, userIdKey)
	if err != nil {
		return Principal{}, err
	}

	email, err := ValueFromContext(r, emailKey)
	if err != nil {
		return Principal{}, err
	}

	return Principal{Id: userId, Email: email}, nil
}

func randomSecret() []byte {
	// Only used for jwt signing, so the sole consequence of a restart is that
	// tokens issued before the restart are invalidated.
	b := make([]byte, 16)

	_, err := rand.Read(b)
	if err != nil {
		panic(err)
	}

	return b
}
