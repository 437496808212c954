package auth

import (
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/nerrad567/annunciator-core/internal/infrastructure/config"
)

// Session is the result of a successful login.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Username  string    `json:"username"`
}

// Authenticator checks admin credentials and the tokens it issued.
//
// Thread Safety:
//   - Immutable after construction; safe for concurrent use.
type Authenticator struct {
	username     string
	passwordHash string
	secret       string
	ttl          time.Duration
}

// NewAuthenticator builds an Authenticator from the security section.
//
// Parameters:
//   - cfg: security settings; Admin.Username, Admin.PasswordHash and
//     JWT.Secret must all be set
//
// Returns:
//   - *Authenticator: ready to serve logins
//   - error: ErrNotConfigured or ErrInvalidHash when the config is unusable
func NewAuthenticator(cfg config.SecurityConfig) (*Authenticator, error) {
	if cfg.Admin.Username == "" || cfg.Admin.PasswordHash == "" || cfg.JWT.Secret == "" {
		return nil, ErrNotConfigured
	}
	if err := ValidateHash(cfg.Admin.PasswordHash); err != nil {
		return nil, fmt.Errorf("security.admin.password_hash: %w", err)
	}
	return &Authenticator{
		username:     cfg.Admin.Username,
		passwordHash: cfg.Admin.PasswordHash,
		secret:       cfg.JWT.Secret,
		ttl:          cfg.JWT.GetAccessTokenTTL(),
	}, nil
}

// Login verifies username and password and issues a token.
// The password hash is always evaluated so a wrong username costs the same
// time as a wrong password.
func (a *Authenticator) Login(username, password string) (*Session, error) {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1

	passOK, err := VerifyPassword(password, a.passwordHash)
	if err != nil {
		return nil, err
	}
	if !userOK || !passOK {
		return nil, ErrInvalidCredentials
	}

	token, expires, err := IssueToken(a.username, RoleAdmin, a.secret, a.ttl)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: expires, Username: a.username}, nil
}

// Verify parses a bearer token issued by Login.
func (a *Authenticator) Verify(token string) (*Claims, error) {
	return ParseToken(token, a.secret)
}
