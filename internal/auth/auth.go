package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAuthDisabled       = errors.New("authentication is disabled")
	ErrInvalidToken       = errors.New("invalid token")
	ErrExpiredToken       = errors.New("token has expired")
)

// Config holds the operator login settings. A plaintext Password is hashed
// on startup; a value that already looks like a bcrypt hash is used as-is.
type Config struct {
	Enabled  bool
	Username string
	Password string
	// JWTSecret signs issued tokens; empty generates a random secret,
	// which invalidates tokens across restarts.
	JWTSecret string
	TokenTTL  time.Duration
}

// Claims is the JWT payload for an authenticated operator.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Authenticator issues and validates operator tokens.
type Authenticator struct {
	enabled      bool
	username     string
	passwordHash []byte
	secret       []byte
	ttl          time.Duration
}

// New creates an authenticator from cfg.
func New(cfg Config) *Authenticator {
	if cfg.Username == "" {
		cfg.Username = "admin"
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}

	var hash []byte
	if cfg.Enabled && cfg.Password != "" {
		if len(cfg.Password) == 60 && cfg.Password[0] == '$' {
			hash = []byte(cfg.Password)
		} else if h, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost); err == nil {
			hash = h
		}
	}

	secret := []byte(cfg.JWTSecret)
	if len(secret) == 0 {
		raw := make([]byte, 32)
		rand.Read(raw)
		secret = []byte(hex.EncodeToString(raw))
	}

	return &Authenticator{
		enabled:      cfg.Enabled,
		username:     cfg.Username,
		passwordHash: hash,
		secret:       secret,
		ttl:          cfg.TokenTTL,
	}
}

// Enabled reports whether logins are required.
func (a *Authenticator) Enabled() bool {
	return a.enabled
}

// Login validates credentials and returns a signed token with its expiry.
func (a *Authenticator) Login(username, password string) (string, time.Time, error) {
	if !a.enabled {
		return "", time.Time{}, ErrAuthDisabled
	}
	if username != a.username {
		return "", time.Time{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
		return "", time.Time{}, ErrInvalidCredentials
	}

	expiresAt := time.Now().Add(a.ttl)
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "vigil",
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Validate checks a token and returns its claims.
func (a *Authenticator) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return a.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
