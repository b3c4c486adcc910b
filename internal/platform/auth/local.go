package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/golang-jwt/jwt/v4"
)

const localIssuer = "roma-map-revamp"

// ErrInvalidCredentials is returned by Login for an unknown email or wrong password.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// Credentials is the single back-office account used when Firebase Authentication is off.
type Credentials struct {
	Email    string
	Password string
	Name     string
}

// Session is the result of a successful login.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Identity  Identity  `json:"identity"`
}

// LocalIssuer issues and verifies HS256 tokens for the configured admin account. Verified tokens
// are returned as Firebase tokens so the same middleware serves both modes.
type LocalIssuer struct {
	account Credentials
	secret  []byte
	ttl     time.Duration
	now     func() time.Time
}

// LocalOption customises LocalIssuer.
type LocalOption func(*LocalIssuer)

// WithLocalClock injects a custom clock.
func WithLocalClock(clock func() time.Time) LocalOption {
	return func(l *LocalIssuer) {
		if clock != nil {
			l.now = clock
		}
	}
}

// NewLocalIssuer constructs a LocalIssuer. The secret must be at least 16 bytes.
func NewLocalIssuer(account Credentials, secret string, ttl time.Duration, opts ...LocalOption) (*LocalIssuer, error) {
	account.Email = strings.ToLower(strings.TrimSpace(account.Email))
	if account.Email == "" || account.Password == "" {
		return nil, errors.New("auth: admin email and password are required")
	}
	if len(secret) < 16 {
		return nil, errors.New("auth: token secret must be at least 16 bytes")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: token ttl must be positive")
	}
	l := &LocalIssuer{account: account, secret: []byte(secret), ttl: ttl, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l, nil
}

// Login checks email and password and issues a signed token.
func (l *LocalIssuer) Login(email, password string) (Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	emailOK := subtle.ConstantTimeCompare([]byte(email), []byte(l.account.Email)) == 1
	passwordOK := subtle.ConstantTimeCompare([]byte(password), []byte(l.account.Password)) == 1
	if !emailOK || !passwordOK {
		return Session{}, ErrInvalidCredentials
	}

	now := l.now()
	expires := now.Add(l.ttl)
	claims := jwt.MapClaims{
		"iss":   localIssuer,
		"sub":   l.account.Email,
		"iat":   now.Unix(),
		"exp":   expires.Unix(),
		"email": l.account.Email,
		"name":  l.account.Name,
		"role":  RoleAdmin,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(l.secret)
	if err != nil {
		return Session{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return Session{
		Token:     signed,
		ExpiresAt: expires.UTC(),
		Identity: Identity{
			UID:   l.account.Email,
			Email: l.account.Email,
			Name:  l.account.Name,
			Roles: []string{RoleAdmin},
		},
	}, nil
}

// VerifyIDToken implements TokenVerifier for locally issued tokens.
func (l *LocalIssuer) VerifyIDToken(_ context.Context, idToken string) (*firebaseauth.Token, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	claims := jwt.MapClaims{}
	if _, err := parser.ParseWithClaims(idToken, claims, func(*jwt.Token) (any, error) {
		return l.secret, nil
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	now := l.now().Unix()
	if !claims.VerifyIssuer(localIssuer, true) {
		return nil, fmt.Errorf("%w: unexpected issuer", ErrTokenInvalid)
	}
	if !claims.VerifyExpiresAt(now, true) {
		return nil, ErrTokenExpired
	}

	subject, _ := claims["sub"].(string)
	exp, _ := claims["exp"].(float64)
	iat, _ := claims["iat"].(float64)
	return &firebaseauth.Token{
		Issuer:   localIssuer,
		Subject:  subject,
		UID:      subject,
		IssuedAt: int64(iat),
		Expires:  int64(exp),
		Claims:   map[string]interface{}(claims),
	}, nil
}
