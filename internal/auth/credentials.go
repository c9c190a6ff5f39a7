// Package auth hashes passwords and issues and resolves bearer tokens.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/crucial707/radar/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidToken covers malformed, expired and badly signed tokens.
var ErrInvalidToken = errors.New("invalid token")

// Identity is what a valid token asserts. It is resolved to a live user by the caller.
type Identity struct {
	UserID   int
	Username string
}

type claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Credentials is stateless apart from its signing key and is safe for concurrent use.
type Credentials struct {
	secret []byte
	issuer string
	ttl    time.Duration
	cost   int
	now    func() time.Time
}

type Option func(*Credentials)

// WithBcryptCost overrides bcrypt.DefaultCost. Out-of-range values are ignored.
func WithBcryptCost(cost int) Option {
	return func(c *Credentials) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			c.cost = cost
		}
	}
}

// WithIssuer sets the iss claim written and required on tokens.
func WithIssuer(iss string) Option {
	return func(c *Credentials) { c.issuer = iss }
}

// WithClock overrides time.Now for issuing and validating tokens.
func WithClock(now func() time.Time) Option {
	return func(c *Credentials) { c.now = now }
}

func New(secret []byte, ttl time.Duration, opts ...Option) *Credentials {
	c := &Credentials{
		secret: secret,
		issuer: "radar-api",
		ttl:    ttl,
		cost:   bcrypt.DefaultCost,
		now:    time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Credentials) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), c.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (c *Credentials) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// IssueToken signs an HS256 token whose subject is the user's immutable id.
func (c *Credentials) IssueToken(u *models.User) (string, error) {
	now := c.now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Username: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(u.ID),
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	})
	signed, err := tok.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ResolveToken checks signature, algorithm, issuer and expiry.
func (c *Credentials) ResolveToken(token string) (Identity, error) {
	var cl claims
	_, err := jwt.ParseWithClaims(token, &cl,
		func(*jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id, err := strconv.Atoi(cl.Subject)
	if err != nil || id <= 0 {
		return Identity{}, fmt.Errorf("%w: bad subject %q", ErrInvalidToken, cl.Subject)
	}
	return Identity{UserID: id, Username: cl.Username}, nil
}
