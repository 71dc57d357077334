package activation

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// SessionClaims is the JWT payload for a logged in session.
type SessionClaims struct {
	jwt.RegisteredClaims
	UID      string `json:"uid,omitempty"`
	Username string `json:"username,omitempty"`
}

// Auther issues and parses session tokens. It is the authentication
// hook the activation flow triggers after a successful activation.
type Auther struct {
	provider        IdentityProvider
	signingKey      []byte
	tokenExpiration int
	issuer          string
	audience        []string
	logger          Logger
}

var _ Authenticator = (*Auther)(nil)

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(provider IdentityProvider, opts Config) *Auther {
	return &Auther{
		provider:        provider,
		signingKey:      []byte(opts.GetSigningKey()),
		tokenExpiration: opts.GetTokenExpiration(),
		issuer:          opts.GetIssuer(),
		audience:        opts.GetAudience(),
		logger:          defLogger{},
	}
}

// WithLogger overrides the logger used by the authenticator.
func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Login verifies the credentials and returns a signed session token.
func (s *Auther) Login(ctx context.Context, identifier, password string) (string, error) {
	identity, err := s.provider.VerifyIdentity(ctx, identifier, password)
	if err != nil {
		s.logger.Error("Login verify identity error: %v", err)
		return "", err
	}

	if identity == nil {
		return "", ErrIdentityNotFound
	}

	now := time.Now()
	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   identity.ID(),
			Audience:  s.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(s.tokenExpiration) * time.Hour)),
		},
		UID:      identity.ID(),
		Username: identity.Username(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign session token")
	}

	return signed, nil
}

// SessionFromToken parses a signed session token back into a Session.
func (s *Auther) SessionFromToken(tokenString string) (Session, error) {
	parserOptions := make([]jwt.ParserOption, 0, 2)
	if s.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(s.issuer))
	}
	if len(s.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(s.audience...))
	}

	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			s.logger.Error("unexpected signing method: %v", t.Header["alg"])
			return nil, goerrors.New("unexpected signing method", goerrors.CategoryAuth)
		}
		return s.signingKey, nil
	}, parserOptions...)

	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "unable to decode session")
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, goerrors.New("unable to map session claims", goerrors.CategoryAuth)
	}

	return sessionFromClaims(claims), nil
}
