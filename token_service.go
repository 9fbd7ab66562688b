package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// DefaultTokenExpiration is the absolute lifetime of a privileged token.
const DefaultTokenExpiration = 8 * time.Hour

// TokenService issues and validates privileged session tokens
type TokenService interface {
	TokenValidator
	Issue(actor *Actor) (string, time.Time, error)
}

// TokenServiceImpl implements the TokenService interface with HS256
type TokenServiceImpl struct {
	signingKey []byte
	expiration time.Duration
	issuer     string
	audience   jwt.ClaimStrings
	now        func() time.Time
	logger     Logger
}

// TokenServiceOption customizes the TokenServiceImpl
type TokenServiceOption func(*TokenServiceImpl)

// WithTokenClock injects the clock used to stamp and verify tokens.
func WithTokenClock(clock func() time.Time) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		if clock != nil {
			ts.now = clock
		}
	}
}

func WithTokenExpiration(d time.Duration) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		if d > 0 {
			ts.expiration = d
		}
	}
}

func WithTokenIssuer(issuer string) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		ts.issuer = issuer
	}
}

func WithTokenAudience(audience ...string) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		ts.audience = jwt.ClaimStrings(audience)
	}
}

func WithTokenLogger(logger Logger) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		if logger != nil {
			ts.logger = logger
		}
	}
}

// NewTokenService creates a new TokenService instance. An empty signing key
// is rejected so a misconfigured deployment never signs tokens.
func NewTokenService(signingKey []byte, opts ...TokenServiceOption) (*TokenServiceImpl, error) {
	if len(signingKey) == 0 {
		return nil, goerrors.New("token signing key is required", goerrors.CategoryInternal)
	}

	ts := &TokenServiceImpl{
		signingKey: signingKey,
		expiration: DefaultTokenExpiration,
		now:        time.Now,
		logger:     defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}
	return ts, nil
}

// NewTokenServiceFromConfig wires a token service from Config getters.
func NewTokenServiceFromConfig(cfg Config, opts ...TokenServiceOption) (*TokenServiceImpl, error) {
	base := []TokenServiceOption{
		WithTokenIssuer(cfg.GetIssuer()),
		WithTokenAudience(cfg.GetAudience()...),
	}
	if hours := cfg.GetTokenExpiration(); hours > 0 {
		base = append(base, WithTokenExpiration(time.Duration(hours)*time.Hour))
	}
	return NewTokenService([]byte(cfg.GetSigningKey()), append(base, opts...)...)
}

// Issue signs a token for actor. The jti carries the actor's session token.
func (ts *TokenServiceImpl) Issue(actor *Actor) (string, time.Time, error) {
	if actor == nil || actor.ID == uuid.Nil {
		return "", time.Time{}, goerrors.New("actor is required", goerrors.CategoryBadInput)
	}

	now := ts.now()
	expiresAt := now.Add(ts.expiration)
	claims := &JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        actor.SessionToken,
			Issuer:    ts.issuer,
			Subject:   actor.ID.String(),
			Audience:  ts.audience,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UID:        actor.ID.String(),
		Email:      actor.Email,
		ActorRole:  string(actor.Role),
		ActorKind:  string(actor.Kind),
		Privileged: true,
	}

	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", time.Time{}, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}

	return signed, expiresAt, nil
}

// Validate parses and validates a token string. Expiry yields ErrTokenExpired,
// every other failure yields ErrTokenInvalid.
func (ts *TokenServiceImpl) Validate(tokenString string) (*JWTClaims, error) {
	if tokenString == "" {
		return nil, ErrTokenInvalid
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(ts.now),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.audience[0]))
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("TokenService validate encountered unexpected signing method %v", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		ts.logger.Debug("TokenService validate rejected token: %v", err)
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if !claims.Privileged || !claims.Kind().IsValid() {
		return nil, ErrTokenInvalid
	}

	if _, err := claims.ActorID(); err != nil {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
