package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"slices"
	"time"

	"github.com/goevery/realtime/internal/frame"
	"github.com/goevery/realtime/internal/ierr"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingCredential   = errors.New("missing credential")
	ErrInvalidCredential   = errors.New("invalid credential")
	ErrExpiredCredential   = errors.New("expired credential")
	ErrIdentityUnavailable = errors.New("identity store unavailable")
)

// Claims accepts access tokens issued by the blog backend, which carry the
// user id in "user_id", as well as tokens that use the standard subject.
type Claims struct {
	jwt.RegisteredClaims
	UserId    frame.Id `json:"user_id,omitempty"`
	TokenType string   `json:"token_type,omitempty"`
	Username  string   `json:"username,omitempty"`
	FullName  string   `json:"full_name,omitempty"`
	Scope     []string `json:"scope,omitempty"`
}

// Authentication is the result of authenticating a producer over REST.
type Authentication struct {
	Subject string
	Scope   []string
	IsAdmin bool
}

func (a *Authentication) IsPublisher() bool {
	return a.IsAdmin || slices.Contains(a.Scope, "publish")
}

type contextKey string

const authenticationKey contextKey = "authentication"

func WithAuthentication(ctx context.Context, auth *Authentication) context.Context {
	return context.WithValue(ctx, authenticationKey, auth)
}

func AuthenticationFromContext(ctx context.Context) (*Authentication, bool) {
	auth, ok := ctx.Value(authenticationKey).(*Authentication)
	return auth, ok
}

type Option func(*Authenticator)

func WithAudience(audience string) Option {
	return func(a *Authenticator) {
		a.audience = audience
	}
}

// WithIdentityStore makes Resolve look up the user's profile, giving up after
// timeout.
func WithIdentityStore(store *BreakingStore, timeout time.Duration) Option {
	return func(a *Authenticator) {
		a.store = store
		a.lookupTimeout = timeout
	}
}

type Authenticator struct {
	secret        []byte
	apiKeys       []string
	audience      string
	store         *BreakingStore
	lookupTimeout time.Duration
	jwtParser     *jwt.Parser
}

func NewAuthenticator(secret string, apiKeys []string, opts ...Option) *Authenticator {
	a := &Authenticator{
		secret:        []byte(secret),
		apiKeys:       apiKeys,
		lookupTimeout: 2 * time.Second,
	}

	for _, opt := range opts {
		opt(a)
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(30 * time.Second),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if a.audience != "" {
		parserOptions = append(parserOptions, jwt.WithAudience(a.audience))
	}

	a.jwtParser = jwt.NewParser(parserOptions...)

	return a
}

func (a *Authenticator) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, errors.New("unexpected signing method")
	}
	return a.secret, nil
}

// Resolve authenticates the credential presented in a connection handshake.
// It runs once per connection, before the session exists.
func (a *Authenticator) Resolve(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ierr.New(ierr.ErrorCodeUnauthenticated, ErrMissingCredential)
	}

	claims := Claims{}

	_, err := a.jwtParser.ParseWithClaims(token, &claims, a.keyFunc)
	if errors.Is(err, jwt.ErrTokenExpired) {
		return nil, ierr.New(ierr.ErrorCodeUnauthenticated, ErrExpiredCredential)
	}
	if err != nil {
		return nil, ierr.New(ierr.ErrorCodeUnauthenticated, errors.Join(ErrInvalidCredential, err))
	}

	if claims.TokenType != "" && claims.TokenType != "access" {
		return nil, ierr.New(ierr.ErrorCodeUnauthenticated, errors.Join(ErrInvalidCredential, errors.New("not an access token")))
	}

	userId := claims.UserId.String()
	if userId == "" {
		userId = claims.Subject
	}
	if userId == "" {
		return nil, ierr.New(ierr.ErrorCodeUnauthenticated, errors.Join(ErrInvalidCredential, errors.New("missing user id claim")))
	}

	identity := &Identity{
		UserId:   userId,
		Username: claims.Username,
		FullName: claims.FullName,
	}

	if a.store == nil {
		return identity, nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, a.lookupTimeout)
	defer cancel()

	profile, err := a.store.Lookup(lookupCtx, userId)
	if errors.Is(err, ErrUnknownUser) {
		return nil, ierr.New(ierr.ErrorCodeUnauthenticated, errors.Join(ErrInvalidCredential, err))
	}
	if err != nil {
		return nil, ierr.New(ierr.ErrorCodeUnavailable, errors.Join(ErrIdentityUnavailable, err))
	}

	identity.apply(profile)

	return identity, nil
}

func (a *Authenticator) AuthenticateAPIKey(apiKey string) (*Authentication, error) {
	if apiKey == "" {
		return nil, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("missing api key"))
	}

	for _, key := range a.apiKeys {
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
			return &Authentication{
				Subject: "api",
				Scope:   []string{"publish"},
				IsAdmin: true,
			}, nil
		}
	}

	return nil, ierr.New(ierr.ErrorCodeUnauthenticated, errors.New("invalid api key"))
}
