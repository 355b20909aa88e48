// Package auth answers "who is signed in on this device" for the sync engine
// and supplies the access token the remote store expects.
package auth

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/catchkeeper/internal/client/storage"
	"github.com/dmitrijs2005/catchkeeper/internal/common"
	"github.com/dmitrijs2005/catchkeeper/internal/logging"
	"github.com/dmitrijs2005/catchkeeper/internal/timex"
	"github.com/golang-jwt/jwt/v5"
)

// Identity reports the signed-in user, if any. The user ID partitions the
// remote store.
type Identity interface {
	CurrentUser(ctx context.Context) (userID string, ok bool)
}

// TokenSource supplies the bearer token for remote calls.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// Static is a fixed identity; an empty UserID means signed out.
type Static struct {
	UserID string
}

func (s Static) CurrentUser(context.Context) (string, bool) {
	return s.UserID, s.UserID != ""
}

// TokenKey is the durable key holding the access token.
const TokenKey = "auth.access_token"

// claims mirrors the server's token claims.
type claims struct {
	jwt.RegisteredClaims
	UserID string
}

// TokenIdentity derives the identity from the stored access token. The
// signature is not checked here; the remote store verifies it on every call.
type TokenIdentity struct {
	mu     sync.Mutex
	kv     storage.KV
	clock  timex.Clock
	logger logging.Logger
}

func NewTokenIdentity(kv storage.KV, clock timex.Clock, logger logging.Logger) *TokenIdentity {
	return &TokenIdentity{kv: kv, clock: clock, logger: logger.With("module", "auth")}
}

func parse(token string) (*claims, error) {
	c := &claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, c); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if c.UserID == "" {
		return nil, fmt.Errorf("%w: no user id", common.ErrInvalidToken)
	}
	return c, nil
}

// SignIn stores token after checking it carries a user ID.
func (i *TokenIdentity) SignIn(ctx context.Context, token string) (string, error) {
	c, err := parse(token)
	if err != nil {
		return "", err
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.kv.Set(ctx, TokenKey, token); err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}
	return c.UserID, nil
}

func (i *TokenIdentity) SignOut(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.kv.Remove(ctx, TokenKey)
}

// current returns the stored token and its claims, or an error if there is
// no usable token.
func (i *TokenIdentity) current(ctx context.Context) (string, *claims, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	token, ok, err := i.kv.Get(ctx, TokenKey)
	if err != nil {
		return "", nil, err
	}
	if !ok || token == "" {
		return "", nil, common.ErrorUnauthorized
	}
	c, err := parse(token)
	if err != nil {
		return "", nil, err
	}
	if c.ExpiresAt != nil && !i.clock.Now().Before(c.ExpiresAt.Time) {
		return "", nil, common.ErrTokenExpired
	}
	return token, c, nil
}

func (i *TokenIdentity) CurrentUser(ctx context.Context) (string, bool) {
	_, c, err := i.current(ctx)
	if err != nil {
		i.logger.Debug(ctx, "no signed-in user", "reason", err)
		return "", false
	}
	return c.UserID, true
}

func (i *TokenIdentity) AccessToken(ctx context.Context) (string, error) {
	token, _, err := i.current(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", common.ErrorUnauthorized, err)
	}
	return token, nil
}
