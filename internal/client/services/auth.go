// Package services contains the application services the CLI talks to:
// the catch service over the local store and sync engine, and the
// authentication service that manages the device session.
package services

import (
	"context"
	"fmt"
)

// Authenticator is the account surface of the remote server.
type Authenticator interface {
	Register(ctx context.Context, username, password string) (string, error)
	Login(ctx context.Context, username, password string) (string, error)
	Ping(ctx context.Context) error
}

// Session keeps the signed-in identity on this device.
type Session interface {
	SignIn(ctx context.Context, token string) (string, error)
	SignOut(ctx context.Context) error
	CurrentUser(ctx context.Context) (string, bool)
}

// AuthService defines authentication operations for the CLI.
//
// Contract:
//   - Login: authenticate against the server and keep the access token.
//   - Register: create a new user on the server.
//   - Logout: forget the access token; queued operations stay queued.
//   - Whoami: report the signed-in user, if any.
//   - Ping: check server liveness.
type AuthService interface {
	Register(ctx context.Context, username, password string) (string, error)
	Login(ctx context.Context, username, password string) (string, error)
	Logout(ctx context.Context) error
	Whoami(ctx context.Context) (string, bool)
	Ping(ctx context.Context) error
}

type authService struct {
	remote  Authenticator
	session Session
}

// NewAuthService constructs an AuthService bound to the given server client
// and device session.
func NewAuthService(remote Authenticator, session Session) AuthService {
	return &authService{remote: remote, session: session}
}

func (a *authService) Register(ctx context.Context, username, password string) (string, error) {
	id, err := a.remote.Register(ctx, username, password)
	if err != nil {
		return "", fmt.Errorf("register error: %w", err)
	}
	return id, nil
}

// Login authenticates against the server and stores the returned token.
// It returns the user ID carried by the token.
func (a *authService) Login(ctx context.Context, username, password string) (string, error) {
	token, err := a.remote.Login(ctx, username, password)
	if err != nil {
		return "", fmt.Errorf("login error: %w", err)
	}
	id, err := a.session.SignIn(ctx, token)
	if err != nil {
		return "", fmt.Errorf("session error: %w", err)
	}
	return id, nil
}

func (a *authService) Logout(ctx context.Context) error {
	return a.session.SignOut(ctx)
}

func (a *authService) Whoami(ctx context.Context) (string, bool) {
	return a.session.CurrentUser(ctx)
}

// Ping proxies a liveness check to the server.
func (a *authService) Ping(ctx context.Context) error {
	return a.remote.Ping(ctx)
}
