package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/catchkeeper/internal/common"
	"github.com/dmitrijs2005/catchkeeper/internal/server/auth"
	"github.com/dmitrijs2005/catchkeeper/internal/server/models"
	"github.com/dmitrijs2005/catchkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/catchkeeper/internal/timex"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials rejects registrations with an empty username or password.
var ErrInvalidCredentials = errors.New("username and password are required")

// Token is a signed access token and the moment it stops being accepted.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

type UserService struct {
	db                          *sql.DB
	repomanager                 repomanager.RepositoryManager
	jwtSecret                   []byte
	accessTokenValidityDuration time.Duration
	clock                       timex.Clock
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, secretKey []byte, validity time.Duration, clock timex.Clock) *UserService {
	return &UserService{
		db:                          db,
		repomanager:                 m,
		jwtSecret:                   secretKey,
		accessTokenValidityDuration: validity,
		clock:                       clock,
	}
}

// hashPassword is a seam so tests avoid bcrypt's cost.
var hashPassword = func(password []byte) ([]byte, error) {
	return bcrypt.GenerateFromPassword(password, bcrypt.DefaultCost)
}

var comparePassword = bcrypt.CompareHashAndPassword

// Register creates a user storing a bcrypt hash of password.
func (s *UserService) Register(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	hash, err := hashPassword([]byte(password))
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.repomanager.Users(s.db).Create(ctx, &models.User{UserName: username, PasswordHash: hash})
	if err != nil {
		return nil, fmt.Errorf("error creating user: %w", err)
	}
	return u, nil
}

// Login verifies credentials and mints an access token. Unknown users and
// wrong passwords are indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, username, password string) (*Token, error) {
	user, err := s.repomanager.Users(s.db).GetUserByLogin(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, common.ErrorInternal
	}
	if err := comparePassword(user.PasswordHash, []byte(password)); err != nil {
		return nil, common.ErrorUnauthorized
	}

	token, expiresAt, err := auth.GenerateToken(user.ID, s.jwtSecret, s.clock.Now(), s.accessTokenValidityDuration)
	if err != nil {
		return nil, common.ErrorInternal
	}
	return &Token{AccessToken: token, ExpiresAt: expiresAt}, nil
}
