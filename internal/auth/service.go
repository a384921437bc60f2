package auth

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/wayfarer-ops/wayfarer/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	tokens *TokenIssuer
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens *TokenIssuer) *Service {
	return &Service{repo: repo, tokens: tokens}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates and issues an access token.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return Session{}, err
	}
	token, exp, err := s.tokens.Issue(*user)
	if err != nil {
		return Session{}, err
	}
	_ = s.repo.TouchLogin(ctx, user.ID)
	return Session{Token: token, ExpiresAt: exp, User: *user}, nil
}

// Principal resolves a bearer token into the caller identity.
func (s *Service) Principal(raw string) (shared.Principal, error) {
	claims, err := s.tokens.Parse(raw)
	if err != nil {
		return shared.Principal{}, shared.NewError(shared.ErrUnauthorized, "invalid token")
	}
	return shared.Principal{
		UserID:   claims.Subject,
		AgencyID: claims.AgencyID,
		Email:    claims.Email,
		Role:     claims.Role,
	}, nil
}
