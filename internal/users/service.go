package users

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/wayfarer-ops/wayfarer/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListByAgency(ctx context.Context, agencyID string) ([]User, error)
	Get(ctx context.Context, agencyID, id string) (User, error)
	Create(ctx context.Context, u User, passwordHash string) (User, error)
	UpdatePassword(ctx context.Context, agencyID, id, passwordHash string) error
}

const (
	tempPasswordLength   = 12
	tempPasswordAlphabet = "abcdefghjkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// Service handles user business logic.
type Service struct {
	repo   RepositoryPort
	audit  shared.AuditRecorder
	logger *slog.Logger
	cost   int
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, cost: bcrypt.DefaultCost}
}

// List returns the staff of the caller's agency.
func (s *Service) List(ctx context.Context, p shared.Principal) ([]User, error) {
	users, err := s.repo.ListByAgency(ctx, p.AgencyID)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	if users == nil {
		users = []User{}
	}
	return users, nil
}

// Create registers a staff account in the caller's agency.
func (s *Service) Create(ctx context.Context, p shared.Principal, in CreateInput) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	user, err := s.repo.Create(ctx, User{
		ID:       uuid.NewString(),
		AgencyID: p.AgencyID,
		Name:     in.Name,
		Email:    in.Email,
		Phone:    in.Phone,
		Role:     in.Role,
	}, string(hash))
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return User{}, shared.NewError(shared.ErrConflict, "email already registered")
		}
		return User{}, fmt.Errorf("create user: %w", err)
	}
	s.record(ctx, p, "user.created", user.ID, map[string]any{"role": user.Role})
	return user, nil
}

// ResetPassword issues a temporary password. The plaintext is returned once and never stored.
func (s *Service) ResetPassword(ctx context.Context, p shared.Principal, userID string) (Credentials, error) {
	user, err := s.repo.Get(ctx, p.AgencyID, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Credentials{}, shared.NewError(shared.ErrNotFound, "user not found")
		}
		return Credentials{}, fmt.Errorf("get user: %w", err)
	}
	if !canReset(p.Role, user.Role) {
		return Credentials{}, shared.NewError(shared.ErrForbidden, "not allowed to reset this account's password")
	}
	temp, err := generatePassword(tempPasswordLength)
	if err != nil {
		return Credentials{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(temp), s.cost)
	if err != nil {
		return Credentials{}, fmt.Errorf("hash password: %w", err)
	}
	if err := s.repo.UpdatePassword(ctx, p.AgencyID, user.ID, string(hash)); err != nil {
		return Credentials{}, fmt.Errorf("update password: %w", err)
	}
	s.logger.Info("temporary password issued",
		slog.String("user_id", user.ID),
		slog.String("actor_id", p.UserID),
		slog.String("password", MaskSecret(temp)),
	)
	s.record(ctx, p, "user.password_reset", user.ID, map[string]any{"role": user.Role})
	return Credentials{User: user, TemporaryPassword: temp}, nil
}

// roleRank orders the staff roles; agency admin accounts are never reset here.
var roleRank = map[string]int{
	shared.RoleTelecaller:  1,
	shared.RoleTeamLead:    2,
	shared.RoleAgency:      3,
	shared.RoleAgencyAdmin: 4,
}

func canReset(actor, target string) bool {
	if target == shared.RoleAgencyAdmin {
		return false
	}
	actorRank, ok := roleRank[actor]
	if !ok {
		return false
	}
	return roleRank[target] <= actorRank
}

func (s *Service) record(ctx context.Context, p shared.Principal, action, id string, meta map[string]any) {
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  p.UserID,
		AgencyID: p.AgencyID,
		Action:   action,
		Entity:   "user",
		EntityID: id,
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit user", slog.String("action", action), slog.String("user_id", id), slog.Any("error", err))
	}
}

func generatePassword(n int) (string, error) {
	out := make([]byte, n)
	max := big.NewInt(int64(len(tempPasswordAlphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate password: %w", err)
		}
		out[i] = tempPasswordAlphabet[idx.Int64()]
	}
	return string(out), nil
}
