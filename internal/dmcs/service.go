package dmcs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/wayfarer-ops/wayfarer/internal/platform/cache"
	"github.com/wayfarer-ops/wayfarer/internal/shared"
)

// Service manages the DMC directory.
type Service struct {
	repo   Repository
	cache  *cache.Versioned
	audit  shared.AuditRecorder
	logger *slog.Logger
}

// NewService constructs the directory service. A nil cache disables caching.
func NewService(repo Repository, c *cache.Versioned, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: c, audit: audit, logger: logger}
}

// ListActive returns ACTIVE DMCs covering any of locations.
func (s *Service) ListActive(ctx context.Context, agencyID string, locations []string) ([]DMC, error) {
	all, err := s.activeDirectory(ctx, agencyID)
	if err != nil {
		return nil, err
	}
	out := make([]DMC, 0, len(all))
	for _, d := range all {
		if Covers(d, locations) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Service) activeDirectory(ctx context.Context, agencyID string) ([]DMC, error) {
	loader := func(ctx context.Context) (any, error) {
		list, err := s.repo.List(ctx, agencyID, StatusActive)
		if err != nil {
			return nil, err
		}
		if list == nil {
			list = []DMC{}
		}
		return list, nil
	}
	key, err := s.cache.BuildKey(ctx, agencyID, "active")
	if err != nil {
		s.logger.Warn("dmc cache key", slog.Any("error", err))
		return s.repo.List(ctx, agencyID, StatusActive)
	}
	var out []DMC
	if err := s.cache.FetchJSON(ctx, key, &out, loader); err != nil {
		s.logger.Warn("dmc cache fetch", slog.Any("error", err))
		return s.repo.List(ctx, agencyID, StatusActive)
	}
	return out, nil
}

// List returns every DMC of the agency with an optional status filter.
func (s *Service) List(ctx context.Context, agencyID string, status Status) ([]DMC, error) {
	if status != "" && status != StatusActive && status != StatusInactive {
		return nil, shared.NewError(shared.ErrValidation, fmt.Sprintf("unknown status %q", status))
	}
	list, err := s.repo.List(ctx, agencyID, status)
	if err != nil {
		return nil, fmt.Errorf("list dmcs: %w", err)
	}
	if list == nil {
		list = []DMC{}
	}
	return list, nil
}

// Get returns one DMC.
func (s *Service) Get(ctx context.Context, agencyID, id string) (DMC, error) {
	d, err := s.repo.Get(ctx, agencyID, id)
	if err != nil {
		return DMC{}, mapErr(err)
	}
	return d, nil
}

// GetMany loads the DMCs with the given ids; unknown ids are omitted.
func (s *Service) GetMany(ctx context.Context, agencyID string, ids []string) ([]DMC, error) {
	list, err := s.repo.GetMany(ctx, agencyID, ids)
	if err != nil {
		return nil, fmt.Errorf("load dmcs: %w", err)
	}
	return list, nil
}

// Upsert creates a DMC or updates the one identified by in.ID.
func (s *Service) Upsert(ctx context.Context, p shared.Principal, in UpsertInput) (DMC, error) {
	d := DMC{
		ID:                  strings.TrimSpace(in.ID),
		AgencyID:            p.AgencyID,
		Name:                strings.TrimSpace(in.Name),
		ContactPerson:       strings.TrimSpace(in.ContactPerson),
		Email:               strings.ToLower(strings.TrimSpace(in.Email)),
		PhoneNumber:         strings.TrimSpace(in.PhoneNumber),
		Designation:         strings.TrimSpace(in.Designation),
		Status:              in.Status,
		PrimaryCountry:      strings.TrimSpace(in.PrimaryCountry),
		DestinationsCovered: []string(in.DestinationsCovered),
		Cities:              []string(in.Cities),
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = StatusActive
	}
	if d.DestinationsCovered == nil {
		d.DestinationsCovered = []string{}
	}
	if d.Cities == nil {
		d.Cities = []string{}
	}
	saved, err := s.repo.Upsert(ctx, d)
	if err != nil {
		return DMC{}, mapErr(err)
	}
	s.invalidate(ctx)
	s.record(ctx, p, "dmc.upserted", saved.ID, nil)
	return saved, nil
}

// SetStatus toggles a DMC between ACTIVE and INACTIVE.
func (s *Service) SetStatus(ctx context.Context, p shared.Principal, id string, status Status) (DMC, error) {
	if status != StatusActive && status != StatusInactive {
		return DMC{}, shared.NewError(shared.ErrValidation, fmt.Sprintf("unknown status %q", status))
	}
	if err := s.repo.SetStatus(ctx, p.AgencyID, id, status); err != nil {
		return DMC{}, mapErr(err)
	}
	s.invalidate(ctx)
	s.record(ctx, p, "dmc.status_changed", id, map[string]any{"status": status})
	return s.Get(ctx, p.AgencyID, id)
}

// record writes an audit entry; failures are logged, never returned.
func (s *Service) record(ctx context.Context, p shared.Principal, action, id string, meta map[string]any) {
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID: p.UserID, AgencyID: p.AgencyID, Action: action, Entity: "dmc", EntityID: id, Meta: meta,
	})
	if err != nil {
		s.logger.Warn("audit dmc", slog.String("action", action), slog.String("dmc_id", id), slog.Any("error", err))
	}
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("dmc cache bump", slog.Any("error", err))
	}
}

func mapErr(err error) error {
	if errors.Is(err, ErrNotFound) {
		return shared.NewError(shared.ErrNotFound, ErrNotFound.Error())
	}
	return err
}
