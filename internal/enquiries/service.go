package enquiries

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wayfarer-ops/wayfarer/internal/platform/events"
	"github.com/wayfarer-ops/wayfarer/internal/platform/httpx"
	"github.com/wayfarer-ops/wayfarer/internal/rbac"
	"github.com/wayfarer-ops/wayfarer/internal/shared"
)

// boardLimit caps the number of cards loaded per board request.
const boardLimit = 500

// Service implements enquiry workflows.
type Service struct {
	repo   Repository
	audit  shared.AuditRecorder
	events events.Publisher
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the enquiry service.
func NewService(repo Repository, audit shared.AuditRecorder, pub events.Publisher, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if pub == nil {
		pub = events.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, events: pub, logger: logger, now: time.Now}
}

// Create registers a new enquiry in status "enquiry" dated today.
func (s *Service) Create(ctx context.Context, p shared.Principal, in CreateInput) (Enquiry, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Email = strings.TrimSpace(in.Email)
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if err := httpx.Validate(in); err != nil {
		return Enquiry{}, err
	}
	currency := in.Currency
	if currency == "" {
		currency = "INR"
	}
	e := Enquiry{
		ID:                uuid.NewString(),
		AgencyID:          p.AgencyID,
		CustomerID:        in.CustomerID,
		Name:              in.Name,
		Phone:             in.Phone,
		Email:             strings.ToLower(in.Email),
		Locations:         strings.TrimSpace(in.Locations),
		TourType:          in.TourType,
		EstimatedDates:    in.EstimatedDates,
		Currency:          currency,
		Budget:            in.Budget,
		Notes:             in.Notes,
		AssignedStaffID:   in.AssignedStaffID,
		PointOfContact:    in.PointOfContact,
		PickupLocation:    in.PickupLocation,
		DropLocation:      in.DropLocation,
		Travellers:        in.Travellers,
		Kids:              in.Kids,
		TravelingWithPets: in.TravelingWithPets,
		FlightsRequired:   in.FlightsRequired,
		LeadSource:        in.LeadSource,
		Tags:              nonNil(in.Tags),
		MustSeeSpots:      nonNil(in.MustSeeSpots),
		Status:            StatusEnquiry,
		EnquiryDate:       shared.FormatDate(s.now()),
		CreatedBy:         p.UserID,
	}
	if p.Role == shared.RoleTelecaller && e.AssignedStaffID == "" {
		e.AssignedStaffID = p.UserID
	}
	if err := s.repo.Create(ctx, e); err != nil {
		return Enquiry{}, fmt.Errorf("create enquiry: %w", err)
	}
	e.CreatedAt = s.now()
	e.UpdatedAt = e.CreatedAt
	s.record(ctx, p, "enquiry.created", e.ID, nil)
	return e, nil
}

// Get returns one enquiry visible to the principal.
func (s *Service) Get(ctx context.Context, p shared.Principal, id string) (Enquiry, error) {
	e, err := s.repo.Get(ctx, p.AgencyID, id)
	if err != nil {
		return Enquiry{}, mapErr(err)
	}
	if !visible(p, e) {
		return Enquiry{}, shared.NewError(shared.ErrNotFound, ErrNotFound.Error())
	}
	return e, nil
}

// List returns a filtered page of enquiries.
func (s *Service) List(ctx context.Context, p shared.Principal, f ListFilter) ([]Enquiry, shared.Pagination, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, shared.Pagination{}, shared.NewError(shared.ErrValidation, ErrInvalidStatus.Error())
	}
	f.AgencyID = p.AgencyID
	if p.Role == shared.RoleTelecaller {
		f.AssignedStaffID = p.UserID
	}
	items, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, shared.Pagination{}, fmt.Errorf("list enquiries: %w", err)
	}
	if items == nil {
		items = []Enquiry{}
	}
	return items, shared.NewPagination(f.Page.Page, f.Page.PerPage, total), nil
}

// Board groups visible enquiries into the twelve status columns.
func (s *Service) Board(ctx context.Context, p shared.Principal, assignedStaffID string) ([]Column, error) {
	items, _, err := s.List(ctx, p, ListFilter{
		AssignedStaffID: assignedStaffID,
		Page:            shared.PageRequest{Page: 1, PerPage: boardLimit},
	})
	if err != nil {
		return nil, err
	}
	columns := make([]Column, 0, len(boardOrder))
	index := make(map[Status]int, len(boardOrder))
	for i, st := range boardOrder {
		index[st] = i
		columns = append(columns, Column{Status: st, Label: Label(st), Enquiries: []Enquiry{}})
	}
	for _, e := range items {
		i, ok := index[e.Status]
		if !ok {
			continue
		}
		columns[i].Enquiries = append(columns[i].Enquiries, e)
		columns[i].Count++
	}
	return columns, nil
}

// Update applies field edits and an optional status move atomically.
func (s *Service) Update(ctx context.Context, p shared.Principal, in UpdateInput) (MoveResult, error) {
	if in.Status != nil && !in.Status.Valid() {
		return MoveResult{}, shared.NewError(shared.ErrValidation, fmt.Sprintf("%s: %q", ErrInvalidStatus, *in.Status))
	}
	if in.Status == nil && !in.HasEdits() {
		return MoveResult{}, shared.NewError(shared.ErrValidation, "nothing to update")
	}
	var res MoveResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		e, err := tx.GetForUpdate(ctx, p.AgencyID, in.ID)
		if err != nil {
			return err
		}
		if !visible(p, e) {
			return ErrNotFound
		}
		res.From = e.Status
		res.To = e.Status
		in.apply(&e)
		if in.Status != nil && *in.Status != e.Status {
			to := *in.Status
			if !CanTransition(e.Status, to) {
				if !canOverride(p) {
					return shared.NewError(shared.ErrValidation,
						fmt.Sprintf("%s: %s → %s", ErrTransitionNotAllowed, e.Status, to))
				}
				res.Overridden = true
			}
			e.Status = to
			res.To = to
		}
		e.UpdatedAt = s.now()
		if err := tx.Save(ctx, e); err != nil {
			return err
		}
		res.Enquiry = e
		return nil
	})
	if err != nil {
		return MoveResult{}, mapErr(err)
	}
	if res.From != res.To {
		s.logger.Info("enquiry moved",
			slog.String("enquiry_id", in.ID),
			slog.String("from", string(res.From)),
			slog.String("to", string(res.To)),
			slog.Bool("overridden", res.Overridden),
		)
		s.record(ctx, p, "enquiry.status_changed", in.ID, map[string]any{"from": res.From, "to": res.To, "overridden": res.Overridden})
		events.Emit(ctx, s.events, s.logger, events.Event{
			Type: events.EnquiryStatusChanged, AgencyID: p.AgencyID, SubjectID: in.ID,
			Payload: map[string]any{"from": res.From, "to": res.To, "overridden": res.Overridden},
		})
	}
	return res, nil
}

// Move changes the status of an enquiry.
func (s *Service) Move(ctx context.Context, p shared.Principal, id string, to Status) (MoveResult, error) {
	return s.Update(ctx, p, UpdateInput{ID: id, Status: &to})
}

// Archive soft-deletes an enquiry.
func (s *Service) Archive(ctx context.Context, p shared.Principal, id string) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		e, err := tx.GetForUpdate(ctx, p.AgencyID, id)
		if err != nil {
			return err
		}
		if !visible(p, e) {
			return ErrNotFound
		}
		return tx.Archive(ctx, p.AgencyID, id, s.now())
	})
	if err != nil {
		return mapErr(err)
	}
	s.record(ctx, p, "enquiry.archived", id, nil)
	return nil
}

func (s *Service) record(ctx context.Context, p shared.Principal, action, id string, meta map[string]any) {
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  p.UserID,
		AgencyID: p.AgencyID,
		Action:   action,
		Entity:   "enquiry",
		EntityID: id,
		Meta:     meta,
		At:       s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("audit enquiry", slog.String("action", action), slog.String("enquiry_id", id), slog.Any("error", err))
	}
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func canOverride(p shared.Principal) bool {
	return rbac.Can(p.Role, rbac.PermEnquiryOverrideStatus)
}

func visible(p shared.Principal, e Enquiry) bool {
	if p.Role != shared.RoleTelecaller {
		return true
	}
	return e.AssignedStaffID == p.UserID || e.CreatedBy == p.UserID
}

func mapErr(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return shared.NewError(shared.ErrNotFound, ErrNotFound.Error())
	default:
		return err
	}
}
