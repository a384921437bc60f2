package customers

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wayfarer-ops/wayfarer/internal/enquiries"
	"github.com/wayfarer-ops/wayfarer/internal/shared"
)

// EnquiryLookup resolves an enquiry's customer.
type EnquiryLookup interface {
	Get(ctx context.Context, p shared.Principal, id string) (enquiries.Enquiry, error)
}

type Service struct {
	repo      Repository
	enquiries EnquiryLookup
	audit     shared.AuditRecorder
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(repo Repository, enquiries EnquiryLookup, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, enquiries: enquiries, audit: audit, logger: logger, now: time.Now}
}

func (s *Service) Create(ctx context.Context, p shared.Principal, req CreateCustomerRequest) (Customer, error) {
	now := s.now().UTC()
	c := Customer{
		ID:        uuid.NewString(),
		AgencyID:  p.AgencyID,
		Name:      strings.TrimSpace(req.Name),
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:     strings.TrimSpace(req.Phone),
		Notes:     req.Notes,
		CreatedBy: p.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return Customer{}, mapErr(err)
	}
	s.record(ctx, p, "customer.create", "customer", c.ID, nil)
	return c, nil
}

func (s *Service) Get(ctx context.Context, p shared.Principal, id string) (Customer, error) {
	c, err := s.repo.Get(ctx, p.AgencyID, id)
	return c, mapErr(err)
}

func (s *Service) List(ctx context.Context, p shared.Principal, search string, page shared.PageRequest) ([]Customer, shared.Pagination, error) {
	items, total, err := s.repo.List(ctx, ListCustomersRequest{AgencyID: p.AgencyID, Search: search, Page: page})
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	if items == nil {
		items = []Customer{}
	}
	return items, shared.NewPagination(page.Page, page.PerPage, total), nil
}

// ResolveCustomerID returns customerID, or the customer of enquiryID when customerID is empty.
func (s *Service) ResolveCustomerID(ctx context.Context, p shared.Principal, customerID, enquiryID string) (string, error) {
	if customerID = strings.TrimSpace(customerID); customerID != "" {
		return customerID, nil
	}
	if strings.TrimSpace(enquiryID) == "" {
		return "", shared.NewError(shared.ErrValidation, "customerId or enquiryId is required")
	}
	enq, err := s.enquiries.Get(ctx, p, enquiryID)
	if err != nil {
		return "", err
	}
	if enq.CustomerID == "" {
		return "", shared.NewError(shared.ErrNotFound, "enquiry has no linked customer")
	}
	return enq.CustomerID, nil
}

// Overview loads the customer with itineraries, sent quotes and feedback concurrently.
func (s *Service) Overview(ctx context.Context, p shared.Principal, customerID, enquiryID string) (Overview, error) {
	id, err := s.ResolveCustomerID(ctx, p, customerID, enquiryID)
	if err != nil {
		return Overview{}, err
	}

	var out Overview
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := s.repo.Get(ctx, p.AgencyID, id)
		if err != nil {
			return err
		}
		out.Customer = c
		return nil
	})
	g.Go(func() error {
		items, err := s.repo.ListItineraries(ctx, p.AgencyID, id)
		if err != nil {
			return err
		}
		out.Itineraries = items
		return nil
	})
	g.Go(func() error {
		items, err := s.repo.ListSent(ctx, p.AgencyID, id)
		if err != nil {
			return err
		}
		out.SentItineraries = items
		return nil
	})
	g.Go(func() error {
		items, err := s.repo.ListFeedback(ctx, p.AgencyID, id)
		if err != nil {
			return err
		}
		out.Feedback = items
		return nil
	})
	if err := g.Wait(); err != nil {
		return Overview{}, mapErr(err)
	}
	if out.Itineraries == nil {
		out.Itineraries = []ItinerarySummary{}
	}
	if out.SentItineraries == nil {
		out.SentItineraries = []SentItinerary{}
	}
	if out.Feedback == nil {
		out.Feedback = []Feedback{}
	}
	return out, nil
}

// AddFeedback records a rating on one of the customer's itineraries.
func (s *Service) AddFeedback(ctx context.Context, p shared.Principal, req AddFeedbackRequest) (Feedback, error) {
	customerID, err := s.ResolveCustomerID(ctx, p, req.CustomerID, req.EnquiryID)
	if err != nil {
		return Feedback{}, err
	}
	if _, err := s.repo.Get(ctx, p.AgencyID, customerID); err != nil {
		return Feedback{}, mapErr(err)
	}
	itineraries, err := s.repo.ListItineraries(ctx, p.AgencyID, customerID)
	if err != nil {
		return Feedback{}, err
	}
	if !containsItinerary(itineraries, req.ItineraryID) {
		return Feedback{}, shared.NewError(shared.ErrValidation, "itinerary does not belong to customer")
	}
	now := s.now().UTC()
	f := Feedback{
		ID:          uuid.NewString(),
		AgencyID:    p.AgencyID,
		CustomerID:  customerID,
		ItineraryID: req.ItineraryID,
		Rating:      req.Rating,
		Comment:     strings.TrimSpace(req.Comment),
		CreatedBy:   p.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateFeedback(ctx, f); err != nil {
		return Feedback{}, err
	}
	s.record(ctx, p, "feedback.create", "feedback", f.ID, map[string]any{"rating": f.Rating, "itinerary_id": f.ItineraryID})
	return f, nil
}

func (s *Service) UpdateFeedback(ctx context.Context, p shared.Principal, req UpdateFeedbackRequest) (Feedback, error) {
	f, err := s.repo.GetFeedback(ctx, p.AgencyID, req.ID)
	if err != nil {
		return Feedback{}, mapErr(err)
	}
	if req.Rating != nil {
		f.Rating = *req.Rating
	}
	if req.Comment != nil {
		f.Comment = strings.TrimSpace(*req.Comment)
	}
	f.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateFeedback(ctx, f); err != nil {
		return Feedback{}, mapErr(err)
	}
	s.record(ctx, p, "feedback.update", "feedback", f.ID, map[string]any{"rating": f.Rating})
	return f, nil
}

func (s *Service) DeleteFeedback(ctx context.Context, p shared.Principal, id string) error {
	if strings.TrimSpace(id) == "" {
		return shared.NewError(shared.ErrValidation, "id is required")
	}
	if err := s.repo.DeleteFeedback(ctx, p.AgencyID, id); err != nil {
		return mapErr(err)
	}
	s.record(ctx, p, "feedback.delete", "feedback", id, nil)
	return nil
}

func (s *Service) record(ctx context.Context, p shared.Principal, action, entity, id string, meta map[string]any) {
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  p.UserID,
		AgencyID: p.AgencyID,
		Action:   action,
		Entity:   entity,
		EntityID: id,
		Meta:     meta,
		At:       s.now().UTC(),
	}); err != nil {
		s.logger.Warn("audit customer", slog.String("action", action), slog.Any("error", err))
	}
}

func containsItinerary(items []ItinerarySummary, id string) bool {
	for _, it := range items {
		if it.ID == id {
			return true
		}
	}
	return false
}

func mapErr(err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrFeedbackNotFound):
		return shared.NewError(shared.ErrNotFound, err.Error())
	case errors.Is(err, ErrEmailTaken):
		return shared.NewError(shared.ErrConflict, err.Error())
	default:
		return err
	}
}
