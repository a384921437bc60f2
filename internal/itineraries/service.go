package itineraries

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wayfarer-ops/wayfarer/internal/enquiries"
	"github.com/wayfarer-ops/wayfarer/internal/platform/events"
	"github.com/wayfarer-ops/wayfarer/internal/platform/storage"
	"github.com/wayfarer-ops/wayfarer/internal/shared"
	"github.com/wayfarer-ops/wayfarer/internal/view"
	"github.com/wayfarer-ops/wayfarer/report"
)

// EnquiryLookup resolves the enquiry an itinerary belongs to.
type EnquiryLookup interface {
	Get(ctx context.Context, p shared.Principal, id string) (enquiries.Enquiry, error)
}

// Renderer renders named HTML templates.
type Renderer interface {
	Has(name string) bool
	RenderString(name string, data any) (string, error)
}

// Config wires the service dependencies.
type Config struct {
	Repo      Repository
	Enquiries EnquiryLookup
	Library   *Library
	Views     Renderer
	PDF       report.Renderer
	Storage   storage.Storage
	Audit     shared.AuditRecorder
	Events    events.Publisher
	Logger    *slog.Logger
}

// Service generates and versions itinerary PDFs.
type Service struct {
	repo      Repository
	enquiries EnquiryLookup
	library   *Library
	views     Renderer
	pdf       report.Renderer
	storage   storage.Storage
	audit     shared.AuditRecorder
	events    events.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs the itinerary service.
func NewService(cfg Config) *Service {
	s := &Service{
		repo:      cfg.Repo,
		enquiries: cfg.Enquiries,
		library:   cfg.Library,
		views:     cfg.Views,
		pdf:       cfg.PDF,
		storage:   cfg.Storage,
		audit:     cfg.Audit,
		events:    cfg.Events,
		logger:    cfg.Logger,
		now:       time.Now,
	}
	if s.storage == nil {
		s.storage = storage.Disabled{}
	}
	if s.audit == nil {
		s.audit = shared.NopAudit{}
	}
	if s.events == nil {
		s.events = events.Nop{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Create registers an itinerary for an enquiry of the caller's agency.
func (s *Service) Create(ctx context.Context, p shared.Principal, in CreateInput) (Itinerary, error) {
	enq, err := s.enquiries.Get(ctx, p, strings.TrimSpace(in.EnquiryID))
	if err != nil {
		return Itinerary{}, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = "Itinerary for " + enq.Name
	}
	destination := strings.TrimSpace(in.Destination)
	if destination == "" {
		destination = enq.Locations
	}
	now := s.now().UTC()
	it := Itinerary{
		ID:          uuid.NewString(),
		AgencyID:    p.AgencyID,
		EnquiryID:   enq.ID,
		Title:       title,
		Destination: destination,
		Status:      StatusDraft,
		CreatedBy:   p.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, it); err != nil {
		return Itinerary{}, err
	}
	s.record(ctx, p, "itinerary.create", it.ID, map[string]any{"enquiry_id": enq.ID})
	return it, nil
}

// Get loads an itinerary.
func (s *Service) Get(ctx context.Context, p shared.Principal, id string) (Itinerary, error) {
	it, err := s.repo.Get(ctx, p.AgencyID, id)
	return it, mapErr(err)
}

// ListByEnquiry returns the itineraries of an enquiry.
func (s *Service) ListByEnquiry(ctx context.Context, p shared.Principal, enquiryID string) ([]Itinerary, error) {
	return s.repo.ListByEnquiry(ctx, p.AgencyID, enquiryID)
}

// ListVersions returns the PDF history of an itinerary.
func (s *Service) ListVersions(ctx context.Context, p shared.Principal, id string) ([]PDFVersion, error) {
	if _, err := s.repo.Get(ctx, p.AgencyID, id); err != nil {
		return nil, mapErr(err)
	}
	return s.repo.ListVersions(ctx, id)
}

// Generate renders the itinerary to PDF and stores it as the new active version.
func (s *Service) Generate(ctx context.Context, p shared.Principal, in GenerateInput) (GenerateResult, error) {
	enq, err := s.enquiries.Get(ctx, p, in.EnquiryID)
	if err != nil {
		return GenerateResult{}, err
	}
	it, err := s.repo.Get(ctx, p.AgencyID, in.ItineraryID)
	if err != nil {
		return GenerateResult{}, mapErr(err)
	}
	if it.EnquiryID != enq.ID {
		return GenerateResult{}, shared.NewError(shared.ErrValidation, "itinerary does not belong to enquiry")
	}
	if !s.views.Has(view.PDFItinerary) {
		return GenerateResult{}, shared.NewCodedError(ErrGeneration, CodeTemplateNotFound, "itinerary template is missing")
	}
	destination := firstNonEmpty(in.FormData.Destination, it.Destination, enq.Locations)
	plan, err := s.library.Load(enq.ID, destination)
	if err != nil {
		if errors.Is(err, ErrDayPlanNotFound) {
			return GenerateResult{}, shared.NewCodedError(ErrGeneration, CodeDayPlanNotFound, "no day plan available")
		}
		return GenerateResult{}, err
	}

	data := pdfData{
		Title:       firstNonEmpty(in.FormData.Title, it.Title),
		Customer:    firstNonEmpty(in.FormData.CustomerName, enq.Name),
		Destination: destination,
		TravelDates: firstNonEmpty(in.FormData.TravelDates, enq.EstimatedDates),
		Travelers:   in.FormData.Travelers,
		Package:     plan.Package,
		Days:        plan.Days,
		Notes:       in.FormData.Notes,
		Version:     it.ActivePDFVersion + 1,
		GeneratedAt: shared.FormatDate(s.now()),
	}
	if data.Travelers == 0 {
		data.Travelers = enq.Travellers + enq.Kids
	}
	html, err := s.views.RenderString(view.PDFItinerary, data)
	if err != nil {
		return GenerateResult{}, shared.NewCodedError(ErrGeneration, CodeRenderFailed, "render itinerary template: "+err.Error())
	}
	pdf, err := s.pdf.RenderHTML(ctx, html)
	if err != nil {
		return GenerateResult{}, shared.NewCodedError(ErrGeneration, CodeRenderFailed, "render itinerary pdf: "+err.Error())
	}

	filename := fmt.Sprintf("itinerary_%s_%d.pdf", it.ID, s.now().Unix())
	obj, err := s.storage.Upload(ctx, storage.BuildKey(path.Join("itineraries", it.ID), filename), pdf, "application/pdf")
	if err != nil {
		if errors.Is(err, storage.ErrNotConfigured) {
			return GenerateResult{}, shared.NewCodedError(ErrGeneration, CodeStorageNotConfigured, "object storage is not configured")
		}
		return GenerateResult{}, shared.NewCodedError(ErrGeneration, CodeUploadFailed, "upload itinerary pdf: "+err.Error())
	}

	version := PDFVersion{
		ID:          uuid.NewString(),
		ItineraryID: it.ID,
		URL:         obj.URL,
		StorageKey:  obj.Key,
		Filename:    filename,
		FileSize:    obj.Size,
		IsEdited:    in.FormData.IsEdited,
		IsActive:    true,
		CreatedBy:   p.UserID,
		CreatedAt:   s.now().UTC(),
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.LockItinerary(ctx, p.AgencyID, it.ID)
		if err != nil {
			return err
		}
		max, err := tx.MaxVersion(ctx, it.ID)
		if err != nil {
			return err
		}
		version.Version = max + 1
		if err := tx.DeactivateVersions(ctx, it.ID); err != nil {
			return err
		}
		if err := tx.InsertVersion(ctx, version); err != nil {
			return err
		}
		locked.PDFURL = version.URL
		locked.ActivePDFURL = version.URL
		locked.ActivePDFKey = version.StorageKey
		locked.ActivePDFVersion = version.Version
		locked.Status = StatusGenerated
		return tx.UpdatePDFCache(ctx, locked)
	})
	if err != nil {
		if delErr := s.storage.Delete(ctx, obj.Key); delErr != nil {
			s.logger.Warn("remove orphaned pdf", slog.String("key", obj.Key), slog.Any("error", delErr))
		}
		return GenerateResult{}, mapErr(err)
	}

	s.record(ctx, p, "itinerary.generate_pdf", it.ID, map[string]any{"version": version.Version, "version_id": version.ID})
	events.Emit(ctx, s.events, s.logger, events.Event{
		Type:      events.ItineraryPDFVersioned,
		AgencyID:  p.AgencyID,
		SubjectID: it.ID,
		Payload:   map[string]any{"enquiryId": enq.ID, "version": version.Version, "versionId": version.ID},
	})
	s.logger.Info("itinerary pdf generated",
		slog.String("itinerary_id", it.ID),
		slog.Int("version", version.Version),
		slog.String("day_plan", plan.Source))
	return GenerateResult{PDFURL: version.URL, Version: version.Version, VersionID: version.ID, DayPlan: plan.Source}, nil
}

// Activate makes a previous version the active one.
func (s *Service) Activate(ctx context.Context, p shared.Principal, itineraryID, versionID string) (PDFVersion, error) {
	var out PDFVersion
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.LockItinerary(ctx, p.AgencyID, itineraryID)
		if err != nil {
			return err
		}
		v, err := tx.GetVersion(ctx, itineraryID, versionID)
		if err != nil {
			return err
		}
		if err := tx.DeactivateVersions(ctx, itineraryID); err != nil {
			return err
		}
		if err := tx.ActivateVersion(ctx, itineraryID, versionID); err != nil {
			return err
		}
		locked.ActivePDFURL = v.URL
		locked.ActivePDFKey = v.StorageKey
		locked.ActivePDFVersion = v.Version
		if err := tx.UpdatePDFCache(ctx, locked); err != nil {
			return err
		}
		v.IsActive = true
		out = v
		return nil
	})
	if err != nil {
		return PDFVersion{}, mapErr(err)
	}
	s.record(ctx, p, "itinerary.activate_pdf", itineraryID, map[string]any{"version": out.Version, "version_id": out.ID})
	return out, nil
}

// PDFCandidates returns the itinerary's attachable documents in lookup order.
func (s *Service) PDFCandidates(ctx context.Context, agencyID, itineraryID string) ([]PDFRef, error) {
	it, err := s.repo.Get(ctx, agencyID, itineraryID)
	if err != nil {
		return nil, mapErr(err)
	}
	return it.PDFCandidates(), nil
}

// PDFCandidates lists the active version first, then the legacy pdf url.
func (it Itinerary) PDFCandidates() []PDFRef {
	var out []PDFRef
	if it.ActivePDFKey != "" || it.ActivePDFURL != "" {
		out = append(out, PDFRef{URL: it.ActivePDFURL, StorageKey: it.ActivePDFKey, Filename: pdfFilename(it.ID, it.ActivePDFURL)})
	}
	if it.PDFURL != "" && it.PDFURL != it.ActivePDFURL {
		out = append(out, PDFRef{URL: it.PDFURL, Filename: pdfFilename(it.ID, it.PDFURL)})
	}
	return out
}

func pdfFilename(id, raw string) string {
	if base := path.Base(strings.SplitN(raw, "?", 2)[0]); strings.HasSuffix(strings.ToLower(base), ".pdf") {
		return base
	}
	return "itinerary_" + id + ".pdf"
}

func (s *Service) record(ctx context.Context, p shared.Principal, action, id string, meta map[string]any) {
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  p.UserID,
		AgencyID: p.AgencyID,
		Action:   action,
		Entity:   "itinerary",
		EntityID: id,
		Meta:     meta,
		At:       s.now().UTC(),
	})
	if err != nil {
		s.logger.Warn("audit itinerary", slog.String("action", action), slog.Any("error", err))
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func mapErr(err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrVersionNotFound):
		return shared.NewError(shared.ErrNotFound, err.Error())
	default:
		return err
	}
}
