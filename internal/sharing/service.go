package sharing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wayfarer-ops/wayfarer/internal/customers"
	"github.com/wayfarer-ops/wayfarer/internal/dmcs"
	"github.com/wayfarer-ops/wayfarer/internal/enquiries"
	"github.com/wayfarer-ops/wayfarer/internal/itineraries"
	"github.com/wayfarer-ops/wayfarer/internal/outbox"
	"github.com/wayfarer-ops/wayfarer/internal/platform/events"
	"github.com/wayfarer-ops/wayfarer/internal/platform/storage"
	"github.com/wayfarer-ops/wayfarer/internal/shared"
	"github.com/wayfarer-ops/wayfarer/internal/view"
)

// EnquiryLookup resolves enquiries visible to the caller.
type EnquiryLookup interface {
	Get(ctx context.Context, p shared.Principal, id string) (enquiries.Enquiry, error)
}

// DMCDirectory loads DMC partner records.
type DMCDirectory interface {
	GetMany(ctx context.Context, agencyID string, ids []string) ([]dmcs.DMC, error)
	ListActive(ctx context.Context, agencyID string, locations []string) ([]dmcs.DMC, error)
}

// ItineraryPDFs lists the attachable PDFs of an itinerary.
type ItineraryPDFs interface {
	PDFCandidates(ctx context.Context, agencyID, itineraryID string) ([]itineraries.PDFRef, error)
}

// CustomerLookup resolves customer contact details.
type CustomerLookup interface {
	Get(ctx context.Context, p shared.Principal, id string) (customers.Customer, error)
}

// DeliveryReader reports notification delivery state.
type DeliveryReader interface {
	Deliveries(ctx context.Context, ids []string) (map[string]outbox.Delivery, error)
}

// Renderer renders named email templates.
type Renderer interface {
	RenderString(name string, data any) (string, error)
}

// Config wires the service dependencies.
type Config struct {
	Repo        Repository
	Enquiries   EnquiryLookup
	DMCs        DMCDirectory
	Itineraries ItineraryPDFs
	Customers   CustomerLookup
	Deliveries  DeliveryReader
	Outbox      outbox.Publisher
	Views       Renderer
	Storage     storage.Storage
	PublicDir   string
	BrandName   string
	Audit       shared.AuditRecorder
	Events      events.Publisher
	Logger      *slog.Logger
}

// Service implements the share-to-DMC and share-to-customer workflows.
type Service struct {
	repo        Repository
	enquiries   EnquiryLookup
	dmcs        DMCDirectory
	itineraries ItineraryPDFs
	customers   CustomerLookup
	deliveries  DeliveryReader
	outbox      outbox.Publisher
	views       Renderer
	storage     storage.Storage
	publicDir   string
	brand       string
	audit       shared.AuditRecorder
	events      events.Publisher
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs the sharing service.
func NewService(cfg Config) *Service {
	s := &Service{
		repo:        cfg.Repo,
		enquiries:   cfg.Enquiries,
		dmcs:        cfg.DMCs,
		itineraries: cfg.Itineraries,
		customers:   cfg.Customers,
		deliveries:  cfg.Deliveries,
		outbox:      cfg.Outbox,
		views:       cfg.Views,
		storage:     cfg.Storage,
		publicDir:   cfg.PublicDir,
		brand:       cfg.BrandName,
		audit:       cfg.Audit,
		events:      cfg.Events,
		logger:      cfg.Logger,
		now:         time.Now,
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
	if s.brand == "" {
		s.brand = "Wayfarer Travel"
	}
	return s
}

// Overview loads rounds and the DMCs available for the enquiry's locations concurrently.
func (s *Service) Overview(ctx context.Context, p shared.Principal, enquiryID, customerID, locations string) (Overview, error) {
	var out Overview
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rounds, err := s.repo.ListRounds(gctx, RoundFilter{AgencyID: p.AgencyID, EnquiryID: enquiryID, CustomerID: customerID})
		if err != nil {
			return err
		}
		out.Rounds = rounds
		return nil
	})
	g.Go(func() error {
		terms := dmcs.SplitPlaces(locations)
		if len(terms) == 0 && enquiryID != "" {
			enq, err := s.enquiries.Get(gctx, p, enquiryID)
			if err != nil {
				return err
			}
			terms = dmcs.SplitPlaces(enq.Locations)
		}
		list, err := s.dmcs.ListActive(gctx, p.AgencyID, terms)
		if err != nil {
			return err
		}
		out.AvailableDMCs = list
		return nil
	})
	if err := g.Wait(); err != nil {
		return Overview{}, mapErr(err)
	}
	if err := s.enrich(ctx, p.AgencyID, out.Rounds); err != nil {
		return Overview{}, err
	}
	if out.Rounds == nil {
		out.Rounds = []Round{}
	}
	if out.AvailableDMCs == nil {
		out.AvailableDMCs = []dmcs.DMC{}
	}
	return out, nil
}

// enrich attaches DMC records, commissions and delivery status to every item.
func (s *Service) enrich(ctx context.Context, agencyID string, rounds []Round) error {
	var dmcIDs, enquiryIDs, notificationIDs []string
	for _, r := range rounds {
		enquiryIDs = append(enquiryIDs, r.EnquiryID)
		for _, it := range r.Items {
			dmcIDs = append(dmcIDs, it.DMCID)
			if it.NotificationID != "" {
				notificationIDs = append(notificationIDs, it.NotificationID)
			}
		}
	}
	if len(dmcIDs) == 0 {
		return nil
	}

	var (
		partners    []dmcs.DMC
		commissions []Commission
		deliveries  map[string]outbox.Delivery
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		partners, err = s.dmcs.GetMany(gctx, agencyID, unique(dmcIDs))
		return err
	})
	g.Go(func() error {
		var err error
		commissions, err = s.repo.ListCommissions(gctx, agencyID, unique(enquiryIDs))
		return err
	})
	if s.deliveries != nil && len(notificationIDs) > 0 {
		g.Go(func() error {
			var err error
			deliveries, err = s.deliveries.Deliveries(gctx, notificationIDs)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("enrich shared dmcs: %w", err)
	}

	byDMC := make(map[string]dmcs.DMC, len(partners))
	for _, d := range partners {
		byDMC[d.ID] = d
	}
	byPair := make(map[[2]string]Commission, len(commissions))
	for _, c := range commissions {
		byPair[[2]string{c.EnquiryID, c.DMCID}] = c
	}
	for ri := range rounds {
		for ii := range rounds[ri].Items {
			it := &rounds[ri].Items[ii]
			if d, ok := byDMC[it.DMCID]; ok {
				it.DMC = &d
			}
			if c, ok := byPair[[2]string{rounds[ri].EnquiryID, it.DMCID}]; ok {
				it.Commission = &c
			}
			if d, ok := deliveries[it.NotificationID]; ok {
				it.Delivery = &d
			}
		}
	}
	return nil
}

// CreateRound shares an enquiry with the chosen DMCs. Inactive or unknown DMCs are skipped.
func (s *Service) CreateRound(ctx context.Context, p shared.Principal, in CreateRoundInput) (RoundResult, error) {
	ids := unique(trimAll(in.DMCIDs))
	if strings.TrimSpace(in.EnquiryID) == "" || len(ids) == 0 {
		return RoundResult{}, shared.NewError(shared.ErrValidation, "enquiryId and dmcIds are required")
	}
	enq, err := s.enquiries.Get(ctx, p, in.EnquiryID)
	if err != nil {
		return RoundResult{}, err
	}
	selected, err := s.activeDMCs(ctx, p.AgencyID, ids)
	if err != nil {
		return RoundResult{}, err
	}
	attachment, pdfURL, err := s.resolvePDF(ctx, p.AgencyID, in.ItineraryID, in.PDFPath)
	if err != nil {
		return RoundResult{}, err
	}

	now := s.now().UTC()
	round := Round{
		ID:              uuid.NewString(),
		AgencyID:        p.AgencyID,
		EnquiryID:       enq.ID,
		CustomerID:      firstNonEmpty(in.CustomerID, enq.CustomerID),
		AssignedStaffID: enq.AssignedStaffID,
		ItineraryID:     in.ItineraryID,
		PDFURL:          pdfURL,
		IsActive:        true,
		DateGenerated:   shared.FormatDate(now),
		CreatedBy:       p.UserID,
		CreatedAt:       now,
	}
	items, staged, results, err := s.stageItems(p, enq, round, selected, attachment, in.Notes)
	if err != nil {
		return RoundResult{}, err
	}
	round.Items = items

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertRound(ctx, round); err != nil {
			return err
		}
		for _, it := range items {
			if err := tx.InsertItem(ctx, it); err != nil {
				return err
			}
		}
		for _, n := range staged {
			if err := tx.StageNotification(ctx, n); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return RoundResult{}, mapErr(err)
	}

	s.dispatch(ctx, staged, results)
	s.record(ctx, p, "share_dmc.create", "shared_dmc", round.ID, map[string]any{"enquiry_id": enq.ID, "dmc_ids": dmcIDs(selected)})
	events.Emit(ctx, s.events, s.logger, events.Event{
		Type:      events.DMCShared,
		AgencyID:  p.AgencyID,
		SubjectID: round.ID,
		Payload:   map[string]any{"enquiryId": enq.ID, "dmcIds": dmcIDs(selected)},
	})
	return RoundResult{SharedDMC: round, SelectedDMCs: selected, EmailResults: results, EmailSummary: summarize(results)}, nil
}

// AddDMC appends a DMC to an existing round and stages its quote request.
func (s *Service) AddDMC(ctx context.Context, p shared.Principal, roundID, dmcID string) (RoundResult, error) {
	if strings.TrimSpace(roundID) == "" || strings.TrimSpace(dmcID) == "" {
		return RoundResult{}, shared.NewError(shared.ErrValidation, "sharedDmcId and dmcId are required")
	}
	current, err := s.repo.GetRound(ctx, p.AgencyID, roundID)
	if err != nil {
		return RoundResult{}, mapErr(err)
	}
	enq, err := s.enquiries.Get(ctx, p, current.EnquiryID)
	if err != nil {
		return RoundResult{}, err
	}
	selected, err := s.activeDMCs(ctx, p.AgencyID, []string{dmcID})
	if err != nil {
		return RoundResult{}, err
	}
	attachment, _, err := s.resolvePDF(ctx, p.AgencyID, current.ItineraryID, current.PDFURL)
	if err != nil {
		return RoundResult{}, err
	}
	items, staged, results, err := s.stageItems(p, enq, current, selected, attachment, "")
	if err != nil {
		return RoundResult{}, err
	}

	var round Round
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.LockRound(ctx, p.AgencyID, roundID)
		if err != nil {
			return err
		}
		for _, it := range locked.Items {
			if it.DMCID == dmcID {
				return ErrAlreadyInRound
			}
		}
		for _, it := range items {
			if err := tx.InsertItem(ctx, it); err != nil {
				return err
			}
		}
		for _, n := range staged {
			if err := tx.StageNotification(ctx, n); err != nil {
				return err
			}
		}
		locked.Items = append(locked.Items, items...)
		round = locked
		return nil
	})
	if err != nil {
		return RoundResult{}, mapErr(err)
	}

	s.dispatch(ctx, staged, results)
	s.record(ctx, p, "share_dmc.add_dmc", "shared_dmc", round.ID, map[string]any{"dmc_id": dmcID})
	events.Emit(ctx, s.events, s.logger, events.Event{
		Type:      events.DMCShared,
		AgencyID:  p.AgencyID,
		SubjectID: round.ID,
		Payload:   map[string]any{"enquiryId": round.EnquiryID, "dmcIds": []string{dmcID}},
	})
	return RoundResult{SharedDMC: round, SelectedDMCs: selected, EmailResults: results, EmailSummary: summarize(results)}, nil
}

// ToggleActive flips or sets a round's active flag.
func (s *Service) ToggleActive(ctx context.Context, p shared.Principal, roundID string, active *bool) (Round, error) {
	var round Round
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.LockRound(ctx, p.AgencyID, roundID)
		if err != nil {
			return err
		}
		next := !locked.IsActive
		if active != nil {
			next = *active
		}
		if err := tx.SetRoundActive(ctx, roundID, next); err != nil {
			return err
		}
		locked.IsActive = next
		round = locked
		return nil
	})
	if err != nil {
		return Round{}, mapErr(err)
	}
	s.record(ctx, p, "share_dmc.toggle_active", "shared_dmc", roundID, map[string]any{"is_active": round.IsActive})
	return round, nil
}

// UpdateItemStatus overwrites an item's status with any of the five values.
func (s *Service) UpdateItemStatus(ctx context.Context, p shared.Principal, itemID string, status ItemStatus, notes string) (Item, error) {
	if !status.Valid() {
		return Item{}, shared.NewError(shared.ErrValidation, fmt.Sprintf("%s %q", ErrInvalidItemStatus.Error(), status))
	}
	var item Item
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		item, err = tx.UpdateItemStatus(ctx, p.AgencyID, itemID, status, strings.TrimSpace(notes))
		return err
	})
	if err != nil {
		return Item{}, mapErr(err)
	}
	s.record(ctx, p, "share_dmc.update_status", "shared_dmc_item", itemID, map[string]any{"status": string(status)})
	return item, nil
}

// AddCommission creates or updates the commission for (enquiry, DMC).
func (s *Service) AddCommission(ctx context.Context, p shared.Principal, in CommissionInput) (Commission, error) {
	if strings.TrimSpace(in.EnquiryID) == "" || strings.TrimSpace(in.DMCID) == "" {
		return Commission{}, shared.NewError(shared.ErrValidation, "enquiryId and dmcId are required")
	}
	if in.QuotationAmount < 0 || in.CommissionAmount < 0 || (in.MarkupPrice != nil && *in.MarkupPrice < 0) {
		return Commission{}, shared.NewError(shared.ErrValidation, "amounts must not be negative")
	}
	kind := strings.ToUpper(strings.TrimSpace(in.CommissionType))
	if kind == "" {
		kind = CommissionFixed
	}
	if kind != CommissionFixed && kind != CommissionPercentage {
		return Commission{}, shared.NewError(shared.ErrValidation, "commissionType must be FIXED or PERCENTAGE")
	}
	if _, err := s.enquiries.Get(ctx, p, in.EnquiryID); err != nil {
		return Commission{}, err
	}
	var markup shared.Money
	if in.MarkupPrice != nil {
		markup = *in.MarkupPrice
	} else {
		derived, err := Markup(in.QuotationAmount, kind, in.CommissionAmount)
		if err != nil {
			return Commission{}, shared.NewError(shared.ErrValidation, "markup price is out of range")
		}
		markup = derived
	}
	now := s.now().UTC()
	c := Commission{
		ID:               uuid.NewString(),
		AgencyID:         p.AgencyID,
		EnquiryID:        in.EnquiryID,
		DMCID:            in.DMCID,
		QuotationAmount:  in.QuotationAmount,
		CommissionType:   kind,
		CommissionAmount: in.CommissionAmount,
		MarkupPrice:      markup,
		Comments:         strings.TrimSpace(in.Comments),
		UpdatedBy:        p.UserID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	var saved Commission
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		saved, err = tx.UpsertCommission(ctx, c)
		return err
	})
	if err != nil {
		return Commission{}, mapErr(err)
	}
	s.record(ctx, p, "commission.upsert", "commission", saved.ID, map[string]any{
		"enquiry_id": saved.EnquiryID, "dmc_id": saved.DMCID, "markup": saved.MarkupPrice.String(),
	})
	return saved, nil
}

// ShareToCustomer emails the customer the marked-up quote of one DMC.
// customerQuote finds the enquiry and commission a customer share prices from.
// Without an enquiry id the customer's most recently updated commission for
// the DMC decides the enquiry.
func (s *Service) customerQuote(ctx context.Context, p shared.Principal, in ShareCustomerInput) (enquiries.Enquiry, Commission, error) {
	enquiryID := strings.TrimSpace(in.EnquiryID)
	customerID := strings.TrimSpace(in.CustomerID)
	switch {
	case enquiryID != "":
		enq, err := s.enquiries.Get(ctx, p, enquiryID)
		if err != nil {
			return enquiries.Enquiry{}, Commission{}, err
		}
		c, err := s.repo.GetCommission(ctx, p.AgencyID, enq.ID, in.DMCID)
		return enq, c, err
	case customerID != "":
		c, err := s.repo.LatestCustomerCommission(ctx, p.AgencyID, customerID, in.DMCID)
		if err != nil {
			return enquiries.Enquiry{}, Commission{}, err
		}
		enq, err := s.enquiries.Get(ctx, p, c.EnquiryID)
		return enq, c, err
	default:
		return enquiries.Enquiry{}, Commission{}, shared.NewError(shared.ErrValidation, "enquiryId or customerId is required")
	}
}

func (s *Service) ShareToCustomer(ctx context.Context, p shared.Principal, in ShareCustomerInput) (ShareCustomerResult, error) {
	if strings.TrimSpace(in.DMCID) == "" {
		return ShareCustomerResult{}, shared.NewError(shared.ErrValidation, "dmcId is required")
	}
	enq, commission, err := s.customerQuote(ctx, p, in)
	if errors.Is(err, ErrCommissionNotFound) {
		return ShareCustomerResult{}, shared.NewError(shared.ErrValidation, "set margin first")
	}
	if err != nil {
		return ShareCustomerResult{}, err
	}
	customerID := firstNonEmpty(in.CustomerID, enq.CustomerID)

	name, email := enq.Name, enq.Email
	if customerID != "" {
		c, err := s.customers.Get(ctx, p, customerID)
		if err != nil {
			return ShareCustomerResult{}, err
		}
		name, email = firstNonEmpty(c.Name, name), firstNonEmpty(c.Email, email)
	}
	if email == "" {
		return ShareCustomerResult{}, shared.NewError(shared.ErrValidation, "customer has no email address")
	}

	attachment, pdfURL, err := s.resolvePDF(ctx, p.AgencyID, in.ItineraryID, in.PDFPath)
	if err != nil {
		return ShareCustomerResult{}, err
	}
	html, err := s.views.RenderString(view.EmailCustomerQuote, map[string]any{
		"CustomerName":  name,
		"Destination":   enq.Locations,
		"Price":         commission.MarkupPrice.Display(enq.Currency),
		"Notes":         in.Notes,
		"HasAttachment": attachment != nil,
		"AgencyName":    s.brand,
	})
	if err != nil {
		return ShareCustomerResult{}, fmt.Errorf("render customer quote: %w", err)
	}

	share := CustomerShare{
		ID:          uuid.NewString(),
		AgencyID:    p.AgencyID,
		CustomerID:  customerID,
		EnquiryID:   enq.ID,
		DMCID:       in.DMCID,
		ItineraryID: in.ItineraryID,
		Recipient:   email,
		PDFURL:      pdfURL,
		MarkupPrice: commission.MarkupPrice,
		Currency:    enq.Currency,
		SentBy:      p.UserID,
		CreatedAt:   s.now().UTC(),
	}
	n := outbox.New(outbox.Draft{
		AgencyID:    p.AgencyID,
		Kind:        outbox.KindCustomerQuote,
		Recipient:   email,
		Subject:     fmt.Sprintf("Your %s trip quotation", firstNonEmpty(enq.Locations, "travel")),
		HTML:        html,
		SubjectType: outbox.SubjectSharedCustomerPDF,
		SubjectID:   share.ID,
		Attachments: attachments(attachment),
	})
	share.NotificationID = n.ID

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.InsertCustomerShare(ctx, share); err != nil {
			return err
		}
		return tx.StageNotification(ctx, n)
	})
	if err != nil {
		return ShareCustomerResult{}, mapErr(err)
	}

	results := []EmailResult{{Email: email, Queued: true, NotificationID: n.ID}}
	s.dispatch(ctx, []outbox.Notification{n}, results)
	share.EmailSent = results[0].Sent
	s.record(ctx, p, "share_customer.create", "shared_customer_pdf", share.ID, map[string]any{
		"dmc_id": in.DMCID, "customer_id": customerID, "markup": commission.MarkupPrice.String(),
	})
	return ShareCustomerResult{
		Share:      share,
		Commission: commission,
		Notification: NotificationResult{
			ID:        n.ID,
			Recipient: email,
			Queued:    true,
			Sent:      results[0].Sent,
			Error:     results[0].Error,
		},
	}, nil
}

func (s *Service) activeDMCs(ctx context.Context, agencyID string, ids []string) ([]dmcs.DMC, error) {
	list, err := s.dmcs.GetMany(ctx, agencyID, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]dmcs.DMC, len(list))
	for _, d := range list {
		byID[d.ID] = d
	}
	selected := make([]dmcs.DMC, 0, len(ids))
	for _, id := range ids {
		if d, ok := byID[id]; ok && d.Active() {
			selected = append(selected, d)
		}
	}
	if len(selected) == 0 {
		return nil, shared.NewError(shared.ErrValidation, ErrNoActiveDMCs.Error())
	}
	return selected, nil
}

// stageItems builds one item per DMC and a pending notification for each DMC with an email.
func (s *Service) stageItems(p shared.Principal, enq enquiries.Enquiry, round Round, selected []dmcs.DMC, attachment *outbox.AttachmentRef, notes string) ([]Item, []outbox.Notification, []EmailResult, error) {
	now := s.now().UTC()
	items := make([]Item, 0, len(selected))
	results := make([]EmailResult, 0, len(selected))
	var staged []outbox.Notification
	for _, d := range selected {
		item := Item{
			ID:        uuid.NewString(),
			RoundID:   round.ID,
			DMCID:     d.ID,
			Status:    ItemAwaitingTransfer,
			UpdatedAt: now,
			DMC:       &d,
		}
		result := EmailResult{DMCID: d.ID, DMCName: d.Name, Email: d.Email}
		if strings.TrimSpace(d.Email) == "" {
			result.Error = errNoEmail
		} else {
			html, err := s.views.RenderString(view.EmailDMCShare, map[string]any{
				"DMCName":       firstNonEmpty(d.ContactPerson, d.Name),
				"CustomerName":  enq.Name,
				"Destination":   enq.Locations,
				"TravelDates":   enq.EstimatedDates,
				"Travelers":     enq.Travellers + enq.Kids,
				"Budget":        budget(enq),
				"Notes":         firstNonEmpty(notes, enq.Notes),
				"HasAttachment": attachment != nil,
				"AgencyName":    s.brand,
			})
			if err != nil {
				return nil, nil, nil, fmt.Errorf("render dmc share email: %w", err)
			}
			n := outbox.New(outbox.Draft{
				AgencyID:    p.AgencyID,
				Kind:        outbox.KindDMCShare,
				Recipient:   d.Email,
				Subject:     fmt.Sprintf("Quotation request: %s for %s", firstNonEmpty(enq.Locations, "trip"), enq.Name),
				HTML:        html,
				SubjectType: outbox.SubjectSharedDMCItem,
				SubjectID:   item.ID,
				Attachments: attachments(attachment),
			})
			item.NotificationID = n.ID
			result.Queued = true
			result.NotificationID = n.ID
			staged = append(staged, n)
		}
		items = append(items, item)
		results = append(results, result)
	}
	return items, staged, results, nil
}

// dispatch publishes committed notifications and folds delivery state into results.
func (s *Service) dispatch(ctx context.Context, staged []outbox.Notification, results []EmailResult) {
	if len(staged) == 0 || s.outbox == nil {
		return
	}
	ids := make([]string, len(staged))
	for i, n := range staged {
		ids[i] = n.ID
	}
	if err := s.outbox.Publish(ctx, ids...); err != nil {
		s.logger.Warn("publish notifications", slog.Int("count", len(ids)), slog.Any("error", err))
	}
	if s.deliveries == nil {
		return
	}
	state, err := s.deliveries.Deliveries(ctx, ids)
	if err != nil {
		s.logger.Warn("read delivery state", slog.Any("error", err))
		return
	}
	for i := range results {
		d, ok := state[results[i].NotificationID]
		if !ok {
			continue
		}
		switch d.Status {
		case outbox.StatusSent:
			results[i].Sent = true
		case outbox.StatusFailed:
			results[i].Queued = false
			results[i].Error = d.LastError
		}
	}
}

// resolvePDF picks the first attachable PDF: itinerary active version, legacy pdf url, then pdfPath.
func (s *Service) resolvePDF(ctx context.Context, agencyID, itineraryID, pdfPath string) (*outbox.AttachmentRef, string, error) {
	var refs []itineraries.PDFRef
	if itineraryID = strings.TrimSpace(itineraryID); itineraryID != "" && s.itineraries != nil {
		candidates, err := s.itineraries.PDFCandidates(ctx, agencyID, itineraryID)
		if err != nil {
			return nil, "", err
		}
		refs = append(refs, candidates...)
	}
	if pdfPath = strings.TrimSpace(pdfPath); pdfPath != "" {
		refs = append(refs, itineraries.PDFRef{URL: pdfPath})
	}
	for _, ref := range refs {
		if att, ok := s.attachable(ref); ok {
			return &att, ref.URL, nil
		}
	}
	return nil, "", nil
}

func (s *Service) attachable(ref itineraries.PDFRef) (outbox.AttachmentRef, bool) {
	name := ref.Filename
	if name == "" {
		name = path.Base(strings.SplitN(ref.URL, "?", 2)[0])
	}
	if !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		name = "itinerary.pdf"
	}
	att := outbox.AttachmentRef{Filename: name, ContentType: "application/pdf"}
	key := ref.StorageKey
	if key == "" {
		key, _ = storage.ResolveKey(s.storage, ref.URL)
	}
	if key != "" {
		att.StorageKey = key
		return att, true
	}
	if local, ok := outbox.RelativeLocal(s.publicDir, ref.URL); ok {
		att.LocalPath = local
		return att, true
	}
	return outbox.AttachmentRef{}, false
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
		s.logger.Warn("audit sharing", slog.String("action", action), slog.Any("error", err))
	}
}

func summarize(results []EmailResult) EmailSummary {
	sum := EmailSummary{Total: len(results)}
	for _, r := range results {
		switch {
		case r.Sent:
			sum.Sent++
			sum.Queued++
		case r.Queued:
			sum.Queued++
		}
		if r.Error != "" {
			sum.Failed++
		}
	}
	return sum
}

func attachments(att *outbox.AttachmentRef) []outbox.AttachmentRef {
	if att == nil {
		return nil
	}
	return []outbox.AttachmentRef{*att}
}

func budget(e enquiries.Enquiry) string {
	if e.Budget <= 0 {
		return ""
	}
	return e.Budget.Display(e.Currency)
}

func dmcIDs(list []dmcs.DMC) []string {
	out := make([]string, len(list))
	for i, d := range list {
		out[i] = d.ID
	}
	return out
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func unique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
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
	case errors.Is(err, ErrRoundNotFound), errors.Is(err, ErrItemNotFound), errors.Is(err, ErrCommissionNotFound):
		return shared.NewError(shared.ErrNotFound, err.Error())
	case errors.Is(err, ErrAlreadyInRound):
		return shared.NewError(shared.ErrConflict, err.Error())
	default:
		return err
	}
}
