// Package sharing dispatches quote requests to DMCs, records commissions and
// shares the marked-up quote with the customer.
package sharing

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wayfarer-ops/wayfarer/internal/dmcs"
	"github.com/wayfarer-ops/wayfarer/internal/outbox"
	"github.com/wayfarer-ops/wayfarer/internal/shared"
)

// ItemStatus tracks one DMC's progress within a round.
type ItemStatus string

const (
	ItemAwaitingTransfer       ItemStatus = "AWAITING_TRANSFER"
	ItemViewed                 ItemStatus = "VIEWED"
	ItemAwaitingInternalReview ItemStatus = "AWAITING_INTERNAL_REVIEW"
	ItemQuotationReceived      ItemStatus = "QUOTATION_RECEIVED"
	ItemRejected               ItemStatus = "REJECTED"
)

// Valid reports whether s is one of the five item statuses.
func (s ItemStatus) Valid() bool {
	switch s {
	case ItemAwaitingTransfer, ItemViewed, ItemAwaitingInternalReview, ItemQuotationReceived, ItemRejected:
		return true
	}
	return false
}

// Commission types.
const (
	CommissionFixed      = "FIXED"
	CommissionPercentage = "PERCENTAGE"
)

// Update actions accepted by PUT /api/share-dmc.
const (
	ActionToggleActive    = "toggleActive"
	ActionUpdateDMCStatus = "updateDMCStatus"
	ActionAddCommission   = "addCommission"
	ActionShareToCustomer = "shareToCustomer"
	ActionAddDMC          = "addDMC"
)

const errNoEmail = "DMC has no email address"

var (
	ErrRoundNotFound      = errors.New("shared dmc round not found")
	ErrItemNotFound       = errors.New("shared dmc item not found")
	ErrCommissionNotFound = errors.New("commission not found")
	ErrNoActiveDMCs       = errors.New("no active DMCs selected")
	ErrAlreadyInRound     = errors.New("dmc already part of this round")
	ErrInvalidItemStatus  = errors.New("invalid shared dmc status")
)

// Round is one share-to-DMC dispatch for an enquiry.
type Round struct {
	ID              string    `json:"id"`
	AgencyID        string    `json:"agencyId"`
	EnquiryID       string    `json:"enquiryId"`
	CustomerID      string    `json:"customerId,omitempty"`
	AssignedStaffID string    `json:"assignedStaffId,omitempty"`
	ItineraryID     string    `json:"itineraryId,omitempty"`
	PDFURL          string    `json:"pdfUrl,omitempty"`
	IsActive        bool      `json:"isActive"`
	DateGenerated   string    `json:"dateGenerated"`
	CreatedBy       string    `json:"createdBy,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	Items           []Item    `json:"sharedDMCs"`
}

// Item is one DMC within a round.
type Item struct {
	ID             string           `json:"id"`
	RoundID        string           `json:"sharedDmcId"`
	DMCID          string           `json:"dmcId"`
	Status         ItemStatus       `json:"status"`
	Notes          string           `json:"notes,omitempty"`
	NotificationID string           `json:"notificationId,omitempty"`
	UpdatedAt      time.Time        `json:"updatedAt"`
	DMC            *dmcs.DMC        `json:"dmc,omitempty"`
	Commission     *Commission      `json:"commission,omitempty"`
	Delivery       *outbox.Delivery `json:"delivery,omitempty"`
}

// Commission is the agency's markup on a DMC quote, unique per (enquiry, DMC).
type Commission struct {
	ID               string       `json:"id"`
	AgencyID         string       `json:"agencyId"`
	EnquiryID        string       `json:"enquiryId"`
	DMCID            string       `json:"dmcId"`
	QuotationAmount  shared.Money `json:"quotationAmount"`
	CommissionType   string       `json:"commissionType"`
	CommissionAmount shared.Money `json:"commissionAmount"`
	MarkupPrice      shared.Money `json:"markupPrice"`
	Comments         string       `json:"comments,omitempty"`
	UpdatedBy        string       `json:"updatedBy,omitempty"`
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

// CustomerShare records a quote emailed to a customer.
type CustomerShare struct {
	ID             string       `json:"id"`
	AgencyID       string       `json:"agencyId"`
	CustomerID     string       `json:"customerId,omitempty"`
	EnquiryID      string       `json:"enquiryId,omitempty"`
	DMCID          string       `json:"dmcId"`
	ItineraryID    string       `json:"itineraryId,omitempty"`
	Recipient      string       `json:"recipient"`
	PDFURL         string       `json:"pdfUrl,omitempty"`
	MarkupPrice    shared.Money `json:"markupPrice"`
	Currency       string       `json:"currency"`
	EmailSent      bool         `json:"emailSent"`
	NotificationID string       `json:"notificationId,omitempty"`
	SentBy         string       `json:"sentBy,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// EmailResult reports what happened to one DMC's quote request.
type EmailResult struct {
	DMCID          string `json:"dmcId"`
	DMCName        string `json:"dmcName"`
	Email          string `json:"email"`
	Queued         bool   `json:"queued"`
	Sent           bool   `json:"sent"`
	Error          string `json:"error,omitempty"`
	NotificationID string `json:"notificationId,omitempty"`
}

// EmailSummary counts the outcomes of a round.
type EmailSummary struct {
	Total  int `json:"total"`
	Queued int `json:"queued"`
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// CreateRoundInput is the body of POST /api/share-dmc.
type CreateRoundInput struct {
	EnquiryID   string   `json:"enquiryId" validate:"required"`
	CustomerID  string   `json:"customerId"`
	DMCIDs      []string `json:"dmcIds" validate:"required,min=1"`
	ItineraryID string   `json:"itineraryId"`
	PDFPath     string   `json:"pdfPath"`
	Notes       string   `json:"notes" validate:"max=4000"`
}

// RoundResult is returned after creating a round or adding a DMC to one.
type RoundResult struct {
	SharedDMC    Round         `json:"sharedDMC"`
	SelectedDMCs []dmcs.DMC    `json:"selectedDMCs"`
	EmailResults []EmailResult `json:"emailResults"`
	EmailSummary EmailSummary  `json:"emailSummary"`
}

// UpdateRequest is the body of PUT /api/share-dmc; Action selects which fields apply.
type UpdateRequest struct {
	Action           string        `json:"action" validate:"required,oneof=toggleActive updateDMCStatus addCommission shareToCustomer addDMC"`
	SharedDMCID      string        `json:"sharedDmcId"`
	ItemID           string        `json:"itemId"`
	IsActive         *bool         `json:"isActive"`
	Status           ItemStatus    `json:"status"`
	Notes            string        `json:"notes"`
	EnquiryID        string        `json:"enquiryId"`
	CustomerID       string        `json:"customerId"`
	DMCID            string        `json:"dmcId"`
	ItineraryID      string        `json:"itineraryId"`
	PDFPath          string        `json:"pdfPath"`
	QuotationAmount  shared.Money  `json:"quotationAmount"`
	CommissionType   string        `json:"commissionType"`
	CommissionAmount shared.Money  `json:"commissionAmount"`
	MarkupPrice      *shared.Money `json:"markupPrice"`
	Comments         string        `json:"comments"`
}

// CommissionInput upserts a commission.
type CommissionInput struct {
	EnquiryID        string        `validate:"required"`
	DMCID            string        `validate:"required"`
	QuotationAmount  shared.Money  `validate:"gte=0"`
	CommissionType   string        `validate:"omitempty,oneof=FIXED PERCENTAGE"`
	CommissionAmount shared.Money  `validate:"gte=0"`
	MarkupPrice      *shared.Money `validate:"omitempty"`
	Comments         string        `validate:"max=2000"`
}

// ShareCustomerInput shares a DMC quote with the customer.
type ShareCustomerInput struct {
	EnquiryID   string
	CustomerID  string
	DMCID       string `validate:"required"`
	ItineraryID string
	PDFPath     string
	Notes       string
}

// NotificationResult reports a staged customer email.
type NotificationResult struct {
	ID        string `json:"id,omitempty"`
	Recipient string `json:"recipient"`
	Queued    bool   `json:"queued"`
	Sent      bool   `json:"sent"`
	Error     string `json:"error,omitempty"`
}

// ShareCustomerResult is returned by shareToCustomer.
type ShareCustomerResult struct {
	Share        CustomerShare      `json:"sharedCustomerPdf"`
	Commission   Commission         `json:"commission"`
	Notification NotificationResult `json:"notification"`
}

// Overview is the GET /api/share-dmc payload.
type Overview struct {
	Rounds        []Round    `json:"sharedDMCs"`
	AvailableDMCs []dmcs.DMC `json:"availableDMCs"`
}

// RoundFilter scopes round listings.
type RoundFilter struct {
	AgencyID   string
	EnquiryID  string
	CustomerID string
}

// Markup derives the customer price from a commission when none is given.
func Markup(quotation shared.Money, kind string, amount shared.Money) (shared.Money, error) {
	if kind == CommissionPercentage {
		// amount holds the percentage in hundredths, so 10.00 means 10%.
		pct := amount.Decimal().Div(decimal.NewFromInt(100))
		return shared.MoneyFromDecimal(quotation.Decimal().Mul(decimal.NewFromInt(1).Add(pct)))
	}
	return quotation.Add(amount)
}
