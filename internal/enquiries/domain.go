package enquiries

import (
	"errors"
	"time"

	"github.com/wayfarer-ops/wayfarer/internal/shared"
)

var (
	// ErrNotFound indicates the enquiry does not exist or is archived.
	ErrNotFound = errors.New("enquiry not found")
	// ErrInvalidStatus indicates an unknown status value.
	ErrInvalidStatus = errors.New("invalid enquiry status")
	// ErrTransitionNotAllowed indicates the move is outside the transition table.
	ErrTransitionNotAllowed = errors.New("status transition not allowed")
)

// Currencies accepted on enquiries.
var Currencies = []string{"USD", "EUR", "GBP", "INR"}

// Enquiry is a customer's travel request flowing through the pipeline.
type Enquiry struct {
	ID                string       `json:"id"`
	AgencyID          string       `json:"agencyId"`
	CustomerID        string       `json:"customerId,omitempty"`
	Name              string       `json:"name"`
	Phone             string       `json:"phone"`
	Email             string       `json:"email"`
	Locations         string       `json:"locations"`
	TourType          string       `json:"tourType,omitempty"`
	EstimatedDates    string       `json:"estimatedDates,omitempty"`
	Currency          string       `json:"currency"`
	Budget            shared.Money `json:"budget"`
	Notes             string       `json:"notes,omitempty"`
	AssignedStaffID   string       `json:"assignedStaff,omitempty"`
	PointOfContact    string       `json:"pointOfContact,omitempty"`
	PickupLocation    string       `json:"pickupLocation,omitempty"`
	DropLocation      string       `json:"dropLocation,omitempty"`
	Travellers        int          `json:"numberOfTravellers"`
	Kids              int          `json:"numberOfKids"`
	TravelingWithPets bool         `json:"travelingWithPets"`
	FlightsRequired   bool         `json:"flightsRequired"`
	LeadSource        string       `json:"leadSource,omitempty"`
	Tags              []string     `json:"tags"`
	MustSeeSpots      []string     `json:"mustSeeSpots"`
	Status            Status       `json:"status"`
	EnquiryDate       string       `json:"enquiryDate"`
	CreatedBy         string       `json:"createdBy,omitempty"`
	ArchivedAt        *time.Time   `json:"archivedAt,omitempty"`
	CreatedAt         time.Time    `json:"createdAt"`
	UpdatedAt         time.Time    `json:"updatedAt"`
}

// CreateInput is the payload accepted when staff create an enquiry.
type CreateInput struct {
	Name              string       `json:"name" validate:"required,max=160"`
	Phone             string       `json:"phone" validate:"required,len=10,numeric"`
	Email             string       `json:"email" validate:"required,email"`
	Locations         string       `json:"locations" validate:"max=500"`
	TourType          string       `json:"tourType"`
	EstimatedDates    string       `json:"estimatedDates"`
	Currency          string       `json:"currency" validate:"omitempty,oneof=USD EUR GBP INR"`
	Budget            shared.Money `json:"budget" validate:"gte=0"`
	Notes             string       `json:"notes"`
	AssignedStaffID   string       `json:"assignedStaff"`
	CustomerID        string       `json:"customerId"`
	PointOfContact    string       `json:"pointOfContact"`
	PickupLocation    string       `json:"pickupLocation"`
	DropLocation      string       `json:"dropLocation"`
	Travellers        int          `json:"numberOfTravellers" validate:"gte=0"`
	Kids              int          `json:"numberOfKids" validate:"gte=0"`
	TravelingWithPets bool         `json:"travelingWithPets"`
	FlightsRequired   bool         `json:"flightsRequired"`
	LeadSource        string       `json:"leadSource"`
	Tags              []string     `json:"tags"`
	MustSeeSpots      []string     `json:"mustSeeSpots"`
}

// UpdateInput carries a status move and/or field edits. Nil fields are left unchanged.
type UpdateInput struct {
	ID              string        `json:"id" validate:"required"`
	Status          *Status       `json:"status"`
	Name            *string       `json:"name" validate:"omitempty,max=160"`
	Phone           *string       `json:"phone" validate:"omitempty,len=10,numeric"`
	Email           *string       `json:"email" validate:"omitempty,email"`
	Locations       *string       `json:"locations"`
	TourType        *string       `json:"tourType"`
	EstimatedDates  *string       `json:"estimatedDates"`
	Currency        *string       `json:"currency" validate:"omitempty,oneof=USD EUR GBP INR"`
	Budget          *shared.Money `json:"budget" validate:"omitempty,gte=0"`
	Notes           *string       `json:"notes"`
	AssignedStaffID *string       `json:"assignedStaff"`
	PointOfContact  *string       `json:"pointOfContact"`
	Tags            []string      `json:"tags"`
	MustSeeSpots    []string      `json:"mustSeeSpots"`
}

// HasEdits reports whether any non-status field is set.
func (in UpdateInput) HasEdits() bool {
	return in.Name != nil || in.Phone != nil || in.Email != nil || in.Locations != nil ||
		in.TourType != nil || in.EstimatedDates != nil || in.Currency != nil || in.Budget != nil ||
		in.Notes != nil || in.AssignedStaffID != nil || in.PointOfContact != nil ||
		in.Tags != nil || in.MustSeeSpots != nil
}

func (in UpdateInput) apply(e *Enquiry) {
	if in.Name != nil {
		e.Name = *in.Name
	}
	if in.Phone != nil {
		e.Phone = *in.Phone
	}
	if in.Email != nil {
		e.Email = *in.Email
	}
	if in.Locations != nil {
		e.Locations = *in.Locations
	}
	if in.TourType != nil {
		e.TourType = *in.TourType
	}
	if in.EstimatedDates != nil {
		e.EstimatedDates = *in.EstimatedDates
	}
	if in.Currency != nil {
		e.Currency = *in.Currency
	}
	if in.Budget != nil {
		e.Budget = *in.Budget
	}
	if in.Notes != nil {
		e.Notes = *in.Notes
	}
	if in.AssignedStaffID != nil {
		e.AssignedStaffID = *in.AssignedStaffID
	}
	if in.PointOfContact != nil {
		e.PointOfContact = *in.PointOfContact
	}
	if in.Tags != nil {
		e.Tags = in.Tags
	}
	if in.MustSeeSpots != nil {
		e.MustSeeSpots = in.MustSeeSpots
	}
}

// ListFilter narrows enquiry listings.
type ListFilter struct {
	AgencyID        string
	Status          Status
	AssignedStaffID string
	Search          string
	Page            shared.PageRequest
}

// Column is one lane of the status board.
type Column struct {
	Status    Status    `json:"status"`
	Label     string    `json:"label"`
	Count     int       `json:"count"`
	Enquiries []Enquiry `json:"enquiries"`
}

// MoveResult reports the outcome of a status change.
type MoveResult struct {
	Enquiry    Enquiry `json:"enquiry"`
	From       Status  `json:"from"`
	To         Status  `json:"to"`
	Overridden bool    `json:"overridden"`
}
