package customers

import (
	"errors"
	"time"

	"github.com/wayfarer-ops/wayfarer/internal/shared"
)

var (
	ErrNotFound         = errors.New("customer not found")
	ErrFeedbackNotFound = errors.New("feedback not found")
	ErrEmailTaken       = errors.New("customer email already registered")
)

type Customer struct {
	ID        string    `json:"id"`
	AgencyID  string    `json:"agencyId"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedBy string    `json:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ItinerarySummary is an itinerary of one of the customer's enquiries.
type ItinerarySummary struct {
	ID               string    `json:"id"`
	EnquiryID        string    `json:"enquiryId"`
	Title            string    `json:"title"`
	Destination      string    `json:"destination"`
	Status           string    `json:"status"`
	ActivePDFURL     string    `json:"activePdfUrl,omitempty"`
	ActivePDFVersion int       `json:"activePdfVersion"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// SentItinerary is one quote emailed to the customer.
type SentItinerary struct {
	ID             string       `json:"id"`
	EnquiryID      string       `json:"enquiryId,omitempty"`
	DMCID          string       `json:"dmcId"`
	DMCName        string       `json:"dmcName,omitempty"`
	ItineraryID    string       `json:"itineraryId,omitempty"`
	PDFURL         string       `json:"pdfUrl,omitempty"`
	MarkupPrice    shared.Money `json:"markupPrice"`
	Currency       string       `json:"currency"`
	EmailSent      bool         `json:"emailSent"`
	EmailSentAt    *time.Time   `json:"emailSentAt,omitempty"`
	NotificationID string       `json:"notificationId,omitempty"`
	DeliveryStatus string       `json:"deliveryStatus,omitempty"`
	SentBy         string       `json:"sentBy,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
}

type Feedback struct {
	ID          string    `json:"id"`
	AgencyID    string    `json:"agencyId"`
	CustomerID  string    `json:"customerId"`
	ItineraryID string    `json:"itineraryId"`
	Rating      int       `json:"rating"`
	Comment     string    `json:"comment"`
	CreatedBy   string    `json:"createdBy,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Overview is the GET /api/share-customer aggregate.
type Overview struct {
	Customer        Customer           `json:"customer"`
	Itineraries     []ItinerarySummary `json:"itineraries"`
	SentItineraries []SentItinerary    `json:"sentItineraries"`
	Feedback        []Feedback         `json:"feedback"`
}
