package itineraries

import (
	"errors"
	"time"
)

// Itinerary statuses.
const (
	StatusDraft     = "draft"
	StatusGenerated = "generated"
)

// Error codes returned by PDF generation.
const (
	CodeTemplateNotFound     = "TEMPLATE_NOT_FOUND"
	CodeDayPlanNotFound      = "DAYPLAN_NOT_FOUND"
	CodeStorageNotConfigured = "STORAGE_NOT_CONFIGURED"
	CodeRenderFailed         = "RENDER_FAILED"
	CodeUploadFailed         = "UPLOAD_FAILED"
)

var (
	// ErrNotFound indicates the itinerary is unknown to the caller's agency.
	ErrNotFound = errors.New("itinerary not found")
	// ErrVersionNotFound indicates the PDF version does not belong to the itinerary.
	ErrVersionNotFound = errors.New("pdf version not found")
	// ErrGeneration groups integration failures of PDF generation.
	ErrGeneration = errors.New("itinerary generation failed")
)

// Itinerary is the customer-facing trip document for an enquiry.
type Itinerary struct {
	ID               string    `json:"id"`
	AgencyID         string    `json:"agencyId"`
	EnquiryID        string    `json:"enquiryId"`
	Title            string    `json:"title"`
	Destination      string    `json:"destination"`
	Status           string    `json:"status"`
	PDFURL           string    `json:"pdfUrl,omitempty"`
	ActivePDFURL     string    `json:"activePdfUrl,omitempty"`
	ActivePDFKey     string    `json:"-"`
	ActivePDFVersion int       `json:"activePdfVersion"`
	CreatedBy        string    `json:"createdBy,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// PDFVersion is one generated snapshot of an itinerary.
type PDFVersion struct {
	ID          string    `json:"id"`
	ItineraryID string    `json:"itineraryId"`
	Version     int       `json:"version"`
	URL         string    `json:"url"`
	StorageKey  string    `json:"s3Key"`
	Filename    string    `json:"filename"`
	FileSize    int64     `json:"fileSize"`
	IsEdited    bool      `json:"isEdited"`
	IsActive    bool      `json:"isActive"`
	CreatedBy   string    `json:"createdBy,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// CreateInput registers an itinerary for an enquiry.
type CreateInput struct {
	EnquiryID   string `json:"enquiryId" validate:"required"`
	Title       string `json:"title" validate:"max=200"`
	Destination string `json:"destination" validate:"max=200"`
}

// FormData overrides enquiry values printed on the PDF.
type FormData struct {
	Title        string `json:"title"`
	CustomerName string `json:"customerName"`
	Destination  string `json:"destination"`
	TravelDates  string `json:"travelDates"`
	Travelers    int    `json:"travelers" validate:"gte=0"`
	Notes        string `json:"notes"`
	IsEdited     bool   `json:"isEdited"`
}

// GenerateInput is the body of POST /api/generate-pdf.
type GenerateInput struct {
	EnquiryID   string   `json:"enquiryId" validate:"required"`
	ItineraryID string   `json:"itineraryId" validate:"required"`
	FormData    FormData `json:"formData"`
}

// GenerateResult reports the new active version.
type GenerateResult struct {
	PDFURL    string `json:"pdfUrl"`
	Version   int    `json:"version"`
	VersionID string `json:"versionId"`
	DayPlan   string `json:"dayPlan"`
}

// PDFRef identifies the PDF to attach when sharing an itinerary.
type PDFRef struct {
	URL        string
	StorageKey string
	Filename   string
}

type pdfData struct {
	Title       string
	Customer    string
	Destination string
	TravelDates string
	Travelers   int
	Package     PackageInfo
	Days        []Day
	Notes       string
	Version     int
	GeneratedAt string
}
