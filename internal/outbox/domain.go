// Package outbox stages email notifications inside business transactions and
// delivers them after commit, either through the job queue or inline.
package outbox

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the notification template family.
type Kind string

const (
	KindDMCShare      Kind = "dmc_share"
	KindCustomerQuote Kind = "customer_quote"
	KindPaymentNotice Kind = "payment_notice"
)

// Status is the delivery state of a notification.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSent    Status = "SENT"
	StatusFailed  Status = "FAILED"
)

// Subject types linking a notification back to its aggregate.
const (
	SubjectSharedDMCItem     = "shared_dmc_item"
	SubjectSharedCustomerPDF = "shared_customer_pdf"
	SubjectPayment           = "payment"
)

var (
	// ErrNotFound indicates the notification id is unknown.
	ErrNotFound = errors.New("outbox: notification not found")
	// ErrPermanent marks deliveries that must not be retried.
	ErrPermanent = errors.New("outbox: permanent delivery failure")
)

// AttachmentRef points at a file resolved at delivery time.
type AttachmentRef struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	StorageKey  string `json:"storageKey,omitempty"`
	// LocalPath is relative to the public directory, e.g. "/itineraries/trip.pdf".
	LocalPath string `json:"localPath,omitempty"`
}

// Notification is a staged outbound email.
type Notification struct {
	ID                string          `json:"id"`
	AgencyID          string          `json:"agencyId"`
	Kind              Kind            `json:"kind"`
	Recipient         string          `json:"recipient"`
	Subject           string          `json:"subject"`
	HTML              string          `json:"-"`
	Attachments       []AttachmentRef `json:"attachments"`
	SubjectType       string          `json:"subjectType"`
	SubjectID         string          `json:"subjectId"`
	Status            Status          `json:"status"`
	Attempts          int             `json:"attempts"`
	LastError         string          `json:"lastError,omitempty"`
	ProviderMessageID string          `json:"providerMessageId,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	SentAt            *time.Time      `json:"sentAt,omitempty"`
}

// Delivery is the queryable delivery status exposed on aggregates.
type Delivery struct {
	NotificationID string     `json:"notificationId"`
	Status         Status     `json:"status"`
	Attempts       int        `json:"attempts"`
	LastError      string     `json:"lastError,omitempty"`
	SentAt         *time.Time `json:"sentAt,omitempty"`
}

// Draft describes a notification before it is staged.
type Draft struct {
	AgencyID    string
	Kind        Kind
	Recipient   string
	Subject     string
	HTML        string
	SubjectType string
	SubjectID   string
	Attachments []AttachmentRef
}

// New builds a pending notification from d.
func New(d Draft) Notification {
	attachments := d.Attachments
	if attachments == nil {
		attachments = []AttachmentRef{}
	}
	return Notification{
		ID:          uuid.NewString(),
		AgencyID:    d.AgencyID,
		Kind:        d.Kind,
		Recipient:   d.Recipient,
		Subject:     d.Subject,
		HTML:        d.HTML,
		Attachments: attachments,
		SubjectType: d.SubjectType,
		SubjectID:   d.SubjectID,
		Status:      StatusPending,
		CreatedAt:   time.Now().UTC(),
	}
}

// Delivery projects the notification's delivery status.
func (n Notification) Delivery() Delivery {
	return Delivery{NotificationID: n.ID, Status: n.Status, Attempts: n.Attempts, LastError: n.LastError, SentAt: n.SentAt}
}
