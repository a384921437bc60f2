// Package payments records DMC payments with receipts, derives the running
// balance per (enquiry, DMC) and manages the DMC's standalone payment methods.
package payments

import (
	"errors"
	"strings"
	"time"

	"github.com/wayfarer-ops/wayfarer/internal/shared"
)

// Channel is how the agency paid the DMC.
type Channel string

const (
	ChannelBankTransfer Channel = "BANK_TRANSFER"
	ChannelGateway      Channel = "GATEWAY"
	ChannelCash         Channel = "CASH"
	ChannelUPI          Channel = "UPI"
)

// ParseChannel normalises free-form input such as "bank transfer" or "upi".
func ParseChannel(raw string) (Channel, bool) {
	c := Channel(strings.ToUpper(strings.Join(strings.FieldsFunc(raw, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_'
	}), "_")))
	switch c {
	case ChannelBankTransfer, ChannelGateway, ChannelCash, ChannelUPI:
		return c, true
	case "BANK":
		return ChannelBankTransfer, true
	}
	return "", false
}

// Status is derived from the remaining balance.
type Status string

const (
	StatusPaid    Status = "PAID"
	StatusPartial Status = "PARTIAL"
	StatusPending Status = "PENDING"
)

// StatusFor derives the payment status of a balance.
func StatusFor(total, paid shared.Money) Status {
	switch {
	case paid <= 0:
		return StatusPending
	case paid >= total:
		return StatusPaid
	default:
		return StatusPartial
	}
}

// MaxReceiptBytes bounds receipt uploads.
const MaxReceiptBytes = 10 << 20

// Receipt content types accepted on upload.
var receiptTypes = map[string]string{
	"application/pdf": ".pdf",
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
}

const (
	CodeStorageNotConfigured = "STORAGE_NOT_CONFIGURED"
	CodeUploadFailed         = "UPLOAD_FAILED"
	CodeOverpayment          = "OVERPAYMENT"
)

var (
	ErrNotFound       = errors.New("payment not found")
	ErrNoReceipt      = errors.New("payment has no receipt")
	ErrOverpayment    = errors.New("payment exceeds the remaining balance")
	ErrMethodNotFound = errors.New("payment method not found")
	ErrMethodExists   = errors.New("payment method already configured for this dmc")
)

// Payment is one payment made to a DMC for an enquiry.
type Payment struct {
	ID                 string       `json:"id"`
	AgencyID           string       `json:"agencyId"`
	EnquiryID          string       `json:"enquiryId"`
	DMCID              string       `json:"dmcId"`
	AmountPaid         shared.Money `json:"amountPaid"`
	PaymentDate        time.Time    `json:"-"`
	TransactionID      string       `json:"transactionId,omitempty"`
	Channel            Channel      `json:"paymentChannel"`
	Status             Status       `json:"paymentStatus"`
	TotalCost          shared.Money `json:"totalCost"`
	RemainingBalance   shared.Money `json:"remainingBalance"`
	Currency           string       `json:"currency"`
	ReceiptKey         string       `json:"-"`
	ReceiptURL         string       `json:"receiptUrl,omitempty"`
	ReceiptFilename    string       `json:"receiptFilename,omitempty"`
	ReceiptContentType string       `json:"receiptContentType,omitempty"`
	NotificationID     string       `json:"notificationId,omitempty"`
	RecordedBy         string       `json:"recordedBy,omitempty"`
	CreatedAt          time.Time    `json:"createdAt"`
}

// PaymentDateDisplay is the DD-MM-YYYY form sent to clients.
func (p Payment) PaymentDateDisplay() string {
	return shared.FormatDate(p.PaymentDate)
}

// HistoryRow is a payment with the balance left after it.
type HistoryRow struct {
	Payment
	Date           string       `json:"paymentDate"`
	RunningBalance shared.Money `json:"runningBalance"`
}

// Summary totals the payments of an (enquiry, DMC) pair.
type Summary struct {
	TotalCost        shared.Money `json:"totalCost"`
	TotalPaid        shared.Money `json:"totalPaid"`
	RemainingBalance shared.Money `json:"remainingBalance"`
	PaymentStatus    Status       `json:"paymentStatus"`
	Count            int          `json:"count"`
	Currency         string       `json:"currency,omitempty"`
}

// History is the GET /api/payments payload.
type History struct {
	Payments []HistoryRow `json:"payments"`
	Summary  Summary      `json:"summary"`
}

// ReceiptFile is an uploaded receipt.
type ReceiptFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// RecordInput captures a payment submission.
type RecordInput struct {
	EnquiryID      string
	DMCID          string
	AmountPaid     shared.Money
	PaymentDate    string
	TransactionID  string
	Channel        string
	TotalCost      shared.Money
	Currency       string
	Receipt        *ReceiptFile
	IdempotencyKey string
}

// NotificationResult reports the DMC payment email.
type NotificationResult struct {
	ID        string `json:"id,omitempty"`
	Recipient string `json:"recipient,omitempty"`
	Queued    bool   `json:"queued"`
	Sent      bool   `json:"sent"`
	Error     string `json:"error,omitempty"`
}

// RecordResult is returned by POST /api/payments.
type RecordResult struct {
	Payment      HistoryRow         `json:"payment"`
	Summary      Summary            `json:"summary"`
	Notification NotificationResult `json:"notification"`
}

// Method is a DMC's standalone payment configuration.
type Method struct {
	ID            string    `json:"id"`
	AgencyID      string    `json:"agencyId"`
	DMCID         string    `json:"dmcId"`
	BankName      string    `json:"bankName,omitempty"`
	AccountName   string    `json:"accountName,omitempty"`
	AccountNumber string    `json:"accountNumber,omitempty"`
	IFSC          string    `json:"ifsc,omitempty"`
	UPIID         string    `json:"upiId,omitempty"`
	GatewayLink   string    `json:"gatewayLink,omitempty"`
	QRImageKey    string    `json:"qrImageKey,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	UpdatedBy     string    `json:"updatedBy,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// MethodInput is the body of POST/PUT /api/auth/standalone-payment.
type MethodInput struct {
	DMCID         string `json:"dmcId" validate:"required"`
	BankName      string `json:"bankName" validate:"max=120"`
	AccountName   string `json:"accountName" validate:"max=160"`
	AccountNumber string `json:"accountNumber" validate:"omitempty,max=34,alphanum"`
	IFSC          string `json:"ifsc" validate:"omitempty,len=11,alphanum"`
	UPIID         string `json:"upiId" validate:"omitempty,max=80,contains=@"`
	GatewayLink   string `json:"gatewayLink" validate:"omitempty,url"`
	QRImageKey    string `json:"qrImageKey" validate:"max=512"`
	Notes         string `json:"notes" validate:"max=2000"`
}

func (in MethodInput) empty() bool {
	return in.AccountNumber == "" && in.UPIID == "" && in.GatewayLink == "" && in.QRImageKey == ""
}
