package customers

import "github.com/wayfarer-ops/wayfarer/internal/shared"

type CreateCustomerRequest struct {
	Name  string `json:"name" validate:"required,max=160"`
	Email string `json:"email" validate:"required,email,max=200"`
	Phone string `json:"phone" validate:"omitempty,len=10,numeric"`
	Notes string `json:"notes" validate:"max=2000"`
}

type ListCustomersRequest struct {
	AgencyID string
	Search   string
	Page     shared.PageRequest
}

type AddFeedbackRequest struct {
	CustomerID  string `json:"customerId"`
	EnquiryID   string `json:"enquiryId"`
	ItineraryID string `json:"itineraryId" validate:"required"`
	Rating      int    `json:"rating" validate:"required,min=1,max=5"`
	Comment     string `json:"comment" validate:"max=4000"`
}

type UpdateFeedbackRequest struct {
	ID      string  `json:"id" validate:"required"`
	Rating  *int    `json:"rating,omitempty" validate:"omitempty,min=1,max=5"`
	Comment *string `json:"comment,omitempty" validate:"omitempty,max=4000"`
}
