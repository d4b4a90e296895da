package dto

import (
	"github.com/openprocure/procure-api/internal/models"
)

// LineItemInput describes one line of a purchase request.
type LineItemInput struct {
	Description string  `json:"description" validate:"required"`
	SKU         string  `json:"sku"`
	Quantity    int     `json:"quantity" validate:"required,min=1"`
	UnitPrice   float64 `json:"unitPrice" validate:"required,gt=0"`
}

// CreateRequestPayload is the body for creating a draft purchase request.
type CreateRequestPayload struct {
	Vendor          string          `json:"vendor" validate:"required"`
	Justification   string          `json:"justification"`
	AccountingCode  string          `json:"accountingCode"`
	DeliveryAddress string          `json:"deliveryAddress"`
	NeedBy          string          `json:"needBy"`
	Items           []LineItemInput `json:"items" validate:"required,min=1,dive"`
}

// UpdateRequestPayload carries editable request fields. Pointers distinguish
// omitted fields from explicit clears.
type UpdateRequestPayload struct {
	Vendor          *string         `json:"vendor"`
	Justification   *string         `json:"justification"`
	AccountingCode  *string         `json:"accountingCode"`
	DeliveryAddress *string         `json:"deliveryAddress"`
	NeedBy          *string         `json:"needBy"`
	Items           []LineItemInput `json:"items"`
}

// TransitionPayload moves a request to a new lifecycle status.
type TransitionPayload struct {
	Status  models.RequestStatus `json:"status" validate:"required"`
	Comment string               `json:"comment"`
}

// RequestQuery mirrors supported listing filters.
type RequestQuery struct {
	Status      []models.RequestStatus
	RequesterID string
	Vendor      string
	Page        int
	PerPage     int
}
