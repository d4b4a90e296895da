package models

import "time"

// RequestStatus enumerates the closed lifecycle states of a procurement request.
type RequestStatus string

const (
	StatusDraft                RequestStatus = "DRAFT"
	StatusSubmitted            RequestStatus = "SUBMITTED"
	StatusAOReview             RequestStatus = "AO_REVIEW"
	StatusApproved             RequestStatus = "APPROVED"
	StatusCardholderPurchasing RequestStatus = "CARDHOLDER_PURCHASING"
	StatusPurchased            RequestStatus = "PURCHASED"
	StatusReconciled           RequestStatus = "RECONCILED"
	StatusClosed               RequestStatus = "CLOSED"
	StatusReturned             RequestStatus = "RETURNED"
	StatusDenied               RequestStatus = "DENIED"
)

// AllStatuses lists every lifecycle state in priority order.
func AllStatuses() []RequestStatus {
	return []RequestStatus{
		StatusDraft,
		StatusSubmitted,
		StatusAOReview,
		StatusApproved,
		StatusCardholderPurchasing,
		StatusPurchased,
		StatusReconciled,
		StatusClosed,
		StatusReturned,
		StatusDenied,
	}
}

// Valid reports whether the status belongs to the closed set.
func (s RequestStatus) Valid() bool {
	for _, status := range AllStatuses() {
		if s == status {
			return true
		}
	}
	return false
}

// LineItem is a single line on a procurement request.
type LineItem struct {
	ID          string  `db:"id" json:"id"`
	RequestID   string  `db:"request_id" json:"request_id"`
	SKU         string  `db:"sku" json:"sku"`
	Description string  `db:"description" json:"description"`
	Quantity    int     `db:"quantity" json:"quantity"`
	UnitPrice   float64 `db:"unit_price" json:"unit_price"`
}

// Request represents a procurement request. Status is mutated exclusively
// through validated workflow transitions; Draft and Returned are the only
// editable states.
type Request struct {
	ID              string        `db:"id" json:"id"`
	OrgID           string        `db:"org_id" json:"org_id"`
	RequesterID     string        `db:"requester_id" json:"requester_id"`
	Vendor          string        `db:"vendor" json:"vendor"`
	Justification   string        `db:"justification" json:"justification"`
	NeedBy          time.Time     `db:"need_by" json:"need_by"`
	AccountingCode  string        `db:"accounting_code" json:"accounting_code"`
	DeliveryAddress string        `db:"delivery_address" json:"delivery_address"`
	TotalEstimate   float64       `db:"total_estimate" json:"total_estimate"`
	SuspectedSplit  bool          `db:"suspected_split" json:"suspected_split"`
	Status          RequestStatus `db:"status" json:"status"`
	Items           []LineItem    `db:"-" json:"items,omitempty"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
}

// RequestFilter constrains request listing queries.
type RequestFilter struct {
	OrgID       string
	RequesterID string
	Statuses    []RequestStatus
	Vendor      string
	Limit       int
	Offset      int
}
