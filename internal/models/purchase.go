package models

import "time"

// Purchase is the cardholder-side record of money actually spent against an
// approved request. Created when a request enters purchasing; read-only after
// reconciliation except for reconciliation metadata.
type Purchase struct {
	ID           string     `db:"id" json:"id"`
	RequestID    string     `db:"request_id" json:"request_id"`
	CardholderID string     `db:"cardholder_id" json:"cardholder_id"`
	Merchant     string     `db:"merchant" json:"merchant"`
	OrderNumber  string     `db:"order_number" json:"order_number"`
	FinalTotal   float64    `db:"final_total" json:"final_total"`
	Tax          float64    `db:"tax" json:"tax"`
	PurchasedAt  *time.Time `db:"purchased_at" json:"purchased_at,omitempty"`
	ReceiptURL   *string    `db:"receipt_url" json:"receipt_url,omitempty"`
	ReconciledAt *time.Time `db:"reconciled_at" json:"reconciled_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}
