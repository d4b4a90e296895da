package models

import "time"

// OrgPolicy holds the organization policy parameters consumed by the
// compliance scoring engine.
type OrgPolicy struct {
	OrgID                string        `db:"org_id" json:"org_id"`
	MicroPurchaseLimit   float64       `db:"micro_purchase_limit" json:"micro_purchase_limit"`
	SplitWindow          time.Duration `db:"-" json:"-"`
	SplitWindowSeconds   int64         `db:"split_window_seconds" json:"split_window_seconds"`
	SplitThreshold       float64       `db:"split_threshold" json:"split_threshold"`
	BlockedMerchants     []string      `db:"-" json:"blocked_merchants"`
	ApprovedVendors      []string      `db:"-" json:"approved_vendors"`
	ValidAccountingCodes []string      `db:"-" json:"valid_accounting_codes"`
	Addresses            []string      `db:"-" json:"addresses"`
	UpdatedAt            time.Time     `db:"updated_at" json:"updated_at"`
}

// Window resolves the split-purchase detection window, defaulting to 24h.
func (p OrgPolicy) Window() time.Duration {
	if p.SplitWindow > 0 {
		return p.SplitWindow
	}
	if p.SplitWindowSeconds > 0 {
		return time.Duration(p.SplitWindowSeconds) * time.Second
	}
	return 24 * time.Hour
}
