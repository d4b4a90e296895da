package dto

// RecordPurchasePayload is the body for a cardholder recording an executed purchase.
type RecordPurchasePayload struct {
	Merchant    string  `json:"merchant" validate:"required"`
	OrderNumber string  `json:"orderNumber" validate:"required"`
	FinalTotal  float64 `json:"finalTotal" validate:"required,gt=0"`
	Tax         float64 `json:"tax" validate:"gte=0"`
	PurchasedAt string  `json:"purchasedAt" validate:"required"`
}

// ReconcilePayload attaches the receipt and closes the purchase out.
type ReconcilePayload struct {
	ReceiptURL string  `json:"receiptUrl" validate:"required,url"`
	FinalTotal float64 `json:"finalTotal" validate:"gte=0"`
	Notes      string  `json:"notes"`
}
