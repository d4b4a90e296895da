package audit

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/openprocure/procure-api/internal/models"
)

// poTotalTolerance is the allowed gap between a purchase order total and the
// originating request estimate.
const poTotalTolerance = 0.01

// minJustificationLength is the minimum trimmed justification length.
const minJustificationLength = 50

func failed(issues ...string) models.CheckResult {
	return models.CheckResult{Passed: false, Compliant: false, Issues: issues}
}

func passed() models.CheckResult {
	return models.CheckResult{Passed: true, Compliant: true}
}

// MicroPurchaseCheck verifies the amount stays within the micro-purchase limit.
func MicroPurchaseCheck(amount, limit float64) models.CheckResult {
	if limit <= 0 {
		return failed("micro-purchase limit is not configured")
	}
	if amount > limit {
		return failed(fmt.Sprintf("amount %.2f exceeds micro-purchase limit %.2f", amount, limit))
	}
	return passed()
}

// SplitPurchaseCheck flags requests that look like one purchase split across
// several smaller ones: more than one request from the same requester inside
// the window whose combined total exceeds the threshold. The adverse outcome
// is detection, so passed is its negation.
func SplitPurchaseCheck(request models.Request, peers []models.Request, window time.Duration, threshold float64) models.CheckResult {
	if window <= 0 {
		window = 24 * time.Hour
	}
	total := request.TotalEstimate
	inWindow := 0
	for _, peer := range peers {
		if peer.ID == request.ID {
			continue
		}
		gap := request.CreatedAt.Sub(peer.CreatedAt)
		if gap < 0 {
			gap = -gap
		}
		if gap <= window {
			inWindow++
			total += peer.TotalEstimate
		}
	}
	if inWindow > 0 && total > threshold {
		return failed(fmt.Sprintf("possible split purchase: %d requests totaling %.2f within %s exceed threshold %.2f",
			inWindow+1, total, window, threshold))
	}
	return passed()
}

// BlockedMerchantCheck fails when the vendor name contains any blocked
// merchant entry, compared case-insensitively. Matching is deliberately a
// plain substring test; audit scoring depends on this exact semantics.
func BlockedMerchantCheck(vendor string, blocked []string) models.CheckResult {
	loweredVendor := strings.ToLower(vendor)
	for _, merchant := range blocked {
		if merchant == "" {
			continue
		}
		if strings.Contains(loweredVendor, strings.ToLower(merchant)) {
			return failed(fmt.Sprintf("vendor %q matches blocked merchant %q", vendor, merchant))
		}
	}
	return passed()
}

// VendorApprovalCheck requires the vendor name to appear verbatim in the
// approved-vendor list. No normalization beyond exact equality.
func VendorApprovalCheck(vendor string, approved []string) models.CheckResult {
	for _, v := range approved {
		if v == vendor {
			return passed()
		}
	}
	return failed(fmt.Sprintf("vendor %q is not on the approved vendor list", vendor))
}

// DeliveryAddressCheck requires the delivery address to contain one of the
// organization's registered addresses as a substring.
func DeliveryAddressCheck(address string, orgAddresses []string) models.CheckResult {
	if strings.TrimSpace(address) == "" {
		return failed("delivery address is missing")
	}
	for _, registered := range orgAddresses {
		if registered == "" {
			continue
		}
		if strings.Contains(address, registered) {
			return passed()
		}
	}
	return failed(fmt.Sprintf("delivery address %q does not match a registered organization address", address))
}

// AccountingCodeCheck requires exact membership in the valid-codes list.
func AccountingCodeCheck(code string, valid []string) models.CheckResult {
	for _, v := range valid {
		if v == code {
			return passed()
		}
	}
	return failed(fmt.Sprintf("accounting code %q is not a valid code", code))
}

// JustificationCheck requires a non-empty justification of at least 50
// characters after trimming.
func JustificationCheck(justification string) models.CheckResult {
	trimmed := strings.TrimSpace(justification)
	if trimmed == "" {
		return failed("justification is missing")
	}
	if len(trimmed) < minJustificationLength {
		return failed(fmt.Sprintf("justification is too short: %d characters, need at least %d", len(trimmed), minJustificationLength))
	}
	return passed()
}

// ReceiptLegibilityCheck is a placeholder legibility check: it passes iff a
// receipt URL is present. Real OCR analysis is out of scope.
func ReceiptLegibilityCheck(purchase *models.Purchase) models.CheckResult {
	if purchase == nil || purchase.ReceiptURL == nil || strings.TrimSpace(*purchase.ReceiptURL) == "" {
		return failed("no receipt on file")
	}
	return passed()
}

// POAccuracyCheck verifies the purchase order matches the originating
// request: vendor, total within tolerance, and item count. Every mismatch is
// itemized as its own issue.
func POAccuracyCheck(request models.Request, purchase *models.Purchase) models.CheckResult {
	if purchase == nil {
		return failed("no purchase order to compare against the request")
	}
	var issues []string
	if purchase.Merchant != request.Vendor {
		issues = append(issues, fmt.Sprintf("purchase order vendor %q does not match request vendor %q", purchase.Merchant, request.Vendor))
	}
	if math.Abs(purchase.FinalTotal-request.TotalEstimate) > poTotalTolerance {
		issues = append(issues, fmt.Sprintf("purchase order total %.2f does not match request estimate %.2f", purchase.FinalTotal, request.TotalEstimate))
	}
	if purchase.OrderNumber == "" {
		issues = append(issues, "purchase order number is missing")
	}
	if len(request.Items) == 0 {
		issues = append(issues, "request has no line items to reconcile against")
	}
	if len(issues) > 0 {
		return failed(issues...)
	}
	return passed()
}

// ReconciliationCheck requires a receipt URL, a positive final total, and a
// purchase timestamp.
func ReconciliationCheck(purchase *models.Purchase) models.CheckResult {
	if purchase == nil {
		return failed("no purchase recorded for reconciliation")
	}
	var issues []string
	if purchase.ReceiptURL == nil || strings.TrimSpace(*purchase.ReceiptURL) == "" {
		issues = append(issues, "reconciliation is missing a receipt")
	}
	if purchase.FinalTotal <= 0 {
		issues = append(issues, "reconciliation final total must be greater than zero")
	}
	if purchase.PurchasedAt == nil {
		issues = append(issues, "reconciliation is missing the purchase timestamp")
	}
	if len(issues) > 0 {
		return failed(issues...)
	}
	return passed()
}
