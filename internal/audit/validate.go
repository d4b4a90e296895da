package audit

import (
	"fmt"

	"github.com/openprocure/procure-api/internal/models"
)

// ValidationReport is the human-readable review of an already-built package.
type ValidationReport struct {
	IsValid         bool     `json:"is_valid"`
	Issues          []string `json:"issues"`
	Recommendations []string `json:"recommendations"`
}

var documentRecommendations = map[models.DocumentType]string{
	models.DocPurchaseRequest:      "Complete the purchase request with vendor, accounting code, line items, and an adequate justification",
	models.DocApproval:             "Obtain an approving official decision for the request",
	models.DocPurchaseOrder:        "Record the purchase order with merchant and order number matching the request",
	models.DocReceipt:              "Upload a legible receipt for the purchase",
	models.DocDeliveryConfirmation: "Upload the delivery confirmation",
	models.DocReconciliation:       "Reconcile the purchase with receipt, final total, and purchase date",
	models.DocPolicyCompliance:     "Resolve every failing policy compliance check",
	models.DocVendorVerification:   "Verify the vendor is approved and not on the blocked merchant list",
	models.DocCertifications:       "Collect the cardholder and approver certifications",
}

var checkRecommendations = map[models.CheckType]string{
	models.CheckMicroPurchaseLimit: "Reduce the purchase amount or route it through the full approval path",
	models.CheckSplitPurchase:      "Consolidate related requests or document why separate purchases were necessary",
	models.CheckBlockedMerchant:    "Choose a vendor that is not on the blocked merchant list",
	models.CheckVendorApproval:     "Use an approved vendor or request vendor approval",
	models.CheckDeliveryAddress:    "Ship to a registered organization address",
	models.CheckAccountingCode:     "Correct the accounting code to a valid code",
	models.CheckJustification:      "Expand the justification to at least 50 characters",
	models.CheckReceiptLegibility:  "Attach a receipt to the purchase",
	models.CheckPOAccuracy:         "Align the purchase order vendor, total, and items with the request",
	models.CheckReconciliation:     "Complete reconciliation with receipt, final total, and purchase timestamp",
}

// ValidatePackage walks every document and check of a built package purely
// for reporting: one issue and one recommendation per failure. It is
// intentionally redundant with the scoring pass so it can run against a
// persisted package without recomputation.
func ValidatePackage(pkg models.CompliancePackage) ValidationReport {
	report := ValidationReport{IsValid: true}
	for _, kind := range models.DocumentTypes() {
		doc := pkg.Documents[kind]
		if doc.Compliant {
			continue
		}
		report.IsValid = false
		switch {
		case !doc.Present:
			report.Issues = append(report.Issues, fmt.Sprintf("document %s is missing", kind))
		case !doc.Complete:
			report.Issues = append(report.Issues, fmt.Sprintf("document %s is incomplete", kind))
		default:
			report.Issues = append(report.Issues, fmt.Sprintf("document %s is not compliant", kind))
		}
		report.Recommendations = append(report.Recommendations, documentRecommendations[kind])
	}
	for _, kind := range models.CheckTypes() {
		check := pkg.Checks[kind]
		if check.Compliant {
			continue
		}
		report.IsValid = false
		report.Issues = append(report.Issues, fmt.Sprintf("compliance check %s failed", kind))
		report.Recommendations = append(report.Recommendations, checkRecommendations[kind])
	}
	return report
}
