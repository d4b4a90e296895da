// Package audit implements the compliance scoring engine and the finding
// response workflow. Everything here is a deterministic, side-effect-free
// computation over supplied facts: rebuilding a package from unchanged facts
// yields an identical result.
package audit

import (
	"strings"
	"time"

	"github.com/openprocure/procure-api/internal/models"
)

// PackageFacts carries every source fact the engine reads. The caller is
// responsible for loading these; the engine performs no I/O.
type PackageFacts struct {
	Request   models.Request
	Approvals []models.Approval
	Purchase  *models.Purchase
	// Peers are the requester's other requests near the request in time,
	// used for split-purchase detection.
	Peers  []models.Request
	Policy models.OrgPolicy
	// Attachments maps uploaded supporting documents (delivery confirmation,
	// vendor verification, certifications) to their file references.
	Attachments map[models.DocumentType]string
}

// RunChecks evaluates the ten fixed compliance checks against the facts.
// No check errors: missing or malformed input degrades to a failed result
// with an explanatory issue.
func RunChecks(facts PackageFacts) map[models.CheckType]models.CheckResult {
	req := facts.Request
	policy := facts.Policy
	return map[models.CheckType]models.CheckResult{
		models.CheckMicroPurchaseLimit: MicroPurchaseCheck(req.TotalEstimate, policy.MicroPurchaseLimit),
		models.CheckSplitPurchase:      SplitPurchaseCheck(req, facts.Peers, policy.Window(), policy.SplitThreshold),
		models.CheckBlockedMerchant:    BlockedMerchantCheck(req.Vendor, policy.BlockedMerchants),
		models.CheckVendorApproval:     VendorApprovalCheck(req.Vendor, policy.ApprovedVendors),
		models.CheckDeliveryAddress:    DeliveryAddressCheck(req.DeliveryAddress, policy.Addresses),
		models.CheckAccountingCode:     AccountingCodeCheck(req.AccountingCode, policy.ValidAccountingCodes),
		models.CheckJustification:      JustificationCheck(req.Justification),
		models.CheckReceiptLegibility:  ReceiptLegibilityCheck(facts.Purchase),
		models.CheckPOAccuracy:         POAccuracyCheck(req, facts.Purchase),
		models.CheckReconciliation:     ReconciliationCheck(facts.Purchase),
	}
}

// BuildPackage assembles the full compliance package for the facts: all nine
// documents, all ten checks, and the derived score, counts, and status.
func BuildPackage(facts PackageFacts, now time.Time) models.CompliancePackage {
	purchaseID := ""
	if facts.Purchase != nil {
		purchaseID = facts.Purchase.ID
	}
	checks := RunChecks(facts)

	builder := NewPackageBuilder(facts.Request.ID, purchaseID)
	for kind, doc := range deriveDocuments(facts, checks) {
		builder = builder.AddDocument(kind, doc)
	}
	for kind, result := range checks {
		builder = builder.AddCheck(kind, result)
	}
	return builder.Build(now)
}

func deriveDocuments(facts PackageFacts, checks map[models.CheckType]models.CheckResult) map[models.DocumentType]models.DocumentStatus {
	docs := map[models.DocumentType]models.DocumentStatus{
		models.DocPurchaseRequest:      purchaseRequestDocument(facts.Request, checks),
		models.DocApproval:             approvalDocument(facts.Approvals),
		models.DocPurchaseOrder:        purchaseOrderDocument(facts.Purchase, checks),
		models.DocReceipt:              receiptDocument(facts.Purchase),
		models.DocReconciliation:       reconciliationDocument(facts.Purchase, checks),
		models.DocPolicyCompliance:     policyComplianceDocument(checks),
		models.DocVendorVerification:   vendorVerificationDocument(facts, checks),
		models.DocDeliveryConfirmation: attachmentDocument(facts.Attachments, models.DocDeliveryConfirmation, "delivery confirmation has not been uploaded"),
		models.DocCertifications:       attachmentDocument(facts.Attachments, models.DocCertifications, "cardholder and approver certifications have not been uploaded"),
	}
	return docs
}

func purchaseRequestDocument(req models.Request, checks map[models.CheckType]models.CheckResult) models.DocumentStatus {
	doc := models.DocumentStatus{Present: true}
	var issues []string
	if strings.TrimSpace(req.Vendor) == "" {
		issues = append(issues, "purchase request is missing a vendor")
	}
	if strings.TrimSpace(req.AccountingCode) == "" {
		issues = append(issues, "purchase request is missing an accounting code")
	}
	if req.TotalEstimate <= 0 {
		issues = append(issues, "purchase request total estimate must be greater than zero")
	}
	if len(req.Items) == 0 {
		issues = append(issues, "purchase request has no line items")
	}
	doc.Complete = len(issues) == 0
	doc.Compliant = doc.Complete && checks[models.CheckJustification].Compliant
	if !checks[models.CheckJustification].Compliant {
		issues = append(issues, checks[models.CheckJustification].Issues...)
	}
	doc.Issues = issues
	return doc
}

func approvalDocument(approvals []models.Approval) models.DocumentStatus {
	if len(approvals) == 0 {
		return models.DocumentStatus{Issues: []string{"no approval record exists for the request"}}
	}
	doc := models.DocumentStatus{Present: true}
	for _, approval := range approvals {
		if approval.Decision == models.DecisionApproved {
			doc.Complete = true
			doc.Compliant = true
			return doc
		}
	}
	doc.Issues = []string{"no approving decision has been recorded"}
	return doc
}

func purchaseOrderDocument(purchase *models.Purchase, checks map[models.CheckType]models.CheckResult) models.DocumentStatus {
	if purchase == nil {
		return models.DocumentStatus{Issues: []string{"no purchase order has been recorded"}}
	}
	doc := models.DocumentStatus{Present: true}
	var issues []string
	if purchase.OrderNumber == "" {
		issues = append(issues, "purchase order number is missing")
	}
	if purchase.Merchant == "" {
		issues = append(issues, "purchase order merchant is missing")
	}
	doc.Complete = len(issues) == 0
	doc.Compliant = doc.Complete && checks[models.CheckPOAccuracy].Compliant
	if !checks[models.CheckPOAccuracy].Compliant {
		issues = append(issues, checks[models.CheckPOAccuracy].Issues...)
	}
	doc.Issues = issues
	return doc
}

func receiptDocument(purchase *models.Purchase) models.DocumentStatus {
	if purchase == nil || purchase.ReceiptURL == nil || strings.TrimSpace(*purchase.ReceiptURL) == "" {
		return models.DocumentStatus{Issues: []string{"no receipt has been uploaded"}}
	}
	return models.DocumentStatus{Present: true, Complete: true, Compliant: true, FileURL: *purchase.ReceiptURL}
}

func reconciliationDocument(purchase *models.Purchase, checks map[models.CheckType]models.CheckResult) models.DocumentStatus {
	if purchase == nil || purchase.ReconciledAt == nil {
		return models.DocumentStatus{Issues: []string{"purchase has not been reconciled"}}
	}
	doc := models.DocumentStatus{Present: true, Complete: true}
	doc.Compliant = checks[models.CheckReconciliation].Compliant
	if !doc.Compliant {
		doc.Issues = checks[models.CheckReconciliation].Issues
	}
	return doc
}

func policyComplianceDocument(checks map[models.CheckType]models.CheckResult) models.DocumentStatus {
	doc := models.DocumentStatus{Present: true, Complete: true, Compliant: true}
	for _, kind := range models.CheckTypes() {
		if !checks[kind].Compliant {
			doc.Compliant = false
			doc.Issues = append(doc.Issues, "policy compliance check failed: "+string(kind))
		}
	}
	return doc
}

func vendorVerificationDocument(facts PackageFacts, checks map[models.CheckType]models.CheckResult) models.DocumentStatus {
	doc := models.DocumentStatus{FileURL: facts.Attachments[models.DocVendorVerification]}
	doc.Present = doc.FileURL != "" || checks[models.CheckVendorApproval].Compliant
	doc.Complete = doc.Present
	doc.Compliant = checks[models.CheckVendorApproval].Compliant && checks[models.CheckBlockedMerchant].Compliant
	if !doc.Present {
		doc.Issues = append(doc.Issues, "vendor verification is missing")
	}
	if !checks[models.CheckVendorApproval].Compliant {
		doc.Issues = append(doc.Issues, checks[models.CheckVendorApproval].Issues...)
	}
	if !checks[models.CheckBlockedMerchant].Compliant {
		doc.Issues = append(doc.Issues, checks[models.CheckBlockedMerchant].Issues...)
	}
	return doc
}

func attachmentDocument(attachments map[models.DocumentType]string, kind models.DocumentType, missing string) models.DocumentStatus {
	url := attachments[kind]
	if url == "" {
		return models.DocumentStatus{Issues: []string{missing}}
	}
	return models.DocumentStatus{Present: true, Complete: true, Compliant: true, FileURL: url}
}
