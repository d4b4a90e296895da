package models

import "time"

// DocumentType enumerates the nine fixed document kinds tracked in an audit package.
type DocumentType string

const (
	DocPurchaseRequest      DocumentType = "PURCHASE_REQUEST"
	DocApproval             DocumentType = "APPROVAL"
	DocPurchaseOrder        DocumentType = "PURCHASE_ORDER"
	DocReceipt              DocumentType = "RECEIPT"
	DocDeliveryConfirmation DocumentType = "DELIVERY_CONFIRMATION"
	DocReconciliation       DocumentType = "RECONCILIATION"
	DocPolicyCompliance     DocumentType = "POLICY_COMPLIANCE"
	DocVendorVerification   DocumentType = "VENDOR_VERIFICATION"
	DocCertifications       DocumentType = "CERTIFICATIONS"
)

// DocumentTypes lists every tracked document kind in a stable order.
func DocumentTypes() []DocumentType {
	return []DocumentType{
		DocPurchaseRequest,
		DocApproval,
		DocPurchaseOrder,
		DocReceipt,
		DocDeliveryConfirmation,
		DocReconciliation,
		DocPolicyCompliance,
		DocVendorVerification,
		DocCertifications,
	}
}

// CheckType enumerates the ten fixed compliance checks run per package.
type CheckType string

const (
	CheckMicroPurchaseLimit CheckType = "MICRO_PURCHASE_LIMIT"
	CheckSplitPurchase      CheckType = "SPLIT_PURCHASE"
	CheckBlockedMerchant    CheckType = "BLOCKED_MERCHANT"
	CheckVendorApproval     CheckType = "VENDOR_APPROVAL"
	CheckDeliveryAddress    CheckType = "DELIVERY_ADDRESS"
	CheckAccountingCode     CheckType = "ACCOUNTING_CODE"
	CheckJustification      CheckType = "JUSTIFICATION"
	CheckReceiptLegibility  CheckType = "RECEIPT_LEGIBILITY"
	CheckPOAccuracy         CheckType = "PO_ACCURACY"
	CheckReconciliation     CheckType = "RECONCILIATION"
)

// CheckTypes lists every compliance check kind in a stable order.
func CheckTypes() []CheckType {
	return []CheckType{
		CheckMicroPurchaseLimit,
		CheckSplitPurchase,
		CheckBlockedMerchant,
		CheckVendorApproval,
		CheckDeliveryAddress,
		CheckAccountingCode,
		CheckJustification,
		CheckReceiptLegibility,
		CheckPOAccuracy,
		CheckReconciliation,
	}
}

// DocumentStatus records the audit state of a single package document.
type DocumentStatus struct {
	Present   bool     `json:"present"`
	Complete  bool     `json:"complete"`
	Compliant bool     `json:"compliant"`
	FileURL   string   `json:"file_url,omitempty"`
	Issues    []string `json:"issues,omitempty"`
}

// CheckResult records the outcome of a single compliance check.
type CheckResult struct {
	Passed    bool     `json:"passed"`
	Compliant bool     `json:"compliant"`
	Issues    []string `json:"issues,omitempty"`
}

// PackageStatus is the categorical verdict derived for a compliance package.
type PackageStatus string

const (
	PackageIncomplete    PackageStatus = "INCOMPLETE"
	PackagePendingReview PackageStatus = "PENDING_REVIEW"
	PackageCompliant     PackageStatus = "COMPLIANT"
	PackageNonCompliant  PackageStatus = "NON_COMPLIANT"
	PackageAuditReady    PackageStatus = "AUDIT_READY"
)

// CompliancePackage is the fully recomputable audit bundle for one
// request/purchase pair. It is never hand-edited: every field is derived
// from source facts by the scoring engine.
type CompliancePackage struct {
	RequestID      string                          `json:"request_id"`
	PurchaseID     string                          `json:"purchase_id"`
	Documents      map[DocumentType]DocumentStatus `json:"documents"`
	Checks         map[CheckType]CheckResult       `json:"checks"`
	AuditScore     int                             `json:"audit_score"`
	TotalIssues    int                             `json:"total_issues"`
	CriticalIssues int                             `json:"critical_issues"`
	Warnings       int                             `json:"warnings"`
	Status         PackageStatus                   `json:"status"`
	GeneratedAt    time.Time                       `json:"generated_at"`
}

// AuditStatus is the package-level rollup derived from its findings.
type AuditStatus string

const (
	AuditPending      AuditStatus = "PENDING_AUDIT"
	AuditFindingsOpen AuditStatus = "FINDINGS_ISSUED"
	AuditResolved     AuditStatus = "RESOLVED"
	AuditNonCompliant AuditStatus = "NON_COMPLIANT"
)
