package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openprocure/procure-api/internal/models"
)

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

// compliantFacts returns a package input where every document is present,
// complete, and compliant and every check passes.
func compliantFacts() PackageFacts {
	createdAt := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	purchasedAt := createdAt.Add(48 * time.Hour)
	reconciledAt := purchasedAt.Add(24 * time.Hour)
	request := models.Request{
		ID:              "req-1",
		OrgID:           "org-1",
		RequesterID:     "user-1",
		Vendor:          "Acme Office Supply",
		Justification:   "Replacement toner cartridges required for the finance office printers before quarter close.",
		AccountingCode:  "7210-OFFICE",
		DeliveryAddress: "Receiving Dock, 100 Main Street, Springfield",
		TotalEstimate:   420.50,
		Status:          models.StatusReconciled,
		Items: []models.LineItem{
			{SKU: "TN-760", Description: "Toner cartridge", Quantity: 4, UnitPrice: 105.125},
		},
		CreatedAt: createdAt,
	}
	purchase := &models.Purchase{
		ID:           "pur-1",
		RequestID:    "req-1",
		Merchant:     "Acme Office Supply",
		OrderNumber:  "PO-2024-0042",
		FinalTotal:   420.50,
		Tax:          0,
		PurchasedAt:  timePtr(purchasedAt),
		ReceiptURL:   strPtr("https://files.example.com/receipts/pur-1.pdf"),
		ReconciledAt: timePtr(reconciledAt),
	}
	return PackageFacts{
		Request:   request,
		Approvals: []models.Approval{{ID: "apr-1", RequestID: "req-1", Decision: models.DecisionApproved}},
		Purchase:  purchase,
		Policy: models.OrgPolicy{
			OrgID:                "org-1",
			MicroPurchaseLimit:   3500,
			SplitThreshold:       3000,
			BlockedMerchants:     []string{"Lucky Star Casino", "Crypto Exchange"},
			ApprovedVendors:      []string{"Acme Office Supply", "Springfield IT Services"},
			ValidAccountingCodes: []string{"7210-OFFICE", "7310-IT"},
			Addresses:            []string{"100 Main Street, Springfield"},
		},
		Attachments: map[models.DocumentType]string{
			models.DocDeliveryConfirmation: "https://files.example.com/delivery/req-1.pdf",
			models.DocVendorVerification:   "https://files.example.com/vendors/acme.pdf",
			models.DocCertifications:       "https://files.example.com/certs/req-1.pdf",
		},
	}
}

func TestBuildPackageFullyCompliant(t *testing.T) {
	pkg := BuildPackage(compliantFacts(), time.Now())

	require.Len(t, pkg.Documents, 9)
	require.Len(t, pkg.Checks, 10)
	for kind, doc := range pkg.Documents {
		require.True(t, doc.Present, "document %s not present", kind)
		require.True(t, doc.Complete, "document %s not complete", kind)
		require.True(t, doc.Compliant, "document %s not compliant: %v", kind, doc.Issues)
	}
	for kind, check := range pkg.Checks {
		require.True(t, check.Passed, "check %s failed: %v", kind, check.Issues)
		require.True(t, check.Compliant, "check %s not compliant", kind)
	}
	require.Equal(t, 100, pkg.AuditScore)
	require.Equal(t, 0, pkg.TotalIssues)
	require.Equal(t, 0, pkg.CriticalIssues)
	require.Equal(t, 0, pkg.Warnings)
	require.Equal(t, models.PackageAuditReady, pkg.Status)
}

func TestBuildPackageMissingReceiptIsNonCompliant(t *testing.T) {
	facts := compliantFacts()
	facts.Purchase.ReceiptURL = nil

	pkg := BuildPackage(facts, time.Now())

	require.False(t, pkg.Documents[models.DocReceipt].Present)
	require.False(t, pkg.Checks[models.CheckReceiptLegibility].Passed)
	require.GreaterOrEqual(t, pkg.CriticalIssues, 1)
	require.Equal(t, models.PackageNonCompliant, pkg.Status)
}

func TestBuildPackageIdempotent(t *testing.T) {
	facts := compliantFacts()
	facts.Purchase.ReceiptURL = nil
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	first := BuildPackage(facts, now)
	second := BuildPackage(facts, now)
	require.Equal(t, first, second)
}

func TestBuildPackageScoreMonotonicity(t *testing.T) {
	facts := compliantFacts()
	facts.Purchase = nil
	facts.Attachments = nil
	facts.Request.Vendor = "Unlisted Vendor"
	facts.Request.Justification = "too short"
	before := BuildPackage(facts, time.Now())
	require.Less(t, before.AuditScore, 100)

	facts.Attachments = map[models.DocumentType]string{
		models.DocDeliveryConfirmation: "https://files.example.com/delivery/req-1.pdf",
	}
	after := BuildPackage(facts, time.Now())
	require.Greater(t, after.AuditScore, before.AuditScore)

	facts.Purchase = compliantFacts().Purchase
	restored := BuildPackage(facts, time.Now())
	require.GreaterOrEqual(t, restored.AuditScore, after.AuditScore)
}

func TestDetermineStatusOrdering(t *testing.T) {
	require.Equal(t, models.PackageNonCompliant, DetermineStatus(100, IssueCounts{Critical: 1}))
	require.Equal(t, models.PackagePendingReview, DetermineStatus(95, IssueCounts{Total: 2}))
	require.Equal(t, models.PackageAuditReady, DetermineStatus(90, IssueCounts{}))
	require.Equal(t, models.PackageCompliant, DetermineStatus(75, IssueCounts{}))
	require.Equal(t, models.PackageIncomplete, DetermineStatus(40, IssueCounts{}))
}

func TestValidatePackageReportsFailures(t *testing.T) {
	facts := compliantFacts()
	pkg := BuildPackage(facts, time.Now())
	report := ValidatePackage(pkg)
	require.True(t, report.IsValid)
	require.Empty(t, report.Issues)

	facts.Purchase.ReceiptURL = nil
	pkg = BuildPackage(facts, time.Now())
	report = ValidatePackage(pkg)
	require.False(t, report.IsValid)
	require.NotEmpty(t, report.Issues)
	require.Equal(t, len(report.Issues), len(report.Recommendations))
}

func TestBuilderValueSemantics(t *testing.T) {
	base := NewPackageBuilder("req-1", "pur-1")
	withDoc := base.AddDocument(models.DocReceipt, models.DocumentStatus{Present: true, Complete: true, Compliant: true})

	require.Equal(t, 0, base.CalculateAuditScore(), "adding to a copy must not mutate the original")
	require.Equal(t, 10, withDoc.CalculateAuditScore())
}
