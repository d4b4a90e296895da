package audit

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openprocure/procure-api/internal/models"
)

func TestMicroPurchaseCheck(t *testing.T) {
	require.True(t, MicroPurchaseCheck(3500, 3500).Passed)
	require.False(t, MicroPurchaseCheck(3500.01, 3500).Passed)
	require.False(t, MicroPurchaseCheck(10, 0).Passed, "unconfigured limit must fail closed")
}

func TestSplitPurchaseCheckDetectsWindowedAggregate(t *testing.T) {
	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	request := models.Request{ID: "req-1", RequesterID: "user-1", TotalEstimate: 1800, CreatedAt: base}
	peers := []models.Request{
		{ID: "req-2", RequesterID: "user-1", TotalEstimate: 1700, CreatedAt: base.Add(12 * time.Hour)},
	}

	result := SplitPurchaseCheck(request, peers, 24*time.Hour, 3000)
	require.False(t, result.Passed, "two requests 12h apart totaling 3500 must be detected")
	require.NotEmpty(t, result.Issues)

	// peer outside the window is ignored
	peers[0].CreatedAt = base.Add(30 * time.Hour)
	require.True(t, SplitPurchaseCheck(request, peers, 24*time.Hour, 3000).Passed)

	// under the threshold no detection occurs
	peers[0].CreatedAt = base.Add(12 * time.Hour)
	peers[0].TotalEstimate = 900
	require.True(t, SplitPurchaseCheck(request, peers, 24*time.Hour, 3000).Passed)
}

func TestBlockedMerchantCheckSubstringCaseInsensitive(t *testing.T) {
	blocked := []string{"Casino", "Pawn Shop"}
	require.False(t, BlockedMerchantCheck("Lucky Star CASINO & Resort", blocked).Passed)
	require.False(t, BlockedMerchantCheck("downtown pawn shop llc", blocked).Passed)
	require.True(t, BlockedMerchantCheck("Office Depot", blocked).Passed)
	require.True(t, BlockedMerchantCheck("Anything", nil).Passed)
}

func TestVendorApprovalCheckVerbatim(t *testing.T) {
	approved := []string{"Acme Office Supply"}
	require.True(t, VendorApprovalCheck("Acme Office Supply", approved).Passed)
	require.False(t, VendorApprovalCheck("acme office supply", approved).Passed, "matching is exact, no case folding")
	require.False(t, VendorApprovalCheck("Acme", approved).Passed)
}

func TestDeliveryAddressCheck(t *testing.T) {
	addresses := []string{"100 Main Street"}
	require.True(t, DeliveryAddressCheck("Dock B, 100 Main Street, Springfield", addresses).Passed)
	require.False(t, DeliveryAddressCheck("200 Elm Street", addresses).Passed)
	require.False(t, DeliveryAddressCheck("", addresses).Passed)
}

func TestJustificationCheck(t *testing.T) {
	require.False(t, JustificationCheck("").Passed)
	require.False(t, JustificationCheck("   "+strings.Repeat("x", 30)+"   ").Passed)
	require.True(t, JustificationCheck(strings.Repeat("x", 50)).Passed)
}

func TestReceiptLegibilityCheck(t *testing.T) {
	require.False(t, ReceiptLegibilityCheck(nil).Passed)
	require.False(t, ReceiptLegibilityCheck(&models.Purchase{}).Passed)
	require.True(t, ReceiptLegibilityCheck(&models.Purchase{ReceiptURL: strPtr("https://x/receipt.pdf")}).Passed)
}

func TestPOAccuracyCheckItemizesMismatches(t *testing.T) {
	request := models.Request{
		Vendor:        "Acme Office Supply",
		TotalEstimate: 100,
		Items:         []models.LineItem{{SKU: "A"}},
	}
	purchase := &models.Purchase{Merchant: "Other Vendor", OrderNumber: "PO-1", FinalTotal: 103}

	result := POAccuracyCheck(request, purchase)
	require.False(t, result.Passed)
	require.Len(t, result.Issues, 2, "vendor and total mismatches are itemized separately")

	purchase.Merchant = "Acme Office Supply"
	purchase.FinalTotal = 100.009
	require.True(t, POAccuracyCheck(request, purchase).Passed, "totals within a cent match")
}

func TestReconciliationCheck(t *testing.T) {
	now := time.Now()
	require.False(t, ReconciliationCheck(nil).Passed)

	complete := &models.Purchase{
		ReceiptURL:  strPtr("https://x/r.pdf"),
		FinalTotal:  10,
		PurchasedAt: &now,
	}
	require.True(t, ReconciliationCheck(complete).Passed)

	complete.FinalTotal = 0
	result := ReconciliationCheck(complete)
	require.False(t, result.Passed)
	require.Len(t, result.Issues, 1)
}
