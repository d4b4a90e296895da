package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openprocure/procure-api/internal/models"
)

func openFinding() *models.Finding {
	return &models.Finding{
		ID:        "fnd-1",
		RequestID: "req-1",
		Type:      models.FindingCritical,
		Category:  models.CategoryDocumentation,
		Severity:  models.SeverityHigh,
		Status:    models.FindingOpen,
	}
}

func TestCardholderResponseAcknowledges(t *testing.T) {
	finding := openFinding()
	result := ApplyCardholderResponse(finding, models.CardholderResponse{
		Type:        models.CardholderAcknowledge,
		Comment:     "receipt re-uploaded",
		RespondedBy: "user-2",
	}, time.Now())

	require.True(t, result.Valid)
	require.Equal(t, models.FindingAcknowledged, finding.Status)
	require.NotNil(t, finding.Cardholder)

	// a new response replaces the pending one
	result = ApplyCardholderResponse(finding, models.CardholderResponse{
		Type:        models.CardholderRequestExtension,
		RespondedBy: "user-2",
	}, time.Now())
	require.True(t, result.Valid)
	require.Equal(t, models.CardholderRequestExtension, finding.Cardholder.Type)
}

func TestCardholderResponseRejectedOnTerminalFinding(t *testing.T) {
	for _, status := range []models.FindingStatus{models.FindingResolved, models.FindingEscalated} {
		finding := openFinding()
		finding.Status = status
		result := ApplyCardholderResponse(finding, models.CardholderResponse{Type: models.CardholderAcknowledge}, time.Now())
		require.False(t, result.Valid)
		require.Contains(t, result.Reason, string(status))
	}
}

func TestAuditorResponseTransitions(t *testing.T) {
	cases := []struct {
		respType models.AuditorResponseType
		want     models.FindingStatus
	}{
		{models.AuditorAccept, models.FindingResolved},
		{models.AuditorReject, models.FindingOpen},
		{models.AuditorEscalate, models.FindingEscalated},
	}
	for _, tc := range cases {
		finding := openFinding()
		result := ApplyAuditorResponse(finding, models.AuditorResponse{Type: tc.respType, RespondedBy: "aud-1"}, time.Now())
		require.True(t, result.Valid)
		require.Equal(t, tc.want, finding.Status)
	}
}

func TestAuditorResponseRejectedAfterEscalation(t *testing.T) {
	finding := openFinding()
	require.True(t, ApplyAuditorResponse(finding, models.AuditorResponse{Type: models.AuditorEscalate}, time.Now()).Valid)

	result := ApplyAuditorResponse(finding, models.AuditorResponse{Type: models.AuditorAccept}, time.Now())
	require.False(t, result.Valid, "escalated findings accept no further automated transitions")
}

func TestUnknownResponseTypesRejected(t *testing.T) {
	finding := openFinding()
	require.False(t, ApplyCardholderResponse(finding, models.CardholderResponse{Type: "SHRUG"}, time.Now()).Valid)
	require.False(t, ApplyAuditorResponse(finding, models.AuditorResponse{Type: "MAYBE"}, time.Now()).Valid)
	require.Equal(t, models.FindingOpen, finding.Status)
}

func TestDeriveAuditStatus(t *testing.T) {
	require.Equal(t, models.AuditPending, DeriveAuditStatus(nil))

	findings := []models.Finding{
		{Status: models.FindingResolved},
		{Status: models.FindingAcknowledged},
	}
	require.Equal(t, models.AuditResolved, DeriveAuditStatus(findings))

	findings = append(findings, models.Finding{Status: models.FindingOpen, Severity: models.SeverityMedium})
	require.Equal(t, models.AuditFindingsOpen, DeriveAuditStatus(findings))

	findings = append(findings, models.Finding{Status: models.FindingOpen, Severity: models.SeverityCritical})
	require.Equal(t, models.AuditNonCompliant, DeriveAuditStatus(findings))
}

func TestFindingsFromPackage(t *testing.T) {
	facts := compliantFacts()
	pkg := BuildPackage(facts, time.Now())
	require.Empty(t, FindingsFromPackage(pkg, time.Now()))

	facts.Purchase.ReceiptURL = nil
	pkg = BuildPackage(facts, time.Now())
	findings := FindingsFromPackage(pkg, time.Now())
	require.NotEmpty(t, findings)
	for _, f := range findings {
		require.Equal(t, models.FindingOpen, f.Status)
		require.Equal(t, "req-1", f.RequestID)
	}
}
