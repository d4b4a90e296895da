package audit

import (
	"fmt"
	"time"

	"github.com/openprocure/procure-api/internal/models"
)

// FindingResult is the verdict for a requested finding response, mirroring
// the transition result shape used by the request lifecycle.
type FindingResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// IsFindingTerminal reports whether no further responses are accepted.
// Resolved and escalated findings never move again.
func IsFindingTerminal(status models.FindingStatus) bool {
	return status == models.FindingResolved || status == models.FindingEscalated
}

// ApplyCardholderResponse attaches a cardholder response to the finding and
// moves it to acknowledged. A new response replaces any pending one; at most
// one live cardholder response exists per finding. Responses against a
// terminal finding are rejected.
func ApplyCardholderResponse(finding *models.Finding, resp models.CardholderResponse, now time.Time) FindingResult {
	if finding == nil {
		return FindingResult{Valid: false, Reason: "finding does not exist"}
	}
	if IsFindingTerminal(finding.Status) {
		return FindingResult{Valid: false, Reason: fmt.Sprintf("finding is %s and accepts no further responses", finding.Status)}
	}
	switch resp.Type {
	case models.CardholderAcknowledge, models.CardholderResolve, models.CardholderRequestExtension:
	default:
		return FindingResult{Valid: false, Reason: fmt.Sprintf("unknown cardholder response type %q", resp.Type)}
	}
	resp.RespondedAt = now.UTC()
	finding.Cardholder = &resp
	finding.Status = models.FindingAcknowledged
	finding.UpdatedAt = now.UTC()
	return FindingResult{Valid: true}
}

// ApplyAuditorResponse records the auditor decision: accept resolves the
// finding, reject reopens it, escalate moves it to the terminal escalated
// state.
func ApplyAuditorResponse(finding *models.Finding, resp models.AuditorResponse, now time.Time) FindingResult {
	if finding == nil {
		return FindingResult{Valid: false, Reason: "finding does not exist"}
	}
	if IsFindingTerminal(finding.Status) {
		return FindingResult{Valid: false, Reason: fmt.Sprintf("finding is %s and accepts no further responses", finding.Status)}
	}
	resp.RespondedAt = now.UTC()
	switch resp.Type {
	case models.AuditorAccept:
		finding.Status = models.FindingResolved
	case models.AuditorReject:
		finding.Status = models.FindingOpen
	case models.AuditorEscalate:
		finding.Status = models.FindingEscalated
	default:
		return FindingResult{Valid: false, Reason: fmt.Sprintf("unknown auditor response type %q", resp.Type)}
	}
	finding.Auditor = &resp
	finding.UpdatedAt = now.UTC()
	return FindingResult{Valid: true}
}

// DeriveAuditStatus rolls findings up into the package-level audit status:
// no findings means the package awaits audit; all findings non-open means
// resolved; any open critical finding forces non-compliant; anything else
// means findings were issued and remain open.
func DeriveAuditStatus(findings []models.Finding) models.AuditStatus {
	if len(findings) == 0 {
		return models.AuditPending
	}
	anyOpen := false
	for _, f := range findings {
		if f.Status != models.FindingOpen {
			continue
		}
		anyOpen = true
		if f.Severity == models.SeverityCritical {
			return models.AuditNonCompliant
		}
	}
	if !anyOpen {
		return models.AuditResolved
	}
	return models.AuditFindingsOpen
}

// FindingsFromPackage converts a built package's failures into findings:
// a critical finding per absent or non-compliant document and per
// non-compliant check, a warning finding per incomplete document.
func FindingsFromPackage(pkg models.CompliancePackage, now time.Time) []models.Finding {
	var findings []models.Finding
	add := func(ftype models.FindingType, category models.FindingCategory, severity models.FindingSeverity, description string) {
		findings = append(findings, models.Finding{
			RequestID:   pkg.RequestID,
			Type:        ftype,
			Category:    category,
			Severity:    severity,
			Status:      models.FindingOpen,
			Description: description,
			CreatedAt:   now.UTC(),
			UpdatedAt:   now.UTC(),
		})
	}
	for _, kind := range models.DocumentTypes() {
		doc := pkg.Documents[kind]
		switch {
		case !doc.Present:
			add(models.FindingCritical, models.CategoryDocumentation, models.SeverityCritical,
				fmt.Sprintf("required document %s is missing", kind))
		case !doc.Compliant:
			add(models.FindingCritical, models.CategoryDocumentation, models.SeverityHigh,
				fmt.Sprintf("document %s is not compliant", kind))
		case !doc.Complete:
			add(models.FindingWarning, models.CategoryDocumentation, models.SeverityMedium,
				fmt.Sprintf("document %s is incomplete", kind))
		}
	}
	for _, kind := range models.CheckTypes() {
		check := pkg.Checks[kind]
		if check.Compliant {
			continue
		}
		category := models.CategoryCompliance
		if kind == models.CheckPOAccuracy || kind == models.CheckReconciliation || kind == models.CheckMicroPurchaseLimit || kind == models.CheckSplitPurchase {
			category = models.CategoryFinancial
		}
		add(models.FindingCritical, category, models.SeverityHigh,
			fmt.Sprintf("compliance check %s failed", kind))
	}
	return findings
}
