package audit

import (
	"time"

	"github.com/openprocure/procure-api/internal/models"
)

// PackageBuilder accumulates document and check results for one
// request/purchase pair. The builder is a value: AddDocument and AddCheck
// return a new builder rather than mutating the receiver, so rebuilding from
// the same facts always yields an identical package.
type PackageBuilder struct {
	requestID  string
	purchaseID string
	documents  map[models.DocumentType]models.DocumentStatus
	checks     map[models.CheckType]models.CheckResult
}

// NewPackageBuilder starts an empty accumulation for the given pair.
func NewPackageBuilder(requestID, purchaseID string) PackageBuilder {
	return PackageBuilder{requestID: requestID, purchaseID: purchaseID}
}

func cloneDocuments(src map[models.DocumentType]models.DocumentStatus) map[models.DocumentType]models.DocumentStatus {
	dst := make(map[models.DocumentType]models.DocumentStatus, len(src)+1)
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func cloneChecks(src map[models.CheckType]models.CheckResult) map[models.CheckType]models.CheckResult {
	dst := make(map[models.CheckType]models.CheckResult, len(src)+1)
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// AddDocument records the audit state of one document kind.
func (b PackageBuilder) AddDocument(kind models.DocumentType, doc models.DocumentStatus) PackageBuilder {
	docs := cloneDocuments(b.documents)
	docs[kind] = doc
	b.documents = docs
	return b
}

// AddCheck records the outcome of one compliance check.
func (b PackageBuilder) AddCheck(kind models.CheckType, result models.CheckResult) PackageBuilder {
	checks := cloneChecks(b.checks)
	checks[kind] = result
	b.checks = checks
	return b
}

// CalculateAuditScore sums +10 per compliant document or check and +5 per
// complete-but-not-compliant document (passed-but-not-compliant check),
// capped at 100.
func (b PackageBuilder) CalculateAuditScore() int {
	score := 0
	for _, doc := range b.documents {
		switch {
		case doc.Compliant:
			score += 10
		case doc.Complete:
			score += 5
		}
	}
	for _, check := range b.checks {
		switch {
		case check.Compliant:
			score += 10
		case check.Passed:
			score += 5
		}
	}
	if score > 100 {
		score = 100
	}
	return score
}

// IssueCounts tallies total, critical, and warning issues across the package.
type IssueCounts struct {
	Total    int
	Critical int
	Warnings int
}

// CountIssues derives issue counts: critical covers absent or non-compliant
// documents and non-compliant checks; warnings cover incomplete documents and
// not-passed checks; total sums every issue string accumulated.
func (b PackageBuilder) CountIssues() IssueCounts {
	var counts IssueCounts
	for _, doc := range b.documents {
		counts.Total += len(doc.Issues)
		if !doc.Present || !doc.Compliant {
			counts.Critical++
		}
		if doc.Present && !doc.Complete {
			counts.Warnings++
		}
	}
	for _, check := range b.checks {
		counts.Total += len(check.Issues)
		if !check.Compliant {
			counts.Critical++
		}
		if !check.Passed {
			counts.Warnings++
		}
	}
	return counts
}

// DetermineStatus applies the categorical verdict rules in order: any
// critical issue forces non-compliant regardless of score; any issue at all
// holds the package in review; otherwise the score decides.
func DetermineStatus(score int, counts IssueCounts) models.PackageStatus {
	switch {
	case counts.Critical > 0:
		return models.PackageNonCompliant
	case counts.Total > 0:
		return models.PackagePendingReview
	case score >= 90:
		return models.PackageAuditReady
	case score >= 70:
		return models.PackageCompliant
	default:
		return models.PackageIncomplete
	}
}

// Build freezes the accumulated state into a finished package.
func (b PackageBuilder) Build(now time.Time) models.CompliancePackage {
	score := b.CalculateAuditScore()
	counts := b.CountIssues()
	return models.CompliancePackage{
		RequestID:      b.requestID,
		PurchaseID:     b.purchaseID,
		Documents:      cloneDocuments(b.documents),
		Checks:         cloneChecks(b.checks),
		AuditScore:     score,
		TotalIssues:    counts.Total,
		CriticalIssues: counts.Critical,
		Warnings:       counts.Warnings,
		Status:         DetermineStatus(score, counts),
		GeneratedAt:    now.UTC(),
	}
}
