/**
 * @description
 * This file implements the document sub-gate nested inside the documents step.
 * Reaching the documents step is not enough to upload: the business flow only
 * opens the upload form once both BVN and NIN report Verified. Until then the
 * caller must render a blocked/explain state instead of the form.
 */

package verification

import (
	"github.com/tamfolio/treegar-orchestration-service/internal/domain"
)

// DocumentGate summarizes whether document upload is open and, when it is not,
// which prerequisite checks are still outstanding.
type DocumentGate struct {
	UploadAllowed bool                      `json:"upload_allowed"`
	BVNStatus     domain.VerificationStatus `json:"bvn_status"`
	NINStatus     domain.VerificationStatus `json:"nin_status"`
}

// EvaluateDocumentGate computes the upload gate from the record snapshot. The
// gate is stricter than step derivation: it requires both checks to report
// Verified, not merely completed, so a customer can sit on the documents step
// with the upload form still blocked.
func EvaluateDocumentGate(records []domain.VerificationRecord) DocumentGate {
	bvn := recordStatus(records, domain.VerificationBVN)
	nin := recordStatus(records, domain.VerificationNIN)
	return DocumentGate{
		UploadAllowed: bvn == domain.VerificationVerified && nin == domain.VerificationVerified,
		BVNStatus:     bvn,
		NINStatus:     nin,
	}
}

// OutstandingRequiredDocuments returns the required checklist entries that have
// not yet been approved.
func OutstandingRequiredDocuments(docs []domain.DocumentRecord) []domain.DocumentRecord {
	var outstanding []domain.DocumentRecord
	for _, doc := range docs {
		if doc.Required && doc.Status != domain.DocumentApproved {
			outstanding = append(outstanding, doc)
		}
	}
	return outstanding
}

// ChecklistComplete reports whether every required document has been approved.
func ChecklistComplete(docs []domain.DocumentRecord) bool {
	return len(OutstandingRequiredDocuments(docs)) == 0
}
