/**
 * @description
 * This file defines the domain models for the customer verification (KYC) journey.
 * A customer completes a sequence of provider-side checks (BVN, NIN, liveness,
 * business documents); the backend owns the records and this service holds a
 * read-only, periodically refreshed snapshot from which the active step is derived.
 *
 * @notes
 * - The active step is never stored; it is recomputed from the record snapshot
 *   on every refresh. See internal/verification for the derivation rules.
 * - At most one VerificationRecord exists per check type per customer.
 */

package domain

// VerificationType identifies one provider-side identity check.
type VerificationType string

const (
	VerificationBVN      VerificationType = "bvn"
	VerificationNIN      VerificationType = "nin"
	VerificationLiveness VerificationType = "liveness"
	VerificationRCNumber VerificationType = "rc_number"
)

// VerificationStatus is the provider-reported state of a single check.
type VerificationStatus string

const (
	VerificationNotStarted VerificationStatus = "not_started"
	VerificationPending    VerificationStatus = "pending"
	VerificationVerified   VerificationStatus = "verified"
)

// VerificationRecord is one check's state as reported by the backend.
type VerificationRecord struct {
	Type          VerificationType       `json:"type"`
	Status        VerificationStatus     `json:"status"`
	IsCompleted   bool                   `json:"is_completed"`
	ResultPayload map[string]interface{} `json:"result_payload,omitempty"`
}

// Completed reports whether this check has fully passed. Some provider payloads
// flip is_completed before status settles, so both signals are honoured.
func (r VerificationRecord) Completed() bool {
	return r.IsCompleted || r.Status == VerificationVerified
}

// VerificationStep is the single step the customer should currently be working on.
// It is derived, never persisted.
type VerificationStep string

const (
	StepBVN       VerificationStep = "bvn"
	StepNIN       VerificationStep = "nin"
	StepLiveness  VerificationStep = "liveness"
	StepDocuments VerificationStep = "documents"
)

// CustomerType distinguishes the two verification journeys.
type CustomerType string

const (
	CustomerIndividual CustomerType = "individual"
	CustomerBusiness   CustomerType = "business"
)

// DocumentStatus is the upload state of one required business document.
type DocumentStatus string

const (
	DocumentNotUploaded DocumentStatus = "not_uploaded"
	DocumentPending     DocumentStatus = "pending"
	DocumentApproved    DocumentStatus = "approved"
)

// DocumentRecord is one entry in the business document checklist.
type DocumentRecord struct {
	DocumentKey string         `json:"document_key"`
	Required    bool           `json:"required"`
	Status      DocumentStatus `json:"status"`
}
