/**
 * @description
 * This file contains the derivation of the active verification step. The step is
 * a pure function of the current record snapshot and the customer type: it is
 * recomputed on every snapshot change and never mutated in place, so a stale
 * cached step can always be overwritten by a fresh derivation.
 *
 * @notes
 * - Ordered precedence: the first unmet requirement wins. A refresh that reveals
 *   a provider-side rejection of an earlier check legitimately moves the active
 *   pointer backward.
 * - Liveness is categorically excluded from the business journey. A business
 *   customer lands on documents after BVN and NIN no matter what liveness
 *   records exist. This is a deliberate business rule, not a guard against a
 *   broken derivation.
 */

package verification

import (
	"github.com/tamfolio/treegar-orchestration-service/internal/domain"
)

// DeriveActiveStep computes the single step a customer should currently be
// working on from their verification record snapshot.
func DeriveActiveStep(records []domain.VerificationRecord, customerType domain.CustomerType) domain.VerificationStep {
	if !typeCompleted(records, domain.VerificationBVN) {
		return domain.StepBVN
	}
	if !typeCompleted(records, domain.VerificationNIN) {
		return domain.StepNIN
	}
	if customerType == domain.CustomerBusiness {
		// Business customers never do liveness.
		return domain.StepDocuments
	}
	return domain.StepLiveness
}

// typeCompleted reports whether a record of the given type exists and has
// passed. An absent record counts as not completed.
func typeCompleted(records []domain.VerificationRecord, vt domain.VerificationType) bool {
	for _, record := range records {
		if record.Type == vt {
			return record.Completed()
		}
	}
	return false
}

// recordStatus returns the status of the record of the given type, or
// not_started when the record is absent.
func recordStatus(records []domain.VerificationRecord, vt domain.VerificationType) domain.VerificationStatus {
	for _, record := range records {
		if record.Type == vt {
			return record.Status
		}
	}
	return domain.VerificationNotStarted
}
