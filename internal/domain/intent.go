/**
 * @description
 * This file defines the transaction intent: the validated transfer payload that
 * moves through authorization and submission. An intent is created from a draft
 * when the user asks to pay, held while the PIN challenge runs, and finalized by
 * the payout orchestrator.
 *
 * @notes
 * - Only one intent may sit in pending_authorization per user session; the
 *   session layer enforces this.
 * - The intent is not retried or deduplicated here. Submitting the same intent
 *   twice produces two transactions; the calling surface disables resubmission
 *   while a call is in flight.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// IntentStatus is the lifecycle tag for a transaction intent.
type IntentStatus string

const (
	IntentDraft                IntentStatus = "draft"
	IntentPendingAuthorization IntentStatus = "pending_authorization"
	IntentSubmitted            IntentStatus = "submitted"
	IntentSettled              IntentStatus = "settled"
	IntentFailed               IntentStatus = "failed"
)

// TransactionIntent is a draft frozen for authorization and submission.
type TransactionIntent struct {
	ID            uuid.UUID          `json:"id"`
	UserID        uuid.UUID          `json:"user_id"`
	Kind          DraftKind          `json:"kind"`
	GroupName     string             `json:"group_name,omitempty"` // bulk only
	Items         []TransferLineItem `json:"items"`
	Status        IntentStatus       `json:"status"`
	Reference     string             `json:"reference,omitempty"`
	FailureReason string             `json:"failure_reason,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// TotalAmount sums the line item amounts in kobo.
func (i *TransactionIntent) TotalAmount() int64 {
	var total int64
	for _, item := range i.Items {
		total += item.Amount
	}
	return total
}
