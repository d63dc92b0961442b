/**
 * @description
 * This file defines the domain models for transfer drafts and their line items.
 * A draft is the editable payload of a future payout: a single transfer carries
 * exactly one line item, a bulk transfer one per recipient, and a tag transfer
 * addresses a recipient by their Treegar tag instead of bank details.
 *
 * @notes
 * - Amounts are stored as `int64` in kobo to avoid floating-point inaccuracies
 *   with financial data.
 * - Each line item carries its own resolution state; items resolve independently
 *   and one item's failure never invalidates another's resolved name.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// DraftKind discriminates the three transfer flows.
type DraftKind string

const (
	DraftSingle DraftKind = "single"
	DraftBulk   DraftKind = "bulk"
	DraftTag    DraftKind = "tag"
)

// ResolutionPhase is the lifecycle tag for a line item's account lookup.
type ResolutionPhase string

const (
	ResolutionUnresolved ResolutionPhase = "unresolved"
	ResolutionResolving  ResolutionPhase = "resolving"
	ResolutionResolved   ResolutionPhase = "resolved"
	ResolutionFailed     ResolutionPhase = "failed"
)

// ResolutionState is the tagged per-item lookup state. AccountName is only
// meaningful when Phase is Resolved; FailureReason only when Phase is Failed.
type ResolutionState struct {
	Phase         ResolutionPhase `json:"phase"`
	AccountName   string          `json:"account_name,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Unresolved returns the zero resolution state.
func Unresolved() ResolutionState {
	return ResolutionState{Phase: ResolutionUnresolved}
}

// TransferLineItem is one recipient instruction inside a draft.
type TransferLineItem struct {
	ID              uuid.UUID       `json:"id"`
	BankID          string          `json:"bank_id,omitempty"`
	AccountNumber   string          `json:"account_number,omitempty"`
	RecipientTag    string          `json:"recipient_tag,omitempty"`
	BeneficiaryName string          `json:"beneficiary_name,omitempty"`
	Amount          int64           `json:"amount"` // in kobo
	Narration       string          `json:"narration"`
	SaveBeneficiary bool            `json:"save_beneficiary"`
	Resolution      ResolutionState `json:"resolution"`
}

// Beneficiary is a saved transfer recipient, persisted once a payout whose line
// item was flagged save_beneficiary settles.
type Beneficiary struct {
	ID                  uuid.UUID `json:"id"`
	UserID              uuid.UUID `json:"user_id"`
	BankID              string    `json:"bank_id"`
	AccountName         string    `json:"account_name"`
	AccountNumberMasked string    `json:"account_number_masked"`
	CreatedAt           time.Time `json:"created_at"`
}
