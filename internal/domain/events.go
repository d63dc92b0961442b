/**
 * @description
 * Event payloads published to RabbitMQ so read-side services (history,
 * notifications) can react to intent lifecycle changes and verification
 * progress without polling.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// IntentLifecycleEvent is published on payout.intent.submitted / .settled / .failed.
type IntentLifecycleEvent struct {
	IntentID    uuid.UUID    `json:"intent_id"`
	UserID      uuid.UUID    `json:"user_id"`
	Kind        DraftKind    `json:"kind"`
	Status      IntentStatus `json:"status"`
	Reference   string       `json:"reference,omitempty"`
	TotalAmount int64        `json:"total_amount"`
	ItemCount   int          `json:"item_count"`
	Timestamp   time.Time    `json:"timestamp"`
}

// VerificationStepChangedEvent is published on verification.step.changed when a
// record refresh moves the derived active step.
type VerificationStepChangedEvent struct {
	CustomerID   string           `json:"customer_id"`
	CustomerType CustomerType     `json:"customer_type"`
	PreviousStep VerificationStep `json:"previous_step,omitempty"`
	ActiveStep   VerificationStep `json:"active_step"`
	Timestamp    time.Time        `json:"timestamp"`
}
