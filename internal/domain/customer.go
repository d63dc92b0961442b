/**
 * @description
 * This file defines the customer model used by the orchestration service. A
 * customer row links the identity provider subject from validated JWTs to the
 * internal UUID the repositories operate on, and carries the Meridian customer
 * id used for verification-record and payout calls.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Customer is a Treegar customer as stored locally.
type Customer struct {
	ID                 uuid.UUID    `json:"id"`
	SubjectID          string       `json:"subject_id"` // identity provider subject from the JWT
	FullName           string       `json:"full_name"`
	CustomerType       CustomerType `json:"customer_type"`
	MeridianCustomerID string       `json:"meridian_customer_id"`
	CreatedAt          time.Time    `json:"created_at"`
}
