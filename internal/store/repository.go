/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for
 * all data access operations required by the orchestration service. By defining
 * an interface, we decouple the business logic from the PostgreSQL implementation
 * and make the payout and verification flows easy to test with stubs.
 *
 * @dependencies
 * - context: Standard Go library.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/tamfolio/treegar-orchestration-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Customer methods
	// Resolve the internal customer from an identity provider subject id.
	FindCustomerBySubjectID(ctx context.Context, subjectID string) (*domain.Customer, error)
	FindCustomerByID(ctx context.Context, customerID uuid.UUID) (*domain.Customer, error)

	// Beneficiary methods
	SaveBeneficiary(ctx context.Context, beneficiary *domain.Beneficiary) error
	FindBeneficiariesByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Beneficiary, error)

	// Intent audit methods
	CreateIntent(ctx context.Context, intent *domain.TransactionIntent) error
	UpdateIntentStatus(ctx context.Context, intentID uuid.UUID, status domain.IntentStatus, reference, failureReason string) error
	FindIntentByID(ctx context.Context, intentID uuid.UUID) (*domain.TransactionIntent, error)
}
