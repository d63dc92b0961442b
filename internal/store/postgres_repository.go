/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains the SQL queries for customers, saved beneficiaries, and the
 * transaction intent audit trail.
 *
 * @dependencies
 * - context, encoding/json, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tamfolio/treegar-orchestration-service/internal/domain"
)

var (
	ErrCustomerNotFound = errors.New("customer not found")
	ErrIntentNotFound   = errors.New("intent not found")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindCustomerBySubjectID resolves the internal customer row from an identity
// provider subject id carried in a validated JWT.
func (r *PostgresRepository) FindCustomerBySubjectID(ctx context.Context, subjectID string) (*domain.Customer, error) {
	var c domain.Customer
	query := `SELECT id, subject_id, full_name, customer_type, meridian_customer_id, created_at
	          FROM customers WHERE subject_id = $1`
	err := r.db.QueryRow(ctx, query, subjectID).Scan(&c.ID, &c.SubjectID, &c.FullName, &c.CustomerType, &c.MeridianCustomerID, &c.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrCustomerNotFound
		}
		return nil, err
	}
	return &c, nil
}

// FindCustomerByID retrieves a customer by internal UUID.
func (r *PostgresRepository) FindCustomerByID(ctx context.Context, customerID uuid.UUID) (*domain.Customer, error) {
	var c domain.Customer
	query := `SELECT id, subject_id, full_name, customer_type, meridian_customer_id, created_at
	          FROM customers WHERE id = $1`
	err := r.db.QueryRow(ctx, query, customerID).Scan(&c.ID, &c.SubjectID, &c.FullName, &c.CustomerType, &c.MeridianCustomerID, &c.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrCustomerNotFound
		}
		return nil, err
	}
	return &c, nil
}

// SaveBeneficiary inserts a saved recipient. The unique index on
// (user_id, bank_id, account_number_masked) makes repeat saves idempotent.
func (r *PostgresRepository) SaveBeneficiary(ctx context.Context, beneficiary *domain.Beneficiary) error {
	query := `INSERT INTO beneficiaries (id, user_id, bank_id, account_name, account_number_masked, created_at)
	          VALUES ($1, $2, $3, $4, $5, NOW())
	          ON CONFLICT (user_id, bank_id, account_number_masked) DO NOTHING`
	_, err := r.db.Exec(ctx, query, beneficiary.ID, beneficiary.UserID, beneficiary.BankID, beneficiary.AccountName, beneficiary.AccountNumberMasked)
	if err != nil {
		return fmt.Errorf("failed to save beneficiary: %w", err)
	}
	return nil
}

// FindBeneficiariesByUserID lists a user's saved recipients, newest first.
func (r *PostgresRepository) FindBeneficiariesByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Beneficiary, error) {
	query := `SELECT id, user_id, bank_id, account_name, account_number_masked, created_at
	          FROM beneficiaries WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var beneficiaries []domain.Beneficiary
	for rows.Next() {
		var b domain.Beneficiary
		if err := rows.Scan(&b.ID, &b.UserID, &b.BankID, &b.AccountName, &b.AccountNumberMasked, &b.CreatedAt); err != nil {
			return nil, err
		}
		beneficiaries = append(beneficiaries, b)
	}
	return beneficiaries, rows.Err()
}

// CreateIntent records an intent for the audit trail. Line items are stored as
// a JSONB snapshot with account numbers masked; the full numbers only travel to
// Meridian, never into our own tables.
func (r *PostgresRepository) CreateIntent(ctx context.Context, intent *domain.TransactionIntent) error {
	items, err := json.Marshal(maskedItems(intent.Items))
	if err != nil {
		return fmt.Errorf("failed to encode intent items: %w", err)
	}
	query := `INSERT INTO transaction_intents (id, user_id, kind, group_name, items, status, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())`
	_, err = r.db.Exec(ctx, query, intent.ID, intent.UserID, intent.Kind, intent.GroupName, items, intent.Status)
	if err != nil {
		return fmt.Errorf("failed to create intent: %w", err)
	}
	return nil
}

// UpdateIntentStatus advances an intent through its lifecycle.
func (r *PostgresRepository) UpdateIntentStatus(ctx context.Context, intentID uuid.UUID, status domain.IntentStatus, reference, failureReason string) error {
	query := `UPDATE transaction_intents
	          SET status = $2, reference = NULLIF($3, ''), failure_reason = NULLIF($4, ''), updated_at = NOW()
	          WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, intentID, status, reference, failureReason)
	if err != nil {
		return fmt.Errorf("failed to update intent status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrIntentNotFound
	}
	return nil
}

// FindIntentByID retrieves an intent audit row.
func (r *PostgresRepository) FindIntentByID(ctx context.Context, intentID uuid.UUID) (*domain.TransactionIntent, error) {
	var intent domain.TransactionIntent
	var items []byte
	var reference, failureReason *string
	query := `SELECT id, user_id, kind, COALESCE(group_name, ''), items, status, reference, failure_reason, created_at, updated_at
	          FROM transaction_intents WHERE id = $1`
	err := r.db.QueryRow(ctx, query, intentID).Scan(
		&intent.ID, &intent.UserID, &intent.Kind, &intent.GroupName, &items,
		&intent.Status, &reference, &failureReason, &intent.CreatedAt, &intent.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrIntentNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(items, &intent.Items); err != nil {
		return nil, fmt.Errorf("failed to decode intent items: %w", err)
	}
	if reference != nil {
		intent.Reference = *reference
	}
	if failureReason != nil {
		intent.FailureReason = *failureReason
	}
	return &intent, nil
}

// MaskAccountNumber keeps the last four digits of an account number.
func MaskAccountNumber(accountNumber string) string {
	if len(accountNumber) <= 4 {
		return accountNumber
	}
	return strings.Repeat("*", len(accountNumber)-4) + accountNumber[len(accountNumber)-4:]
}

func maskedItems(items []domain.TransferLineItem) []domain.TransferLineItem {
	masked := make([]domain.TransferLineItem, len(items))
	for i, item := range items {
		item.AccountNumber = MaskAccountNumber(item.AccountNumber)
		masked[i] = item
	}
	return masked
}
