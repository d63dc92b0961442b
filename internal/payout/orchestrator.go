/**
 * @description
 * This file contains the payout orchestrator: the component that takes a
 * transaction intent from "resolved draft" to "submitted to Meridian". It
 * validates the payload locally before any network call, submits single and
 * bulk payouts through their distinct Meridian operations, and on success
 * invalidates the read caches (balance, recent transactions), persists flagged
 * beneficiaries, and publishes the intent lifecycle event.
 *
 * Key features:
 * - Local pre-validation with per-item field errors; an invalid intent never
 *   reaches the network.
 * - Single and bulk submission as distinct backend operations, never a
 *   bulk-of-one.
 * - PIN rejection is separated from terminal submission failure so the
 *   authorization gate can reopen for another attempt.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/meridianclient, pkg/rabbitmq: For external service communication.
 */

package payout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/tamfolio/treegar-orchestration-service/internal/domain"
	"github.com/tamfolio/treegar-orchestration-service/internal/store"
	"github.com/tamfolio/treegar-orchestration-service/pkg/meridianclient"
	"github.com/tamfolio/treegar-orchestration-service/pkg/rabbitmq"
)

// DefaultIntentEventExchange is the topic exchange lifecycle events publish to
// when no exchange is configured.
const DefaultIntentEventExchange = "treegar.events"

// ErrPinRejected marks a submission refused because the transaction PIN was
// wrong. The intent stays pending; everything else fails the intent terminally.
var ErrPinRejected = errors.New("transaction pin rejected")

// FieldErrors maps an offending field name to a human-readable message.
type FieldErrors map[string]string

// ValidationError carries per-item field errors from local pre-validation.
// Items that validated cleanly do not appear in the map.
type ValidationError struct {
	Items map[uuid.UUID]FieldErrors
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("intent failed validation on %d item(s)", len(e.Items))
}

// ReadCache invalidates the read-side views that go stale when a payout
// settles.
type ReadCache interface {
	InvalidateBalance(ctx context.Context, userID uuid.UUID) error
	InvalidateRecentTransactions(ctx context.Context, userID uuid.UUID) error
}

// Orchestrator validates and submits transaction intents.
type Orchestrator struct {
	repo           store.Repository
	meridianClient *meridianclient.Client
	readCache      ReadCache
	eventProducer  rabbitmq.Publisher
	eventExchange  string
}

// NewOrchestrator creates a new payout orchestrator instance. eventExchange
// names the topic exchange lifecycle events publish to; empty falls back to
// DefaultIntentEventExchange.
func NewOrchestrator(repo store.Repository, meridian *meridianclient.Client, cache ReadCache, producer rabbitmq.Publisher, eventExchange string) *Orchestrator {
	if eventExchange == "" {
		eventExchange = DefaultIntentEventExchange
	}
	return &Orchestrator{
		repo:           repo,
		meridianClient: meridian,
		readCache:      cache,
		eventProducer:  producer,
		eventExchange:  eventExchange,
	}
}

// Validate checks an intent locally. Every line item must carry a resolved
// account name, a non-empty narration, and a positive amount. Errors attach to
// the offending items only; a clean item's state is untouched.
func (o *Orchestrator) Validate(intent *domain.TransactionIntent) error {
	itemErrors := make(map[uuid.UUID]FieldErrors)
	for _, item := range intent.Items {
		fields := FieldErrors{}
		if item.Resolution.Phase != domain.ResolutionResolved {
			fields["account"] = "recipient account is not resolved"
		}
		if item.Narration == "" {
			fields["narration"] = "narration is required"
		}
		if item.Amount <= 0 {
			fields["amount"] = "amount must be greater than zero"
		}
		if len(fields) > 0 {
			itemErrors[item.ID] = fields
		}
	}
	if len(intent.Items) == 0 {
		return &ValidationError{Items: itemErrors}
	}
	if len(itemErrors) > 0 {
		return &ValidationError{Items: itemErrors}
	}
	return nil
}

// Submit validates the intent, forwards it to Meridian with the transaction
// PIN attached, and finalizes the intent from the response. Single and bulk
// intents use distinct Meridian operations. On success the balance and
// recent-transactions caches are invalidated and flagged beneficiaries saved.
func (o *Orchestrator) Submit(ctx context.Context, intent *domain.TransactionIntent, transactionPIN string) error {
	if err := o.Validate(intent); err != nil {
		return err
	}

	log.Printf("Submit: submitting intent %s kind=%s items=%d total=%d", intent.ID, intent.Kind, len(intent.Items), intent.TotalAmount())

	intent.Status = domain.IntentSubmitted
	if err := o.repo.UpdateIntentStatus(ctx, intent.ID, domain.IntentSubmitted, "", ""); err != nil {
		log.Printf("Submit: failed to record submitted status for intent %s: %v", intent.ID, err)
	}
	o.publishLifecycle(ctx, intent, "payout.intent.submitted")

	resp, err := o.dispatch(ctx, intent, transactionPIN)
	if err != nil {
		var meridianErr *meridianclient.ErrorResponse
		if errors.As(err, &meridianErr) && meridianErr.PinRejected() {
			// The intent is still pending; the caller reopens the PIN gate.
			intent.Status = domain.IntentPendingAuthorization
			if repoErr := o.repo.UpdateIntentStatus(ctx, intent.ID, domain.IntentPendingAuthorization, "", ""); repoErr != nil {
				log.Printf("Submit: failed to restore pending status for intent %s: %v", intent.ID, repoErr)
			}
			return fmt.Errorf("%s: %w", err.Error(), ErrPinRejected)
		}

		intent.Status = domain.IntentFailed
		intent.FailureReason = err.Error()
		if repoErr := o.repo.UpdateIntentStatus(ctx, intent.ID, domain.IntentFailed, "", intent.FailureReason); repoErr != nil {
			log.Printf("Submit: failed to record failure for intent %s: %v", intent.ID, repoErr)
		}
		o.publishLifecycle(ctx, intent, "payout.intent.failed")
		return fmt.Errorf("payout submission failed: %w", err)
	}

	intent.Status = domain.IntentSettled
	intent.Reference = resp.Data.Attributes.Reference
	if err := o.repo.UpdateIntentStatus(ctx, intent.ID, domain.IntentSettled, intent.Reference, ""); err != nil {
		log.Printf("Submit: failed to record settlement for intent %s: %v", intent.ID, err)
	}

	o.saveFlaggedBeneficiaries(ctx, intent)
	o.invalidateReadCaches(ctx, intent.UserID)
	o.publishLifecycle(ctx, intent, "payout.intent.settled")

	log.Printf("Submit: intent %s settled with reference %s", intent.ID, intent.Reference)
	return nil
}

// dispatch routes the intent to the right Meridian operation.
func (o *Orchestrator) dispatch(ctx context.Context, intent *domain.TransactionIntent, transactionPIN string) (*meridianclient.PayoutResponse, error) {
	if intent.Kind == domain.DraftBulk {
		items := make([]meridianclient.PayoutItem, len(intent.Items))
		for i, item := range intent.Items {
			items[i] = payoutItem(item)
		}
		return o.meridianClient.SubmitBulkPayout(ctx, intent.GroupName, items, transactionPIN)
	}
	return o.meridianClient.SubmitPayout(ctx, payoutItem(intent.Items[0]), transactionPIN)
}

func payoutItem(item domain.TransferLineItem) meridianclient.PayoutItem {
	return meridianclient.PayoutItem{
		BankID:        item.BankID,
		AccountNumber: item.AccountNumber,
		RecipientTag:  item.RecipientTag,
		Amount:        item.Amount,
		Narration:     item.Narration,
	}
}

// saveFlaggedBeneficiaries persists recipients the user asked to keep. A save
// failure never fails a settled payout.
func (o *Orchestrator) saveFlaggedBeneficiaries(ctx context.Context, intent *domain.TransactionIntent) {
	for _, item := range intent.Items {
		if !item.SaveBeneficiary || item.RecipientTag != "" {
			continue
		}
		beneficiary := &domain.Beneficiary{
			ID:                  uuid.New(),
			UserID:              intent.UserID,
			BankID:              item.BankID,
			AccountName:         item.Resolution.AccountName,
			AccountNumberMasked: store.MaskAccountNumber(item.AccountNumber),
		}
		if err := o.repo.SaveBeneficiary(ctx, beneficiary); err != nil {
			log.Printf("saveFlaggedBeneficiaries: failed to save beneficiary for intent %s: %v", intent.ID, err)
		}
	}
}

// invalidateReadCaches drops the balance and recent-transactions views so the
// next read refetches. Single and bulk share this contract.
func (o *Orchestrator) invalidateReadCaches(ctx context.Context, userID uuid.UUID) {
	if o.readCache == nil {
		return
	}
	if err := o.readCache.InvalidateBalance(ctx, userID); err != nil {
		log.Printf("invalidateReadCaches: balance invalidation failed for user %s: %v", userID, err)
	}
	if err := o.readCache.InvalidateRecentTransactions(ctx, userID); err != nil {
		log.Printf("invalidateReadCaches: recent transactions invalidation failed for user %s: %v", userID, err)
	}
}

func (o *Orchestrator) publishLifecycle(ctx context.Context, intent *domain.TransactionIntent, routingKey string) {
	if o.eventProducer == nil {
		return
	}
	event := domain.IntentLifecycleEvent{
		IntentID:    intent.ID,
		UserID:      intent.UserID,
		Kind:        intent.Kind,
		Status:      intent.Status,
		Reference:   intent.Reference,
		TotalAmount: intent.TotalAmount(),
		ItemCount:   len(intent.Items),
		Timestamp:   time.Now().UTC(),
	}
	if err := o.eventProducer.Publish(ctx, o.eventExchange, routingKey, event); err != nil {
		log.Printf("publishLifecycle: failed to publish %s for intent %s: %v", routingKey, intent.ID, err)
	}
}
