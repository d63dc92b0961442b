/**
 * @description
 * This file contains the core session logic for the orchestration service. The
 * `Service` struct owns the in-flight transfer drafts, the account resolution
 * engine, the verification tracker, and the PIN challenges, and coordinates
 * them with the payout orchestrator, the database repository, and the message
 * broker.
 *
 * Key features:
 * - Transfer drafts: single, bulk, and tag drafts with per-item edits feeding
 *   the debounced resolution engine.
 * - Authorization: freezes a validated draft into a transaction intent and
 *   opens a PIN challenge for it. At most one intent per user may sit in
 *   pending authorization.
 * - Verification overview: registers customers with the tracker and evaluates
 *   the business document gate on demand.
 *
 * @dependencies
 * - context, errors, fmt, log, sync: Standard Go libraries.
 * - github.com/google/uuid: For UUID generation.
 * - internal/domain, internal/store: For domain models and data access.
 * - internal/resolution, internal/verification, internal/payout, internal/pin:
 *   The engines this service coordinates.
 * - pkg/meridianclient, pkg/rabbitmq: For external service communication.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tamfolio/treegar-orchestration-service/internal/domain"
	"github.com/tamfolio/treegar-orchestration-service/internal/payout"
	"github.com/tamfolio/treegar-orchestration-service/internal/pin"
	"github.com/tamfolio/treegar-orchestration-service/internal/resolution"
	"github.com/tamfolio/treegar-orchestration-service/internal/store"
	"github.com/tamfolio/treegar-orchestration-service/internal/verification"
	"github.com/tamfolio/treegar-orchestration-service/pkg/meridianclient"
	"github.com/tamfolio/treegar-orchestration-service/pkg/rabbitmq"
)

var (
	ErrDraftNotFound        = errors.New("draft not found")
	ErrLineItemNotFound     = errors.New("line item not found")
	ErrChallengeNotFound    = errors.New("challenge not found")
	ErrIntentAlreadyPending = errors.New("an intent is already pending authorization")
	ErrEmptyDraft           = errors.New("draft has no line items")
	ErrNotDraftOwner        = errors.New("draft belongs to another user")
)

// LineItemInput carries one edit to a draft line item. Amount arrives as the
// display string the user typed and is normalized to kobo here.
type LineItemInput struct {
	ItemID          *uuid.UUID
	BankID          string
	AccountNumber   string
	RecipientTag    string
	Amount          string
	Narration       string
	SaveBeneficiary bool
}

// VerificationOverview is the read model for the KYC journey screen.
type VerificationOverview struct {
	ActiveStep   domain.VerificationStep     `json:"active_step"`
	CustomerType domain.CustomerType         `json:"customer_type"`
	Records      []domain.VerificationRecord `json:"records"`
	DocumentGate *verification.DocumentGate  `json:"document_gate,omitempty"`
	Outstanding  []domain.DocumentRecord     `json:"outstanding_documents,omitempty"`
}

type challengeEntry struct {
	challenge *pin.Challenge
	intentID  uuid.UUID
	userID    uuid.UUID
	draftID   uuid.UUID
}

// Service provides the core session logic for transfer orchestration.
type Service struct {
	repo          store.Repository
	meridian      *meridianclient.Client
	recordSource  *meridianRecordSource
	orchestrator  *payout.Orchestrator
	Resolution    *resolution.Engine
	Verification  *verification.Tracker
	eventProducer rabbitmq.Publisher
	eventExchange string

	mu         sync.Mutex
	drafts     map[uuid.UUID]*domain.TransactionIntent
	challenges map[uuid.UUID]*challengeEntry
	pending    map[uuid.UUID]uuid.UUID // userID -> challengeID
}

// NewService wires the engines together around the shared Meridian client.
// eventExchange names the topic exchange events publish to; empty falls back
// to payout.DefaultIntentEventExchange.
func NewService(repo store.Repository, meridian *meridianclient.Client, producer rabbitmq.Publisher, cache payout.ReadCache, eventExchange string, debounce, refreshDelay time.Duration) *Service {
	if eventExchange == "" {
		eventExchange = payout.DefaultIntentEventExchange
	}
	recordSource := &meridianRecordSource{client: meridian}
	s := &Service{
		repo:          repo,
		meridian:      meridian,
		recordSource:  recordSource,
		orchestrator:  payout.NewOrchestrator(repo, meridian, cache, producer, eventExchange),
		Resolution:    resolution.NewEngine(&meridianResolver{client: meridian}, debounce),
		Verification:  verification.NewTracker(recordSource, refreshDelay),
		eventProducer: producer,
		eventExchange: eventExchange,
		drafts:        make(map[uuid.UUID]*domain.TransactionIntent),
		challenges:    make(map[uuid.UUID]*challengeEntry),
		pending:       make(map[uuid.UUID]uuid.UUID),
	}
	s.Verification.SetStepListener(s.publishStepChange)
	return s
}

// Close releases the engines' timers.
func (s *Service) Close() {
	s.Resolution.Close()
	s.Verification.Close()
}

// ResolveCustomer loads the customer row for a validated JWT subject.
func (s *Service) ResolveCustomer(ctx context.Context, subjectID string) (*domain.Customer, error) {
	return s.repo.FindCustomerBySubjectID(ctx, subjectID)
}

// CreateDraft opens a new transfer draft for the user.
func (s *Service) CreateDraft(ctx context.Context, userID uuid.UUID, kind domain.DraftKind, groupName string) (*domain.TransactionIntent, error) {
	switch kind {
	case domain.DraftSingle, domain.DraftBulk, domain.DraftTag:
	default:
		return nil, fmt.Errorf("unknown draft kind %q", kind)
	}

	draft := &domain.TransactionIntent{
		ID:        uuid.New(),
		UserID:    userID,
		Kind:      kind,
		GroupName: groupName,
		Status:    domain.IntentDraft,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.drafts[draft.ID] = draft
	s.mu.Unlock()

	log.Printf("CreateDraft: user %s opened %s draft %s", userID, kind, draft.ID)
	return s.draftSnapshot(draft.ID, userID)
}

// UpsertLineItem creates or updates a line item and feeds the resolution
// engine. Edits that only touch amount or narration leave the item's
// resolution state alone; edits to the lookup inputs reset and re-debounce it.
func (s *Service) UpsertLineItem(ctx context.Context, userID, draftID uuid.UUID, input LineItemInput) (*domain.TransactionIntent, error) {
	var amount int64
	if input.Amount != "" {
		parsed, err := payout.ParseAmount(input.Amount)
		if err != nil {
			return nil, err
		}
		amount = parsed
	}

	s.mu.Lock()
	draft, ok := s.drafts[draftID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrDraftNotFound
	}
	if draft.UserID != userID {
		s.mu.Unlock()
		return nil, ErrNotDraftOwner
	}

	var item *domain.TransferLineItem
	if input.ItemID != nil {
		for i := range draft.Items {
			if draft.Items[i].ID == *input.ItemID {
				item = &draft.Items[i]
				break
			}
		}
		if item == nil {
			s.mu.Unlock()
			return nil, ErrLineItemNotFound
		}
	} else {
		if draft.Kind != domain.DraftBulk && len(draft.Items) >= 1 {
			s.mu.Unlock()
			return nil, fmt.Errorf("%s draft carries exactly one line item", draft.Kind)
		}
		draft.Items = append(draft.Items, domain.TransferLineItem{ID: uuid.New(), Resolution: domain.Unresolved()})
		item = &draft.Items[len(draft.Items)-1]
	}

	item.BankID = input.BankID
	item.AccountNumber = input.AccountNumber
	item.RecipientTag = input.RecipientTag
	item.Amount = amount
	item.Narration = input.Narration
	item.SaveBeneficiary = input.SaveBeneficiary
	draft.UpdatedAt = time.Now().UTC()
	itemID := item.ID
	kind := draft.Kind
	s.mu.Unlock()

	if kind == domain.DraftTag {
		s.Resolution.NoteTagEdit(itemID, input.RecipientTag)
	} else {
		s.Resolution.NoteAccountEdit(itemID, input.BankID, input.AccountNumber)
	}

	return s.draftSnapshot(draftID, userID)
}

// RemoveLineItem deletes a line item and its resolution state.
func (s *Service) RemoveLineItem(ctx context.Context, userID, draftID, itemID uuid.UUID) error {
	s.mu.Lock()
	draft, ok := s.drafts[draftID]
	if !ok {
		s.mu.Unlock()
		return ErrDraftNotFound
	}
	if draft.UserID != userID {
		s.mu.Unlock()
		return ErrNotDraftOwner
	}
	found := false
	for i := range draft.Items {
		if draft.Items[i].ID == itemID {
			draft.Items = append(draft.Items[:i], draft.Items[i+1:]...)
			found = true
			break
		}
	}
	s.mu.Unlock()
	if !found {
		return ErrLineItemNotFound
	}
	s.Resolution.Remove(itemID)
	return nil
}

// Draft returns a snapshot of the draft with live resolution states attached.
func (s *Service) Draft(ctx context.Context, userID, draftID uuid.UUID) (*domain.TransactionIntent, error) {
	return s.draftSnapshot(draftID, userID)
}

func (s *Service) draftSnapshot(draftID, userID uuid.UUID) (*domain.TransactionIntent, error) {
	s.mu.Lock()
	draft, ok := s.drafts[draftID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrDraftNotFound
	}
	if draft.UserID != userID {
		s.mu.Unlock()
		return nil, ErrNotDraftOwner
	}
	snapshot := *draft
	snapshot.Items = make([]domain.TransferLineItem, len(draft.Items))
	copy(snapshot.Items, draft.Items)
	s.mu.Unlock()

	for i := range snapshot.Items {
		snapshot.Items[i].Resolution = s.Resolution.State(snapshot.Items[i].ID)
	}
	return &snapshot, nil
}

// Authorize validates the draft, freezes it into a transaction intent, and
// opens a PIN challenge for it. Only one intent per user may be pending
// authorization at a time.
func (s *Service) Authorize(ctx context.Context, userID, draftID uuid.UUID) (uuid.UUID, error) {
	snapshot, err := s.draftSnapshot(draftID, userID)
	if err != nil {
		return uuid.Nil, err
	}
	if len(snapshot.Items) == 0 {
		return uuid.Nil, ErrEmptyDraft
	}
	if err := s.orchestrator.Validate(snapshot); err != nil {
		return uuid.Nil, err
	}

	s.mu.Lock()
	if _, exists := s.pending[userID]; exists {
		s.mu.Unlock()
		return uuid.Nil, ErrIntentAlreadyPending
	}
	// Reserve the slot before the repo call so a concurrent Authorize cannot
	// slip in while the lock is released.
	challengeID := uuid.New()
	s.pending[userID] = challengeID
	s.mu.Unlock()

	intent := snapshot
	intent.Status = domain.IntentPendingAuthorization
	if err := s.repo.CreateIntent(ctx, intent); err != nil {
		s.mu.Lock()
		delete(s.pending, userID)
		s.mu.Unlock()
		return uuid.Nil, fmt.Errorf("failed to record intent: %w", err)
	}

	challenge := pin.NewChallenge(func(ctx context.Context, pinCode string) error {
		if err := s.orchestrator.Submit(ctx, intent, pinCode); err != nil {
			if errors.Is(err, payout.ErrPinRejected) {
				return fmt.Errorf("incorrect transaction pin: %w", pin.ErrRejected)
			}
			return err
		}
		return nil
	})

	s.mu.Lock()
	s.challenges[challengeID] = &challengeEntry{
		challenge: challenge,
		intentID:  intent.ID,
		userID:    userID,
		draftID:   draftID,
	}
	s.mu.Unlock()

	log.Printf("Authorize: intent %s pending authorization for user %s (challenge %s)", intent.ID, userID, challengeID)
	return challengeID, nil
}

// Challenge returns the masked view of a PIN challenge.
func (s *Service) Challenge(challengeID uuid.UUID) (pin.View, error) {
	entry, err := s.challengeEntry(challengeID)
	if err != nil {
		return pin.View{}, err
	}
	return entry.challenge.View(), nil
}

// EnterChallengeDigit forwards one typed digit.
func (s *Service) EnterChallengeDigit(challengeID uuid.UUID, digit byte) (pin.View, error) {
	entry, err := s.challengeEntry(challengeID)
	if err != nil {
		return pin.View{}, err
	}
	if err := entry.challenge.EnterDigit(digit); err != nil {
		return pin.View{}, err
	}
	return entry.challenge.View(), nil
}

// ChallengeBackspace forwards a backspace keystroke.
func (s *Service) ChallengeBackspace(challengeID uuid.UUID) (pin.View, error) {
	entry, err := s.challengeEntry(challengeID)
	if err != nil {
		return pin.View{}, err
	}
	if err := entry.challenge.Backspace(); err != nil {
		return pin.View{}, err
	}
	return entry.challenge.View(), nil
}

// ChallengePaste forwards pasted digits.
func (s *Service) ChallengePaste(challengeID uuid.UUID, text string) (pin.View, error) {
	entry, err := s.challengeEntry(challengeID)
	if err != nil {
		return pin.View{}, err
	}
	if err := entry.challenge.Paste(text); err != nil {
		return pin.View{}, err
	}
	return entry.challenge.View(), nil
}

// SubmitChallenge submits the collected PIN. On settlement the draft and the
// pending slot are released; on rejection both stay so the user can retry; on
// a terminal failure the pending slot is released but the draft survives for
// editing.
func (s *Service) SubmitChallenge(ctx context.Context, challengeID uuid.UUID) (pin.View, error) {
	entry, err := s.challengeEntry(challengeID)
	if err != nil {
		return pin.View{}, err
	}

	submitErr := entry.challenge.Submit(ctx)
	switch {
	case submitErr == nil:
		s.releaseChallenge(entry, challengeID, true)
	case errors.Is(submitErr, pin.ErrRejected),
		errors.Is(submitErr, pin.ErrIncompletePin),
		errors.Is(submitErr, pin.ErrSubmitInFlight):
		// Challenge stays open.
	default:
		s.releaseChallenge(entry, challengeID, false)
	}
	return entry.challenge.View(), submitErr
}

// CloseChallenge cancels a challenge. Refused while a submission is in flight;
// otherwise the intent is voided and the draft returns to editing.
func (s *Service) CloseChallenge(ctx context.Context, challengeID uuid.UUID) error {
	entry, err := s.challengeEntry(challengeID)
	if err != nil {
		return err
	}
	if err := entry.challenge.Close(); err != nil {
		return err
	}
	s.releaseChallenge(entry, challengeID, false)
	if err := s.repo.UpdateIntentStatus(ctx, entry.intentID, domain.IntentFailed, "", "authorization cancelled"); err != nil {
		log.Printf("CloseChallenge: failed to void intent %s: %v", entry.intentID, err)
	}
	log.Printf("CloseChallenge: intent %s cancelled by user %s", entry.intentID, entry.userID)
	return nil
}

func (s *Service) challengeEntry(challengeID uuid.UUID) (*challengeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.challenges[challengeID]
	if !ok {
		return nil, ErrChallengeNotFound
	}
	return entry, nil
}

// releaseChallenge frees the user's pending slot and, when the intent
// settled, tears the draft and its resolution state down.
func (s *Service) releaseChallenge(entry *challengeEntry, challengeID uuid.UUID, settled bool) {
	s.mu.Lock()
	delete(s.challenges, challengeID)
	if s.pending[entry.userID] == challengeID {
		delete(s.pending, entry.userID)
	}
	var itemIDs []uuid.UUID
	if settled {
		if draft, ok := s.drafts[entry.draftID]; ok {
			for _, item := range draft.Items {
				itemIDs = append(itemIDs, item.ID)
			}
			delete(s.drafts, entry.draftID)
		}
	}
	s.mu.Unlock()

	for _, itemID := range itemIDs {
		s.Resolution.Remove(itemID)
	}
}

// Overview assembles the KYC journey read model for a customer. Business
// customers on the documents step also get the upload gate and the outstanding
// checklist.
func (s *Service) Overview(ctx context.Context, customer *domain.Customer) (*VerificationOverview, error) {
	s.Verification.Register(customer.MeridianCustomerID, customer.CustomerType)

	step, ok := s.Verification.ActiveStep(customer.MeridianCustomerID)
	if !ok {
		refreshed, err := s.Verification.Refresh(ctx, customer.MeridianCustomerID)
		if err != nil {
			return nil, fmt.Errorf("failed to load verification records: %w", err)
		}
		step = refreshed
	}

	overview := &VerificationOverview{
		ActiveStep:   step,
		CustomerType: customer.CustomerType,
		Records:      s.Verification.Records(customer.MeridianCustomerID),
	}

	if customer.CustomerType == domain.CustomerBusiness && step == domain.StepDocuments {
		gate := verification.EvaluateDocumentGate(overview.Records)
		overview.DocumentGate = &gate
		if gate.UploadAllowed {
			docs, err := s.recordSource.fetchDocumentRecords(ctx, customer.MeridianCustomerID)
			if err != nil {
				log.Printf("Overview: failed to load document records for %s: %v", customer.MeridianCustomerID, err)
			} else {
				overview.Outstanding = verification.OutstandingRequiredDocuments(docs)
			}
		}
	}
	return overview, nil
}

// RequestVerificationRefresh schedules a delayed re-fetch of the customer's
// verification records, coalescing bursts into one call.
func (s *Service) RequestVerificationRefresh(customer *domain.Customer) {
	s.Verification.Register(customer.MeridianCustomerID, customer.CustomerType)
	s.Verification.ScheduleRefresh(customer.MeridianCustomerID)
}

// Beneficiaries lists the user's saved recipients.
func (s *Service) Beneficiaries(ctx context.Context, userID uuid.UUID) ([]domain.Beneficiary, error) {
	return s.repo.FindBeneficiariesByUserID(ctx, userID)
}

func (s *Service) publishStepChange(event domain.VerificationStepChangedEvent) {
	if s.eventProducer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.eventProducer.Publish(ctx, s.eventExchange, "verification.step.changed", event); err != nil {
		log.Printf("publishStepChange: failed to publish step change for %s: %v", event.CustomerID, err)
	}
}
