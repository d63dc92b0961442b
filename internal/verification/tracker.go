/**
 * @description
 * This file contains the Tracker, which owns the per-customer verification
 * record snapshot and the debounced refresh that follows a successful
 * sub-verification or document upload. Every snapshot swap recomputes the
 * active step via DeriveActiveStep; the freshly derived step always wins and is
 * written back over whatever a consumer may have cached.
 *
 * @notes
 * - Refreshes are debounced (~2s by default) to give the provider time to
 *   propagate the result of the verification that just finished.
 * - Step change notifications fire outside the tracker lock.
 */

package verification

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/tamfolio/treegar-orchestration-service/internal/domain"
)

// RecordSource fetches the authoritative verification record snapshot for a
// customer. The Meridian client is adapted to this interface by the app layer.
type RecordSource interface {
	FetchVerificationRecords(ctx context.Context, customerID string) ([]domain.VerificationRecord, error)
}

// StepListener receives a notification whenever a snapshot swap changes the
// derived active step.
type StepListener func(event domain.VerificationStepChangedEvent)

type customerState struct {
	customerType domain.CustomerType
	records      []domain.VerificationRecord
	activeStep   domain.VerificationStep
	hasSnapshot  bool
	refreshTimer *time.Timer
}

// Tracker holds verification snapshots and derived steps for registered
// customers and schedules debounced refreshes against the record source.
type Tracker struct {
	mu           sync.Mutex
	source       RecordSource
	refreshDelay time.Duration
	listener     StepListener
	customers    map[string]*customerState
	closed       bool
}

// NewTracker creates a tracker that waits refreshDelay between a refresh
// request and the actual fetch.
func NewTracker(source RecordSource, refreshDelay time.Duration) *Tracker {
	if refreshDelay <= 0 {
		refreshDelay = 2 * time.Second
	}
	return &Tracker{
		source:       source,
		refreshDelay: refreshDelay,
		customers:    make(map[string]*customerState),
	}
}

// SetStepListener registers the step change callback. Must be called before
// the tracker starts receiving snapshots.
func (t *Tracker) SetStepListener(fn StepListener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listener = fn
}

// Register makes the tracker aware of a customer and their journey type. The
// derived step starts at the journey's first step until a snapshot arrives.
func (t *Tracker) Register(customerID string, customerType domain.CustomerType) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.customers[customerID]; ok {
		return
	}
	t.customers[customerID] = &customerState{
		customerType: customerType,
		activeStep:   DeriveActiveStep(nil, customerType),
	}
}

// ApplyRecords swaps in a fresh record snapshot, recomputes the active step and
// returns it. The derived step always replaces the previous one, moving the
// active pointer backward when a refresh reveals an earlier check was rejected.
func (t *Tracker) ApplyRecords(customerID string, records []domain.VerificationRecord) domain.VerificationStep {
	t.mu.Lock()
	state, ok := t.customers[customerID]
	if !ok {
		t.mu.Unlock()
		return ""
	}

	previous := state.activeStep
	hadSnapshot := state.hasSnapshot
	fresh := DeriveActiveStep(records, state.customerType)

	state.records = records
	state.activeStep = fresh
	state.hasSnapshot = true
	listener := t.listener
	customerType := state.customerType
	t.mu.Unlock()

	if listener != nil && (!hadSnapshot || previous != fresh) {
		listener(domain.VerificationStepChangedEvent{
			CustomerID:   customerID,
			CustomerType: customerType,
			PreviousStep: previous,
			ActiveStep:   fresh,
			Timestamp:    time.Now().UTC(),
		})
	}
	return fresh
}

// ActiveStep returns the derived step for a customer. ok is false until a
// record snapshot has been applied, so callers know the registration default
// is all they would get and can fetch instead.
func (t *Tracker) ActiveStep(customerID string) (domain.VerificationStep, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.customers[customerID]
	if !ok {
		return "", false
	}
	return state.activeStep, state.hasSnapshot
}

// Records returns a copy of the customer's current record snapshot.
func (t *Tracker) Records(customerID string) []domain.VerificationRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.customers[customerID]
	if !ok || len(state.records) == 0 {
		return nil
	}
	out := make([]domain.VerificationRecord, len(state.records))
	copy(out, state.records)
	return out
}

// ScheduleRefresh arms (or re-arms) the customer's debounced refresh timer. A
// burst of verification successes collapses into one fetch after the delay.
func (t *Tracker) ScheduleRefresh(customerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	state, ok := t.customers[customerID]
	if !ok || t.closed {
		return
	}
	if state.refreshTimer != nil {
		state.refreshTimer.Stop()
	}
	state.refreshTimer = time.AfterFunc(t.refreshDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if _, err := t.Refresh(ctx, customerID); err != nil {
			log.Printf("level=warn component=verification_tracker msg=\"scheduled refresh failed\" customer_id=%s err=%v", customerID, err)
		}
	})
}

// Refresh fetches the snapshot from the record source immediately and applies it.
func (t *Tracker) Refresh(ctx context.Context, customerID string) (domain.VerificationStep, error) {
	records, err := t.source.FetchVerificationRecords(ctx, customerID)
	if err != nil {
		return "", err
	}
	return t.ApplyRecords(customerID, records), nil
}

// Close stops all pending refresh timers.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	for _, state := range t.customers {
		if state.refreshTimer != nil {
			state.refreshTimer.Stop()
			state.refreshTimer = nil
		}
	}
}
