/**
 * @description
 * This file contains the account resolution engine. As the user edits a transfer
 * line item, the engine debounces the remote name lookup, fires it once per
 * quiet period, and guards against stale results overwriting newer state. Each
 * line item owns an independent debounce timer and sequence counter, so bulk
 * drafts can have many lookups pending at once without interfering.
 *
 * @notes
 * - An edit immediately resets the item to Unresolved and bumps its sequence;
 *   an in-flight result is applied only if both the sequence and the input
 *   snapshot still match. Superseded in-flight requests are cancelled outright
 *   via their context.
 * - Failures are isolated per item and are never auto-retried; re-submitting
 *   the item, even with unchanged inputs, retries the lookup.
 */

package resolution

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tamfolio/treegar-orchestration-service/internal/domain"
)

const (
	accountNumberLength = 10
	minTagLength        = 3
	resolveCallTimeout  = 30 * time.Second
)

// Resolver performs the remote lookups. The Meridian client is adapted to this
// interface by the app layer.
type Resolver interface {
	ResolveBankAccount(ctx context.Context, bankID, accountNumber string) (string, error)
	ResolveCustomerTag(ctx context.Context, tag string) (string, error)
}

// UpdateListener receives every resolution state change for an item.
type UpdateListener func(itemID uuid.UUID, state domain.ResolutionState)

type lookupMode int

const (
	lookupAccount lookupMode = iota
	lookupTag
)

type itemState struct {
	seq           uint64
	mode          lookupMode
	bankID        string
	accountNumber string
	tag           string
	state         domain.ResolutionState
	timer         *time.Timer
	cancelInFlight context.CancelFunc
}

// Engine owns debounce timers and resolution state for the line items of all
// active drafts.
type Engine struct {
	mu       sync.Mutex
	resolver Resolver
	debounce time.Duration
	listener UpdateListener
	items    map[uuid.UUID]*itemState
	closed   bool
}

// NewEngine creates an engine that waits debounce between the last qualifying
// edit and the remote call.
func NewEngine(resolver Resolver, debounce time.Duration) *Engine {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	return &Engine{
		resolver: resolver,
		debounce: debounce,
		items:    make(map[uuid.UUID]*itemState),
	}
}

// SetUpdateListener registers the state change callback. Must be called before
// the engine starts receiving edits.
func (e *Engine) SetUpdateListener(fn UpdateListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listener = fn
}

// NoteAccountEdit records a bank/account-number change for an item. Edits to
// other line item fields (amount, narration) must not come through here; they
// do not disturb resolution state.
func (e *Engine) NoteAccountEdit(itemID uuid.UUID, bankID, accountNumber string) {
	e.noteEdit(itemID, lookupAccount, bankID, accountNumber, "")
}

// NoteTagEdit records a recipient tag change for an item.
func (e *Engine) NoteTagEdit(itemID uuid.UUID, tag string) {
	e.noteEdit(itemID, lookupTag, "", "", tag)
}

func (e *Engine) noteEdit(itemID uuid.UUID, mode lookupMode, bankID, accountNumber, tag string) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}

	item, ok := e.items[itemID]
	if !ok {
		item = &itemState{state: domain.Unresolved()}
		e.items[itemID] = item
	} else if item.mode == mode && item.bankID == bankID && item.accountNumber == accountNumber && item.tag == tag &&
		item.state.Phase != domain.ResolutionFailed {
		// Redundant upsert with unchanged lookup inputs; leave the current
		// resolution (and any pending timer) alone. A Failed item falls
		// through so re-submitting the same inputs retries the lookup.
		e.mu.Unlock()
		return
	}

	item.mode = mode
	item.bankID = bankID
	item.accountNumber = accountNumber
	item.tag = tag
	item.seq++
	seq := item.seq

	// The inputs changed: whatever was resolving or resolved is stale now.
	if item.cancelInFlight != nil {
		item.cancelInFlight()
		item.cancelInFlight = nil
	}
	if item.timer != nil {
		item.timer.Stop()
		item.timer = nil
	}
	item.state = domain.ResolutionState{Phase: domain.ResolutionUnresolved, UpdatedAt: time.Now().UTC()}
	notify := e.snapshotListener(itemID, item.state)

	if e.qualifies(item) {
		item.timer = time.AfterFunc(e.debounce, func() {
			e.fire(itemID, seq)
		})
	}
	e.mu.Unlock()

	notify()
}

// qualifies reports whether the item's inputs are complete enough to auto-fire.
func (e *Engine) qualifies(item *itemState) bool {
	switch item.mode {
	case lookupAccount:
		return item.bankID != "" && len(item.accountNumber) == accountNumberLength
	case lookupTag:
		return len(item.tag) >= minTagLength
	}
	return false
}

// fire runs after the debounce period. It re-checks the sequence under the
// lock, marks the item Resolving, performs the remote call without the lock
// held, and applies the result only if the item has not been edited since.
func (e *Engine) fire(itemID uuid.UUID, seq uint64) {
	e.mu.Lock()
	item, ok := e.items[itemID]
	if !ok || e.closed || item.seq != seq || !e.qualifies(item) {
		e.mu.Unlock()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), resolveCallTimeout)
	item.cancelInFlight = cancel
	item.state = domain.ResolutionState{Phase: domain.ResolutionResolving, UpdatedAt: time.Now().UTC()}
	notify := e.snapshotListener(itemID, item.state)

	mode := item.mode
	bankID := item.bankID
	accountNumber := item.accountNumber
	tag := item.tag
	e.mu.Unlock()

	notify()

	var accountName string
	var err error
	switch mode {
	case lookupAccount:
		accountName, err = e.resolver.ResolveBankAccount(ctx, bankID, accountNumber)
	case lookupTag:
		accountName, err = e.resolver.ResolveCustomerTag(ctx, tag)
	}
	cancel()

	e.mu.Lock()
	item, ok = e.items[itemID]
	if !ok || item.seq != seq {
		// The item was edited (or removed) while the call was in flight. The
		// result is stale; applying it would be a lost update.
		e.mu.Unlock()
		return
	}
	if item.mode != mode || item.bankID != bankID || item.accountNumber != accountNumber || item.tag != tag {
		e.mu.Unlock()
		return
	}
	item.cancelInFlight = nil

	if err != nil {
		item.state = domain.ResolutionState{
			Phase:         domain.ResolutionFailed,
			FailureReason: err.Error(),
			UpdatedAt:     time.Now().UTC(),
		}
		log.Printf("level=warn component=resolution_engine msg=\"lookup failed\" item_id=%s err=%v", itemID, err)
	} else {
		item.state = domain.ResolutionState{
			Phase:       domain.ResolutionResolved,
			AccountName: accountName,
			UpdatedAt:   time.Now().UTC(),
		}
	}
	notify = e.snapshotListener(itemID, item.state)
	e.mu.Unlock()

	notify()
}

// State returns the current resolution state for an item.
func (e *Engine) State(itemID uuid.UUID) domain.ResolutionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	item, ok := e.items[itemID]
	if !ok {
		return domain.Unresolved()
	}
	return item.state
}

// Remove drops an item, cancelling any pending timer or in-flight call.
func (e *Engine) Remove(itemID uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	item, ok := e.items[itemID]
	if !ok {
		return
	}
	if item.timer != nil {
		item.timer.Stop()
	}
	if item.cancelInFlight != nil {
		item.cancelInFlight()
	}
	delete(e.items, itemID)
}

// SweepStuck fails any item that has sat in Resolving longer than maxAge. The
// remote call's own timeout normally transitions the item first; the sweep is
// the backstop that guarantees nothing stays in an in-flight state forever.
func (e *Engine) SweepStuck(maxAge time.Duration) int {
	cutoff := time.Now().UTC().Add(-maxAge)

	e.mu.Lock()
	type pending struct {
		itemID uuid.UUID
		state  domain.ResolutionState
	}
	var swept []pending
	for itemID, item := range e.items {
		if item.state.Phase != domain.ResolutionResolving || !item.state.UpdatedAt.Before(cutoff) {
			continue
		}
		if item.cancelInFlight != nil {
			item.cancelInFlight()
			item.cancelInFlight = nil
		}
		item.seq++
		item.state = domain.ResolutionState{
			Phase:         domain.ResolutionFailed,
			FailureReason: "resolution timed out",
			UpdatedAt:     time.Now().UTC(),
		}
		swept = append(swept, pending{itemID: itemID, state: item.state})
	}
	listener := e.listener
	e.mu.Unlock()

	for _, p := range swept {
		log.Printf("level=warn component=resolution_engine msg=\"swept stuck resolution\" item_id=%s", p.itemID)
		if listener != nil {
			listener(p.itemID, p.state)
		}
	}
	return len(swept)
}

// Close stops all timers and cancels in-flight calls.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	for _, item := range e.items {
		if item.timer != nil {
			item.timer.Stop()
			item.timer = nil
		}
		if item.cancelInFlight != nil {
			item.cancelInFlight()
			item.cancelInFlight = nil
		}
	}
}

// snapshotListener captures the listener and a state copy under the lock and
// returns a closure that notifies outside it.
func (e *Engine) snapshotListener(itemID uuid.UUID, state domain.ResolutionState) func() {
	listener := e.listener
	if listener == nil {
		return func() {}
	}
	return func() { listener(itemID, state) }
}
