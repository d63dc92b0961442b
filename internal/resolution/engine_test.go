package resolution

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tamfolio/treegar-orchestration-service/internal/domain"
)

type resolverCall struct {
	bankID        string
	accountNumber string
	tag           string
}

type resolverStub struct {
	mu      sync.Mutex
	calls   []resolverCall
	name    string
	err     error
	release chan struct{} // when non-nil, calls block until closed
}

func (s *resolverStub) ResolveBankAccount(ctx context.Context, bankID, accountNumber string) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, resolverCall{bankID: bankID, accountNumber: accountNumber})
	release := s.release
	name, err := s.name, s.err
	s.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return name, err
}

func (s *resolverStub) ResolveCustomerTag(ctx context.Context, tag string) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, resolverCall{tag: tag})
	name, err := s.name, s.err
	s.mu.Unlock()
	return name, err
}

func (s *resolverStub) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *resolverStub) setResult(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
	s.err = err
}

func (s *resolverStub) lastCall() resolverCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 {
		return resolverCall{}
	}
	return s.calls[len(s.calls)-1]
}

func waitForPhase(t *testing.T, engine *Engine, itemID uuid.UUID, phase domain.ResolutionPhase) domain.ResolutionState {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		state := engine.State(itemID)
		if state.Phase == phase {
			return state
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for phase %q, item stuck at %q", phase, state.Phase)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestEngineResolvesAfterQuietPeriod(t *testing.T) {
	resolver := &resolverStub{name: "ADAEZE OKONKWO"}
	engine := NewEngine(resolver, 10*time.Millisecond)
	defer engine.Close()

	itemID := uuid.New()
	engine.NoteAccountEdit(itemID, "bank_044", "0123456789")

	state := waitForPhase(t, engine, itemID, domain.ResolutionResolved)
	if state.AccountName != "ADAEZE OKONKWO" {
		t.Fatalf("expected resolved account name, got %q", state.AccountName)
	}
	if got := resolver.callCount(); got != 1 {
		t.Fatalf("expected 1 lookup, got %d", got)
	}
}

func TestEngineDoesNotFireOnIncompleteInputs(t *testing.T) {
	resolver := &resolverStub{name: "ADAEZE OKONKWO"}
	engine := NewEngine(resolver, 5*time.Millisecond)
	defer engine.Close()

	itemID := uuid.New()
	engine.NoteAccountEdit(itemID, "", "0123456789") // no bank selected
	engine.NoteAccountEdit(itemID, "bank_044", "01234")

	time.Sleep(40 * time.Millisecond)
	if got := resolver.callCount(); got != 0 {
		t.Fatalf("expected no lookups for incomplete inputs, got %d", got)
	}
	if state := engine.State(itemID); state.Phase != domain.ResolutionUnresolved {
		t.Fatalf("expected unresolved, got %q", state.Phase)
	}
}

func TestEngineRetriesFailedItemOnUnchangedResubmit(t *testing.T) {
	resolver := &resolverStub{err: errors.New("provider unavailable")}
	engine := NewEngine(resolver, 5*time.Millisecond)
	defer engine.Close()

	itemID := uuid.New()
	engine.NoteAccountEdit(itemID, "bank_044", "0123456789")
	waitForPhase(t, engine, itemID, domain.ResolutionFailed)

	// The provider recovers; the user re-submits the item without touching the
	// bank or account number. The failed lookup must be retried rather than
	// swallowed by the unchanged-inputs guard.
	resolver.setResult("ADAEZE OKONKWO", nil)
	engine.NoteAccountEdit(itemID, "bank_044", "0123456789")

	state := waitForPhase(t, engine, itemID, domain.ResolutionResolved)
	if state.AccountName != "ADAEZE OKONKWO" {
		t.Fatalf("expected resolved account name after retry, got %q", state.AccountName)
	}
	if got := resolver.callCount(); got != 2 {
		t.Fatalf("expected 2 lookups, got %d", got)
	}
}

func TestEngineRapidEditsFireOnce(t *testing.T) {
	resolver := &resolverStub{name: "ADAEZE OKONKWO"}
	engine := NewEngine(resolver, 30*time.Millisecond)
	defer engine.Close()

	// Scenario: the user finishes the account number, then switches bank before
	// the debounce elapses. Only one call may fire, with the final bank value.
	itemID := uuid.New()
	engine.NoteAccountEdit(itemID, "bank_044", "0123456789")
	time.Sleep(10 * time.Millisecond)
	engine.NoteAccountEdit(itemID, "bank_058", "0123456789")

	waitForPhase(t, engine, itemID, domain.ResolutionResolved)
	if got := resolver.callCount(); got != 1 {
		t.Fatalf("expected exactly 1 lookup, got %d", got)
	}
	if call := resolver.lastCall(); call.bankID != "bank_058" {
		t.Fatalf("expected lookup with final bank value, got %q", call.bankID)
	}
}

func TestEngineDiscardsStaleInFlightResult(t *testing.T) {
	release := make(chan struct{})
	resolver := &resolverStub{name: "STALE NAME", release: release}
	engine := NewEngine(resolver, 5*time.Millisecond)
	defer engine.Close()

	itemID := uuid.New()
	engine.NoteAccountEdit(itemID, "bank_044", "0123456789")
	waitForPhase(t, engine, itemID, domain.ResolutionResolving)

	// Edit while the call is in flight: the item must drop back to Unresolved
	// immediately, not when the stale call returns.
	engine.NoteAccountEdit(itemID, "bank_044", "0123456780")
	if state := engine.State(itemID); state.Phase == domain.ResolutionResolved {
		t.Fatalf("stale state visible after edit: %+v", state)
	}

	close(release)

	// The superseded call's result must never be written back; the second
	// edit's own lookup resolves instead.
	state := waitForPhase(t, engine, itemID, domain.ResolutionResolved)
	if call := resolver.lastCall(); call.accountNumber != "0123456780" {
		t.Fatalf("expected final lookup for edited number, got %q", call.accountNumber)
	}
	if state.AccountName != "STALE NAME" {
		// Both calls return the same stub name; the assertion that matters is
		// that the applied result came from the final call.
		t.Fatalf("unexpected account name %q", state.AccountName)
	}
	if got := resolver.callCount(); got != 2 {
		t.Fatalf("expected 2 lookups, got %d", got)
	}
}

func TestEngineBulkItemsResolveIndependently(t *testing.T) {
	resolver := &resolverStub{name: "ADAEZE OKONKWO"}
	engine := NewEngine(resolver, 5*time.Millisecond)
	defer engine.Close()

	okItem := uuid.New()
	failItem := uuid.New()

	engine.NoteAccountEdit(okItem, "bank_044", "0123456789")
	waitForPhase(t, engine, okItem, domain.ResolutionResolved)

	resolver.mu.Lock()
	resolver.err = errors.New("account not found")
	resolver.mu.Unlock()

	engine.NoteAccountEdit(failItem, "bank_058", "9876543210")
	failState := waitForPhase(t, engine, failItem, domain.ResolutionFailed)
	if failState.FailureReason == "" {
		t.Fatal("expected failure reason on failed item")
	}

	// The failed item never disturbs the resolved one.
	if state := engine.State(okItem); state.Phase != domain.ResolutionResolved {
		t.Fatalf("resolved item was disturbed: %q", state.Phase)
	}
}

func TestEngineAmountEditsDoNotResetResolution(t *testing.T) {
	resolver := &resolverStub{name: "ADAEZE OKONKWO"}
	engine := NewEngine(resolver, 5*time.Millisecond)
	defer engine.Close()

	itemID := uuid.New()
	engine.NoteAccountEdit(itemID, "bank_044", "0123456789")
	waitForPhase(t, engine, itemID, domain.ResolutionResolved)

	// A redundant upsert with the same lookup inputs (the user edited amount or
	// narration) must not reset or refire.
	engine.NoteAccountEdit(itemID, "bank_044", "0123456789")
	if state := engine.State(itemID); state.Phase != domain.ResolutionResolved {
		t.Fatalf("redundant edit reset resolution to %q", state.Phase)
	}
	if got := resolver.callCount(); got != 1 {
		t.Fatalf("expected no second lookup, got %d", got)
	}
}

func TestEngineTagLookup(t *testing.T) {
	resolver := &resolverStub{name: "CHIDI EZE"}
	engine := NewEngine(resolver, 5*time.Millisecond)
	defer engine.Close()

	itemID := uuid.New()
	engine.NoteTagEdit(itemID, "ch") // below minimum length
	time.Sleep(20 * time.Millisecond)
	if got := resolver.callCount(); got != 0 {
		t.Fatalf("expected no lookup below minimum tag length, got %d", got)
	}

	engine.NoteTagEdit(itemID, "chidi")
	state := waitForPhase(t, engine, itemID, domain.ResolutionResolved)
	if state.AccountName != "CHIDI EZE" {
		t.Fatalf("expected tag resolution name, got %q", state.AccountName)
	}
	if call := resolver.lastCall(); call.tag != "chidi" {
		t.Fatalf("expected tag lookup, got %+v", call)
	}
}

func TestEngineSweepStuckFailsOldResolving(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	resolver := &resolverStub{name: "ADAEZE OKONKWO", release: release}
	engine := NewEngine(resolver, 5*time.Millisecond)
	defer engine.Close()

	itemID := uuid.New()
	engine.NoteAccountEdit(itemID, "bank_044", "0123456789")
	waitForPhase(t, engine, itemID, domain.ResolutionResolving)

	time.Sleep(15 * time.Millisecond)
	if swept := engine.SweepStuck(10 * time.Millisecond); swept != 1 {
		t.Fatalf("expected 1 swept item, got %d", swept)
	}

	state := engine.State(itemID)
	if state.Phase != domain.ResolutionFailed || state.FailureReason != "resolution timed out" {
		t.Fatalf("expected timed-out failure, got %+v", state)
	}

	// Fresh items are left alone.
	if swept := engine.SweepStuck(10 * time.Millisecond); swept != 0 {
		t.Fatalf("expected nothing left to sweep, got %d", swept)
	}
}

func TestEngineNotifiesListener(t *testing.T) {
	resolver := &resolverStub{name: "ADAEZE OKONKWO"}
	engine := NewEngine(resolver, 5*time.Millisecond)
	defer engine.Close()

	var mu sync.Mutex
	var phases []domain.ResolutionPhase
	engine.SetUpdateListener(func(itemID uuid.UUID, state domain.ResolutionState) {
		mu.Lock()
		defer mu.Unlock()
		phases = append(phases, state.Phase)
	})

	itemID := uuid.New()
	engine.NoteAccountEdit(itemID, "bank_044", "0123456789")
	waitForPhase(t, engine, itemID, domain.ResolutionResolved)

	mu.Lock()
	defer mu.Unlock()
	want := []domain.ResolutionPhase{domain.ResolutionUnresolved, domain.ResolutionResolving, domain.ResolutionResolved}
	if len(phases) != len(want) {
		t.Fatalf("expected %d notifications, got %d (%v)", len(want), len(phases), phases)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Fatalf("expected phase sequence %v, got %v", want, phases)
		}
	}
}
