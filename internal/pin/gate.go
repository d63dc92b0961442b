/**
 * @description
 * This package implements the PIN authorization gate that sits between a
 * pending transaction intent and its submission. It owns the ephemeral
 * 4-digit challenge state: digit slots, focus position, attempt counter,
 * and the collect/submit lifecycle.
 *
 * Key features:
 * - Digit-level input handling: single digits, backspace, and paste, with
 *   the focus semantics the transfer authorization flow depends on.
 * - Rejection recovery: a rejected attempt clears every slot, returns focus
 *   to slot 0, and increments the attempt counter so the caller can retry.
 * - Submission guard: the challenge can never enter the submitting state
 *   with fewer than four populated digits, and cannot be closed while a
 *   submission is in flight.
 *
 * @notes
 * - PIN digits live only inside the challenge and are wiped on every
 *   terminal transition. They are never logged and never leave this
 *   package except inside the authorize callback.
 */

package pin

import (
	"context"
	"errors"
	"sync"
)

// SlotCount is the number of digit slots in a challenge.
const SlotCount = 4

var (
	// ErrNotADigit is returned when input contains a non-digit character.
	ErrNotADigit = errors.New("pin input must be a digit")
	// ErrBadPaste is returned when pasted text is not 1-4 digits.
	ErrBadPaste = errors.New("pasted pin must be 1 to 4 digits")
	// ErrIncompletePin is returned by Submit when fewer than four slots are populated.
	ErrIncompletePin = errors.New("pin requires 4 digits")
	// ErrRejected is returned by Submit when the backend rejects the PIN.
	// The challenge stays open for another attempt.
	ErrRejected = errors.New("pin rejected")
	// ErrSubmitInFlight is returned when an operation arrives while a
	// submission is outstanding.
	ErrSubmitInFlight = errors.New("pin submission in flight")
	// ErrChallengeClosed is returned after Close or a terminal transition.
	ErrChallengeClosed = errors.New("pin challenge closed")
)

// Phase is the lifecycle phase of a challenge.
type Phase string

const (
	PhaseCollecting Phase = "collecting"
	PhaseSubmitting Phase = "submitting"
	PhaseSettled    Phase = "settled"
	PhaseFailed     Phase = "failed"
)

// Authorizer forwards the completed PIN to submission. The caller wires it to
// the payout orchestrator with the pending intent already bound. It must
// return an error wrapping ErrRejected when the PIN itself was refused, and
// any other error for a submission failure.
type Authorizer func(ctx context.Context, pin string) error

// View is the externally visible snapshot of a challenge. It reports which
// slots are populated without exposing the digits themselves.
type View struct {
	Slots        [SlotCount]bool
	Focus        int
	Attempt      int
	Phase        Phase
	ErrorMessage string
}

// Challenge collects a 4-digit PIN for one pending transaction intent.
type Challenge struct {
	mu        sync.Mutex
	digits    [SlotCount]byte // 0 means empty
	focus     int
	attempt   int
	phase     Phase
	errMsg    string
	closed    bool
	authorize Authorizer
}

// NewChallenge creates a challenge in the collecting phase with all slots
// empty and focus on slot 0.
func NewChallenge(authorize Authorizer) *Challenge {
	return &Challenge{phase: PhaseCollecting, authorize: authorize}
}

// EnterDigit stores a single digit in the focused slot and advances focus.
// Non-digit characters are rejected and never stored.
func (c *Challenge) EnterDigit(ch byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.collectingLocked(); err != nil {
		return err
	}
	if ch < '0' || ch > '9' {
		return ErrNotADigit
	}

	c.digits[c.focus] = ch
	if c.focus < SlotCount-1 {
		c.focus++
	}
	c.errMsg = ""
	return nil
}

// Backspace clears the focused slot. When the focused slot is already empty
// it moves focus to the previous slot and clears that one too.
func (c *Challenge) Backspace() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.collectingLocked(); err != nil {
		return err
	}

	if c.digits[c.focus] != 0 {
		c.digits[c.focus] = 0
	} else if c.focus > 0 {
		c.focus--
		c.digits[c.focus] = 0
	}
	c.errMsg = ""
	return nil
}

// Paste distributes a 1-4 digit string across the slots starting at the
// focused slot, filling forward, then focuses the slot after the last one
// written (or the last slot).
func (c *Challenge) Paste(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.collectingLocked(); err != nil {
		return err
	}
	if len(text) < 1 || len(text) > SlotCount {
		return ErrBadPaste
	}
	for i := 0; i < len(text); i++ {
		if text[i] < '0' || text[i] > '9' {
			return ErrBadPaste
		}
	}

	slot := c.focus
	for i := 0; i < len(text) && slot < SlotCount; i++ {
		c.digits[slot] = text[i]
		slot++
	}
	if slot > SlotCount-1 {
		slot = SlotCount - 1
	}
	c.focus = slot
	c.errMsg = ""
	return nil
}

// Submit forwards the collected PIN through the authorizer. On rejection the
// slots are cleared, focus returns to slot 0, the attempt counter increments,
// and the challenge stays open; the returned error wraps ErrRejected. Any
// other error fails the challenge terminally.
func (c *Challenge) Submit(ctx context.Context) error {
	c.mu.Lock()
	if err := c.collectingLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	for _, d := range c.digits {
		if d == 0 {
			c.mu.Unlock()
			return ErrIncompletePin
		}
	}
	pin := string(c.digits[:])
	c.phase = PhaseSubmitting
	c.mu.Unlock()

	err := c.authorize(ctx, pin)

	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case err == nil:
		c.wipeLocked()
		c.phase = PhaseSettled
		return nil
	case errors.Is(err, ErrRejected):
		c.wipeLocked()
		c.focus = 0
		c.attempt++
		c.errMsg = err.Error()
		c.phase = PhaseCollecting
		return err
	default:
		c.wipeLocked()
		c.errMsg = err.Error()
		c.phase = PhaseFailed
		return err
	}
}

// Close discards the challenge and wipes all PIN state. Closing is refused
// while a submission is in flight.
func (c *Challenge) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == PhaseSubmitting {
		return ErrSubmitInFlight
	}
	c.wipeLocked()
	c.closed = true
	return nil
}

// View returns a snapshot safe to hand to callers. Digit values are reduced
// to populated/empty flags.
func (c *Challenge) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := View{
		Focus:        c.focus,
		Attempt:      c.attempt,
		Phase:        c.phase,
		ErrorMessage: c.errMsg,
	}
	for i, d := range c.digits {
		v.Slots[i] = d != 0
	}
	return v
}

func (c *Challenge) collectingLocked() error {
	if c.closed {
		return ErrChallengeClosed
	}
	switch c.phase {
	case PhaseCollecting:
		return nil
	case PhaseSubmitting:
		return ErrSubmitInFlight
	default:
		return ErrChallengeClosed
	}
}

func (c *Challenge) wipeLocked() {
	for i := range c.digits {
		c.digits[i] = 0
	}
}
