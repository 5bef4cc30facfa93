// ledger.go - The encrypted-state-transition core.
//
// Grant credits the fixed one-time amount; Stake and Withdraw move an
// encrypted amount between the balance and stake slots. Both candidate
// outcomes of a stake or withdraw are always computed and a confidential
// select commits exactly one, so success and insufficiency are
// indistinguishable to every observer including the ledger operator.

package ledger

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"confledger/internal/confidential"
)

// Status codes committed to the status slot. The values are public; which
// one applies to a given account is not.
const (
	StatusOK                  uint32 = 0
	StatusInsufficientBalance uint32 = 1
	StatusInsufficientStake   uint32 = 2
)

// GrantAmount is the fixed one-time grant credited per identity.
const GrantAmount uint32 = 100

// ErrAlreadyClaimed is returned when an identity calls Grant twice.
var ErrAlreadyClaimed = errors.New("grant already claimed")

// ErrInvalidProof mirrors the engine's import failure for callers that only
// import this package.
var ErrInvalidProof = confidential.ErrInvalidProof

// Ledger is the confidential balance ledger. It is a pure function of
// (prior store state, operation, inputs); the host serializes calls.
type Ledger struct {
	arith   confidential.Arithmetic
	store   Store
	emitter Emitter
}

// New creates a ledger over the given arithmetic capability and store.
// A nil emitter discards notifications.
func New(arith confidential.Arithmetic, store Store, emitter Emitter) *Ledger {
	if emitter == nil {
		emitter = NopEmitter{}
	}
	return &Ledger{arith: arith, store: store, emitter: emitter}
}

// resolve returns the slot's current ciphertext, synthesizing a fresh
// confidential zero when the existence flag is unset. The zero is built
// lazily here rather than stored for every untouched account.
func (l *Ledger) resolve(slot Slot, id common.Address) confidential.Ciphertext {
	if c, ok := l.store.Get(slot, id); ok {
		return c
	}
	return l.arith.FromPlain(0)
}

// commit writes a slot and, in the same unit, sets the existence flag and
// records the dual access grant (ledger self + account owner). Every write
// path goes through here so no call site can omit the bookkeeping.
func (l *Ledger) commit(slot Slot, id common.Address, c confidential.Ciphertext) {
	l.store.Set(slot, id, c)
	l.arith.GrantAccess(c, id)
	l.arith.GrantAccessToSelf(c)
}

// Grant credits the fixed grant amount to the caller's balance, once per
// identity. Fails with ErrAlreadyClaimed on a second call; there is no other
// failure branch.
func (l *Ledger) Grant(caller common.Address) error {
	if l.store.Claimed(caller) {
		return ErrAlreadyClaimed
	}

	current := l.resolve(SlotBalance, caller)
	updated, err := l.arith.Add(current, l.arith.FromPlain(GrantAmount))
	if err != nil {
		return err
	}
	status := l.arith.FromPlain(StatusOK)

	l.commit(SlotBalance, caller, updated)
	l.commit(SlotStatus, caller, status)
	l.store.SetClaimed(caller)
	l.emitter.Emit(newAccountEvent(EventTypeGranted, caller))
	return nil
}

// Stake moves an encrypted amount from balance to stake. The amount arrives
// as an external ciphertext with proof; proof failure aborts with
// ErrInvalidProof and no state change. Insufficient balance is not an error:
// both slots pass through unchanged and the status slot records
// StatusInsufficientBalance, with control flow identical to success.
func (l *Ledger) Stake(caller common.Address, in *confidential.ExternalInput) error {
	amount, err := l.arith.ImportExternal(in, caller)
	if err != nil {
		return err
	}

	balance := l.resolve(SlotBalance, caller)
	stake := l.resolve(SlotStake, caller)

	sufficient, err := l.arith.Ge(balance, amount)
	if err != nil {
		return err
	}
	balanceIfOk, err := l.arith.Sub(balance, amount)
	if err != nil {
		return err
	}
	stakeIfOk, err := l.arith.Add(stake, amount)
	if err != nil {
		return err
	}

	newBalance, err := l.arith.Select(sufficient, balanceIfOk, balance)
	if err != nil {
		return err
	}
	newStake, err := l.arith.Select(sufficient, stakeIfOk, stake)
	if err != nil {
		return err
	}
	status, err := l.arith.Select(sufficient,
		l.arith.FromPlain(StatusOK), l.arith.FromPlain(StatusInsufficientBalance))
	if err != nil {
		return err
	}

	l.commit(SlotBalance, caller, newBalance)
	l.commit(SlotStake, caller, newStake)
	l.commit(SlotStatus, caller, status)
	l.emitter.Emit(newAccountEvent(EventTypeStaked, caller))
	return nil
}

// Withdraw moves an encrypted amount from stake back to balance, symmetric
// to Stake with the comparison against the stake slot and the failure status
// StatusInsufficientStake.
func (l *Ledger) Withdraw(caller common.Address, in *confidential.ExternalInput) error {
	amount, err := l.arith.ImportExternal(in, caller)
	if err != nil {
		return err
	}

	balance := l.resolve(SlotBalance, caller)
	stake := l.resolve(SlotStake, caller)

	sufficient, err := l.arith.Ge(stake, amount)
	if err != nil {
		return err
	}
	stakeIfOk, err := l.arith.Sub(stake, amount)
	if err != nil {
		return err
	}
	balanceIfOk, err := l.arith.Add(balance, amount)
	if err != nil {
		return err
	}

	newBalance, err := l.arith.Select(sufficient, balanceIfOk, balance)
	if err != nil {
		return err
	}
	newStake, err := l.arith.Select(sufficient, stakeIfOk, stake)
	if err != nil {
		return err
	}
	status, err := l.arith.Select(sufficient,
		l.arith.FromPlain(StatusOK), l.arith.FromPlain(StatusInsufficientStake))
	if err != nil {
		return err
	}

	l.commit(SlotBalance, caller, newBalance)
	l.commit(SlotStake, caller, newStake)
	l.commit(SlotStatus, caller, status)
	l.emitter.Emit(newAccountEvent(EventTypeWithdrawn, caller))
	return nil
}

// GetBalance returns the raw balance handle, or the zero handle when the
// slot was never written. Callers decrypt off-component.
func (l *Ledger) GetBalance(id common.Address) confidential.Handle {
	return l.read(SlotBalance, id)
}

// GetStake returns the raw stake handle, or the zero handle.
func (l *Ledger) GetStake(id common.Address) confidential.Handle {
	return l.read(SlotStake, id)
}

// GetStatus returns the raw status handle, or the zero handle.
func (l *Ledger) GetStatus(id common.Address) confidential.Handle {
	return l.read(SlotStatus, id)
}

// HasClaimed reports the public one-time-claim flag.
func (l *Ledger) HasClaimed(id common.Address) bool {
	return l.store.Claimed(id)
}

func (l *Ledger) read(slot Slot, id common.Address) confidential.Handle {
	if c, ok := l.store.Get(slot, id); ok {
		return c.Handle()
	}
	return confidential.Handle{}
}
