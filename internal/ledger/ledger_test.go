package ledger

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"confledger/internal/confidential"
)

// acceptAllVerifier skips the Groth16 check so ledger semantics can be
// exercised without proving; the full proof path is covered in the encproof
// package tests.
type acceptAllVerifier struct{}

func (acceptAllVerifier) VerifyEncryption(*confidential.ExternalInput) error { return nil }

func newTestLedger(t *testing.T) (*Ledger, *confidential.Engine, *Collector) {
	t.Helper()
	key, err := confidential.GenerateEngineKey()
	require.NoError(t, err)
	engine := confidential.NewEngine(key, acceptAllVerifier{})
	collector := &Collector{}
	return New(engine, NewMemoryStore(), collector), engine, collector
}

// seal builds an external input for caller without a proof; the test
// verifier accepts it.
func seal(t *testing.T, engine *confidential.Engine, caller common.Address, amount uint32) *confidential.ExternalInput {
	t.Helper()
	sealed, err := confidential.Seal(amount, caller, engine.SelfAddress(), engine.PublicKey())
	require.NoError(t, err)
	return &sealed.Input
}

func decrypt(t *testing.T, engine *confidential.Engine, h confidential.Handle, id common.Address) uint32 {
	t.Helper()
	v, err := engine.Decrypt(h, id)
	require.NoError(t, err)
	return v
}

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
)

func TestGrant(t *testing.T) {
	l, engine, _ := newTestLedger(t)

	require.NoError(t, l.Grant(alice))

	require.True(t, l.HasClaimed(alice))
	require.Equal(t, uint32(100), decrypt(t, engine, l.GetBalance(alice), alice))
	require.Equal(t, StatusOK, decrypt(t, engine, l.GetStatus(alice), alice))
	// The stake slot was never written: still the absent sentinel.
	require.True(t, l.GetStake(alice).IsZero())
}

func TestGrantTwice(t *testing.T) {
	l, engine, collector := newTestLedger(t)

	require.NoError(t, l.Grant(alice))
	err := l.Grant(alice)
	require.ErrorIs(t, err, ErrAlreadyClaimed)

	// First call's balance unaffected, and no second notification.
	require.Equal(t, uint32(100), decrypt(t, engine, l.GetBalance(alice), alice))
	require.Len(t, collector.Events(), 1)
}

func TestStake(t *testing.T) {
	l, engine, _ := newTestLedger(t)
	require.NoError(t, l.Grant(alice))

	require.NoError(t, l.Stake(alice, seal(t, engine, alice, 40)))

	require.Equal(t, uint32(60), decrypt(t, engine, l.GetBalance(alice), alice))
	require.Equal(t, uint32(40), decrypt(t, engine, l.GetStake(alice), alice))
	require.Equal(t, StatusOK, decrypt(t, engine, l.GetStatus(alice), alice))
}

func TestStakeInsufficientBalance(t *testing.T) {
	l, engine, collector := newTestLedger(t)
	require.NoError(t, l.Grant(alice))

	require.NoError(t, l.Stake(alice, seal(t, engine, alice, 150)))

	// Both slots unchanged, only the status records the failure.
	require.Equal(t, uint32(100), decrypt(t, engine, l.GetBalance(alice), alice))
	require.Equal(t, uint32(0), decrypt(t, engine, l.GetStake(alice), alice))
	require.Equal(t, StatusInsufficientBalance, decrypt(t, engine, l.GetStatus(alice), alice))

	// The notification fires regardless of sufficiency.
	events := collector.Events()
	require.Len(t, events, 2)
	require.Equal(t, EventTypeStaked, events[1].Type)
}

func TestWithdraw(t *testing.T) {
	l, engine, _ := newTestLedger(t)
	require.NoError(t, l.Grant(alice))
	require.NoError(t, l.Stake(alice, seal(t, engine, alice, 40)))

	require.NoError(t, l.Withdraw(alice, seal(t, engine, alice, 20)))

	require.Equal(t, uint32(80), decrypt(t, engine, l.GetBalance(alice), alice))
	require.Equal(t, uint32(20), decrypt(t, engine, l.GetStake(alice), alice))
	require.Equal(t, StatusOK, decrypt(t, engine, l.GetStatus(alice), alice))
}

func TestWithdrawInsufficientStake(t *testing.T) {
	l, engine, _ := newTestLedger(t)
	require.NoError(t, l.Grant(alice))
	require.NoError(t, l.Stake(alice, seal(t, engine, alice, 40)))

	require.NoError(t, l.Withdraw(alice, seal(t, engine, alice, 80)))

	require.Equal(t, uint32(60), decrypt(t, engine, l.GetBalance(alice), alice))
	require.Equal(t, uint32(40), decrypt(t, engine, l.GetStake(alice), alice))
	require.Equal(t, StatusInsufficientStake, decrypt(t, engine, l.GetStatus(alice), alice))
}

func TestStatusReflectsMostRecentCall(t *testing.T) {
	l, engine, _ := newTestLedger(t)
	require.NoError(t, l.Grant(alice))

	require.NoError(t, l.Stake(alice, seal(t, engine, alice, 150)))
	require.Equal(t, StatusInsufficientBalance, decrypt(t, engine, l.GetStatus(alice), alice))

	require.NoError(t, l.Stake(alice, seal(t, engine, alice, 40)))
	require.Equal(t, StatusOK, decrypt(t, engine, l.GetStatus(alice), alice))
}

func TestConservation(t *testing.T) {
	l, engine, _ := newTestLedger(t)
	require.NoError(t, l.Grant(alice))

	amounts := []struct {
		op     func(common.Address, *confidential.ExternalInput) error
		amount uint32
	}{
		{l.Stake, 30},
		{l.Stake, 200}, // rejected: leaves both slots untouched
		{l.Withdraw, 10},
		{l.Stake, 75},
		{l.Withdraw, 500}, // rejected
		{l.Withdraw, 95},
	}
	for _, step := range amounts {
		require.NoError(t, step.op(alice, seal(t, engine, alice, step.amount)))
		balance := decrypt(t, engine, l.GetBalance(alice), alice)
		stake := decrypt(t, engine, l.GetStake(alice), alice)
		require.Equal(t, uint32(100), balance+stake)
	}
}

func TestAbsentAccountReads(t *testing.T) {
	l, _, _ := newTestLedger(t)

	require.True(t, l.GetBalance(bob).IsZero())
	require.True(t, l.GetStake(bob).IsZero())
	require.True(t, l.GetStatus(bob).IsZero())
	require.False(t, l.HasClaimed(bob))
}

func TestStoredZeroDistinctFromAbsent(t *testing.T) {
	l, engine, _ := newTestLedger(t)
	require.NoError(t, l.Grant(alice))
	require.NoError(t, l.Stake(alice, seal(t, engine, alice, 150)))

	// The failed stake committed a pass-through stake of zero: a real
	// handle, not the absent sentinel.
	h := l.GetStake(alice)
	require.False(t, h.IsZero())
	require.Equal(t, uint32(0), decrypt(t, engine, h, alice))
}

func TestInvalidBindingRejected(t *testing.T) {
	l, engine, collector := newTestLedger(t)
	require.NoError(t, l.Grant(alice))
	before := len(collector.Events())

	// Sealed for bob: the binding check fails for alice.
	in := seal(t, engine, bob, 40)
	err := l.Stake(alice, in)
	require.ErrorIs(t, err, ErrInvalidProof)

	// Hard abort: no state change, no notification.
	require.Equal(t, uint32(100), decrypt(t, engine, l.GetBalance(alice), alice))
	require.True(t, l.GetStake(alice).IsZero())
	require.Len(t, collector.Events(), before)
}

func TestDualAccessGrants(t *testing.T) {
	l, engine, _ := newTestLedger(t)
	require.NoError(t, l.Grant(alice))

	h := l.GetBalance(alice)

	// Owner and ledger self can decrypt; anyone else cannot.
	_, err := engine.Decrypt(h, alice)
	require.NoError(t, err)
	_, err = engine.Decrypt(h, engine.SelfAddress())
	require.NoError(t, err)
	_, err = engine.Decrypt(h, bob)
	require.ErrorIs(t, err, confidential.ErrAccessDenied)
}

func TestEventsCarryIdentityOnly(t *testing.T) {
	l, engine, collector := newTestLedger(t)
	require.NoError(t, l.Grant(alice))
	require.NoError(t, l.Stake(alice, seal(t, engine, alice, 40)))
	require.NoError(t, l.Withdraw(alice, seal(t, engine, alice, 10)))

	events := collector.Events()
	require.Len(t, events, 3)
	for i, typ := range []string{EventTypeGranted, EventTypeStaked, EventTypeWithdrawn} {
		require.Equal(t, typ, events[i].Type)
		require.Equal(t, map[string]string{"account": alice.Hex()}, events[i].Attributes)
	}
}

func TestIndependentAccounts(t *testing.T) {
	l, engine, _ := newTestLedger(t)
	require.NoError(t, l.Grant(alice))
	require.NoError(t, l.Grant(bob))
	require.NoError(t, l.Stake(alice, seal(t, engine, alice, 40)))

	require.Equal(t, uint32(60), decrypt(t, engine, l.GetBalance(alice), alice))
	require.Equal(t, uint32(100), decrypt(t, engine, l.GetBalance(bob), bob))
	require.True(t, l.GetStake(bob).IsZero())
}

func TestStoreSaveLoad(t *testing.T) {
	key, err := confidential.GenerateEngineKey()
	require.NoError(t, err)
	engine := confidential.NewEngine(key, acceptAllVerifier{})
	store := NewMemoryStore()
	l := New(engine, store, nil)

	require.NoError(t, l.Grant(alice))
	require.NoError(t, l.Stake(alice, seal(t, engine, alice, 25)))

	path := t.TempDir() + "/ledger.json"
	require.NoError(t, store.SaveToFile(path))
	loaded, err := LoadStoreFromFile(path)
	require.NoError(t, err)

	// Handles survive the round trip; the engine still resolves them.
	reopened := New(engine, loaded, nil)
	require.True(t, reopened.HasClaimed(alice))
	require.Equal(t, uint32(75), decrypt(t, engine, reopened.GetBalance(alice), alice))
	require.Equal(t, uint32(25), decrypt(t, engine, reopened.GetStake(alice), alice))
}

func TestRestartRestoresState(t *testing.T) {
	key, err := confidential.GenerateEngineKey()
	require.NoError(t, err)
	engine := confidential.NewEngine(key, acceptAllVerifier{})
	store := NewMemoryStore()
	l := New(engine, store, nil)

	require.NoError(t, l.Grant(alice))
	require.NoError(t, l.Stake(alice, seal(t, engine, alice, 40)))

	dir := t.TempDir()
	ledgerPath := filepath.Join(dir, "ledger.json")
	enginePath := filepath.Join(dir, "engine.json")
	require.NoError(t, store.SaveToFile(ledgerPath))
	require.NoError(t, engine.SaveToFile(enginePath))

	// Rebuild both halves from disk, as the daemon does on boot. The store's
	// handles only mean something to the engine table that minted them.
	engine2, err := confidential.LoadEngineFromFile(enginePath)
	require.NoError(t, err)
	engine2.SetVerifier(acceptAllVerifier{})
	store2, err := LoadStoreFromFile(ledgerPath)
	require.NoError(t, err)
	l2 := New(engine2, store2, nil)

	require.True(t, l2.HasClaimed(alice))
	require.Equal(t, uint32(60), decrypt(t, engine2, l2.GetBalance(alice), alice))
	require.Equal(t, uint32(40), decrypt(t, engine2, l2.GetStake(alice), alice))

	// Operations keep working against the restored handles.
	require.NoError(t, l2.Stake(alice, seal(t, engine2, alice, 10)))
	require.Equal(t, uint32(50), decrypt(t, engine2, l2.GetBalance(alice), alice))
	require.Equal(t, uint32(50), decrypt(t, engine2, l2.GetStake(alice), alice))
	require.Equal(t, StatusOK, decrypt(t, engine2, l2.GetStatus(alice), alice))
}

func TestStoreSaveConcurrent(t *testing.T) {
	key, err := confidential.GenerateEngineKey()
	require.NoError(t, err)
	engine := confidential.NewEngine(key, acceptAllVerifier{})
	store := NewMemoryStore()
	l := New(engine, store, nil)
	require.NoError(t, l.Grant(alice))

	// Concurrent snapshots of the same path must never leave a torn file.
	path := filepath.Join(t.TempDir(), "ledger.json")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if err := store.SaveToFile(path); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	loaded, err := LoadStoreFromFile(path)
	require.NoError(t, err)
	require.Equal(t, uint32(100), decrypt(t, engine, New(engine, loaded, nil).GetBalance(alice), alice))
}
