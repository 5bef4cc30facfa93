// engine.go - The confidential arithmetic engine.
//
// The Engine owns the handle -> value table and the per-handle access grants.
// Ledger code drives it exclusively through the Arithmetic interface and never
// observes a plaintext; Decrypt is the off-component path for granted owners
// (and tests).

package confidential

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"sync"

	bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377"
	bls12377_fp "github.com/consensys/gnark-crypto/ecc/bls12-377/fp"
	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrInvalidProof is returned when an external ciphertext fails
	// verification: bad binding, malformed cipher, commitment mismatch, or a
	// failing proof of encryption.
	ErrInvalidProof = errors.New("invalid proof of encryption")

	// ErrUnknownHandle is returned when an operation references a handle the
	// engine never minted.
	ErrUnknownHandle = errors.New("unknown ciphertext handle")

	// ErrAccessDenied is returned by Decrypt when the principal holds no
	// access grant for the handle.
	ErrAccessDenied = errors.New("no access grant for handle")
)

// ProofVerifier checks the proof of encryption attached to an external input.
type ProofVerifier interface {
	VerifyEncryption(in *ExternalInput) error
}

// Arithmetic is the confidential arithmetic capability the ledger is written
// against: branch-free integer arithmetic, comparison, and selection over
// opaque handles.
type Arithmetic interface {
	// FromPlain encrypts a public constant under a fresh handle.
	FromPlain(v uint32) Ciphertext
	// Add returns a fresh ciphertext holding a + b (mod 2^32).
	Add(a, b Ciphertext) (Ciphertext, error)
	// Sub returns a fresh ciphertext holding a - b (mod 2^32).
	Sub(a, b Ciphertext) (Ciphertext, error)
	// Ge returns a confidential boolean holding a >= b.
	Ge(a, b Ciphertext) (Bool, error)
	// Select returns ifTrue when cond holds, else ifFalse, as a fresh
	// ciphertext unlinkable to either operand.
	Select(cond Bool, ifTrue, ifFalse Ciphertext) (Ciphertext, error)
	// ImportExternal validates a caller-supplied ciphertext and registers it
	// under a handle. Fails with ErrInvalidProof.
	ImportExternal(in *ExternalInput, caller common.Address) (Ciphertext, error)
	// GrantAccess records that principal may later decrypt the value.
	GrantAccess(c Ciphertext, principal common.Address)
	// GrantAccessToSelf grants the ledger standing access to the value.
	GrantAccessToSelf(c Ciphertext)
}

// Engine is the reference Arithmetic implementation.
type Engine struct {
	mu       sync.RWMutex
	key      *EngineKey
	verifier ProofVerifier
	self     common.Address
	values   map[Ciphertext]uint32
	bools    map[Bool]bool
	access   map[Handle]map[common.Address]struct{}
}

var _ Arithmetic = (*Engine)(nil)

// NewEngine creates an engine around the given keypair. The engine's self
// address, used for standing access grants and ciphertext bindings, is
// derived from its public key.
func NewEngine(key *EngineKey, verifier ProofVerifier) *Engine {
	xBytes := key.Pk.X.Bytes()
	yBytes := key.Pk.Y.Bytes()
	digest := mimcHash(xBytes[:], yBytes[:])
	return &Engine{
		key:      key,
		verifier: verifier,
		self:     common.BytesToAddress(digest[len(digest)-20:]),
		values:   make(map[Ciphertext]uint32),
		bools:    make(map[Bool]bool),
		access:   make(map[Handle]map[common.Address]struct{}),
	}
}

// SetVerifier installs the proof verifier. Engines restored from disk start
// without one because the verifier is built from the restored public key.
func (e *Engine) SetVerifier(v ProofVerifier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.verifier = v
}

// SelfAddress returns the engine's own principal identity.
func (e *Engine) SelfAddress() common.Address {
	return e.self
}

// PublicKey returns the key clients seal external inputs against.
func (e *Engine) PublicKey() *bls12377.G1Affine {
	return e.key.Pk
}

// mintHandle derives a fresh nonzero handle from MiMC over fresh randomness.
func mintHandle() Handle {
	for {
		var h Handle
		copy(h[:], mimcHash(randomBytes(32)))
		if !h.IsZero() {
			return h
		}
	}
}

// FromPlain encrypts a public constant under a fresh handle.
func (e *Engine) FromPlain(v uint32) Ciphertext {
	e.mu.Lock()
	defer e.mu.Unlock()
	c := Ciphertext(mintHandle())
	e.values[c] = v
	return c
}

// Add returns a fresh ciphertext holding a + b (mod 2^32).
func (e *Engine) Add(a, b Ciphertext) (Ciphertext, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	av, aok := e.values[a]
	bv, bok := e.values[b]
	if !aok || !bok {
		return Ciphertext{}, ErrUnknownHandle
	}
	c := Ciphertext(mintHandle())
	e.values[c] = av + bv
	return c, nil
}

// Sub returns a fresh ciphertext holding a - b (mod 2^32).
func (e *Engine) Sub(a, b Ciphertext) (Ciphertext, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	av, aok := e.values[a]
	bv, bok := e.values[b]
	if !aok || !bok {
		return Ciphertext{}, ErrUnknownHandle
	}
	c := Ciphertext(mintHandle())
	e.values[c] = av - bv
	return c, nil
}

// Ge returns a confidential boolean holding a >= b.
func (e *Engine) Ge(a, b Ciphertext) (Bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	av, aok := e.values[a]
	bv, bok := e.values[b]
	if !aok || !bok {
		return Bool{}, ErrUnknownHandle
	}
	cond := Bool(mintHandle())
	e.bools[cond] = av >= bv
	return cond, nil
}

// Select returns ifTrue when cond holds, else ifFalse. The result is a fresh
// ciphertext: committing it reveals nothing about which operand was taken.
func (e *Engine) Select(cond Bool, ifTrue, ifFalse Ciphertext) (Ciphertext, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cv, cok := e.bools[cond]
	tv, tok := e.values[ifTrue]
	fv, fok := e.values[ifFalse]
	if !cok || !tok || !fok {
		return Ciphertext{}, ErrUnknownHandle
	}
	c := Ciphertext(mintHandle())
	if cv {
		e.values[c] = tv
	} else {
		e.values[c] = fv
	}
	return c, nil
}

// ImportExternal validates a caller-supplied ciphertext and registers it.
// The checks run in order: binding, cipher decryption, commitment, range,
// proof of encryption. Any failure surfaces as ErrInvalidProof.
func (e *Engine) ImportExternal(in *ExternalInput, caller common.Address) (Ciphertext, error) {
	if in == nil {
		return Ciphertext{}, fmt.Errorf("%w: nil input", ErrInvalidProof)
	}
	if Binding(caller, e.self).String() != in.Binding {
		return Ciphertext{}, fmt.Errorf("%w: binding mismatch", ErrInvalidProof)
	}

	gr, ok := fromGnarkPoint(&in.Gr)
	if !ok {
		return Ciphertext{}, fmt.Errorf("%w: malformed ephemeral point", ErrInvalidProof)
	}
	var encKey bls12377.G1Affine
	encKey.ScalarMultiplication(gr, e.key.Sk.BigInt(new(big.Int)))

	masks := encMasks(&encKey)
	var c0, c1 bls12377_fp.Element
	if _, err := c0.SetString(in.Cipher[0]); err != nil {
		return Ciphertext{}, fmt.Errorf("%w: malformed cipher", ErrInvalidProof)
	}
	if _, err := c1.SetString(in.Cipher[1]); err != nil {
		return Ciphertext{}, fmt.Errorf("%w: malformed cipher", ErrInvalidProof)
	}
	var amtEl, rndEl bls12377_fp.Element
	amtEl.Sub(&c0, &masks[0])
	rndEl.Sub(&c1, &masks[1])
	amount := amtEl.BigInt(new(big.Int))
	rnd := rndEl.BigInt(new(big.Int))

	if !amount.IsUint64() || amount.Uint64() > math.MaxUint32 {
		return Ciphertext{}, fmt.Errorf("%w: amount out of range", ErrInvalidProof)
	}

	binding, ok := new(big.Int).SetString(in.Binding, 10)
	if !ok {
		return Ciphertext{}, fmt.Errorf("%w: malformed binding", ErrInvalidProof)
	}
	if commitment(amount, rnd, binding).String() != in.Commitment {
		return Ciphertext{}, fmt.Errorf("%w: commitment mismatch", ErrInvalidProof)
	}

	e.mu.RLock()
	verifier := e.verifier
	e.mu.RUnlock()
	if verifier == nil {
		return Ciphertext{}, fmt.Errorf("%w: no verifier installed", ErrInvalidProof)
	}
	if err := verifier.VerifyEncryption(in); err != nil {
		return Ciphertext{}, fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}

	// Handle derived from the commitment: re-importing the same ciphertext
	// yields the same handle. The zero handle is reserved as the absent
	// sentinel, so a degenerate commitment is rejected outright.
	cm, _ := new(big.Int).SetString(in.Commitment, 10)
	var h Handle
	copy(h[:], fieldBytes(cm))
	if h.IsZero() {
		return Ciphertext{}, fmt.Errorf("%w: degenerate commitment", ErrInvalidProof)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	c := Ciphertext(h)
	e.values[c] = uint32(amount.Uint64())
	return c, nil
}

// GrantAccess records that principal may later decrypt the value.
func (e *Engine) GrantAccess(c Ciphertext, principal common.Address) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h := Handle(c)
	if e.access[h] == nil {
		e.access[h] = make(map[common.Address]struct{})
	}
	e.access[h][principal] = struct{}{}
}

// GrantAccessToSelf grants the engine's owning ledger standing access.
func (e *Engine) GrantAccessToSelf(c Ciphertext) {
	e.GrantAccess(c, e.self)
}

// Decrypt recovers the value behind a handle for a granted principal. This is
// the off-component decryption path: ledger operations never call it.
func (e *Engine) Decrypt(h Handle, principal common.Address) (uint32, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.values[Ciphertext(h)]
	if !ok {
		return 0, ErrUnknownHandle
	}
	if _, granted := e.access[h][principal]; !granted {
		return 0, ErrAccessDenied
	}
	return v, nil
}

// HasAccess reports whether principal holds a grant for the handle.
func (e *Engine) HasAccess(h Handle, principal common.Address) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, granted := e.access[h][principal]
	return granted
}
