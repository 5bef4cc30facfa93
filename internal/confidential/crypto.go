// crypto.go - Cryptographic primitives for the confidential arithmetic engine.
//
// Implements MiMC-based commitments and encryption masks plus BLS12-377
// ElGamal-style key exchange for externally supplied ciphertexts. The mask
// chain mirrors the in-circuit encryption in the encproof package: native and
// in-circuit MiMC must agree on every byte.

package confidential

import (
	"crypto/rand"
	"math/big"

	bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377"
	bls12377_fp "github.com/consensys/gnark-crypto/ecc/bls12-377/fp"
	bls12377_fr "github.com/consensys/gnark-crypto/ecc/bls12-377/fr"
	mimcNative "github.com/consensys/gnark-crypto/ecc/bw6-761/fr/mimc"
	"github.com/ethereum/go-ethereum/common"
)

// EngineKey is the engine's BLS12-377 keypair. Clients encrypt external
// inputs against Pk; the engine recovers the shared point with Sk.
type EngineKey struct {
	Sk *bls12377_fr.Element
	Pk *bls12377.G1Affine
}

// GenerateEngineKey generates a fresh BLS12-377 keypair.
func GenerateEngineKey() (*EngineKey, error) {
	var sk bls12377_fr.Element
	if _, err := sk.SetRandom(); err != nil {
		return nil, err
	}
	g1Jac, _, _, _ := bls12377.Generators()
	var pk bls12377.G1Affine
	pk.FromJacobian(&g1Jac)
	pk.ScalarMultiplication(&pk, sk.BigInt(new(big.Int)))
	return &EngineKey{Sk: &sk, Pk: &pk}, nil
}

// randomBytes generates random bytes of specified length using crypto/rand.
func randomBytes(n int) []byte {
	b := make([]byte, n)
	rand.Read(b)
	return b
}

// mimcHash computes the native MiMC hash of the concatenated inputs.
func mimcHash(data ...[]byte) []byte {
	h := mimcNative.NewMiMC()
	for _, d := range data {
		h.Write(fieldBytes(new(big.Int).SetBytes(d)))
	}
	return h.Sum(nil)
}

// fieldBytes returns the canonical fixed-width byte encoding of v as a
// BLS12-377 base field element. Both the native and in-circuit MiMC consume
// this form, so commitments computed on either side match.
func fieldBytes(v *big.Int) []byte {
	var e bls12377_fp.Element
	e.SetBigInt(v)
	b := e.Bytes()
	return b[:]
}

// Binding derives the field element tying an external ciphertext to the
// (caller, ledger) pair it was constructed for. Reusing a ciphertext under a
// different caller or against a different ledger changes the binding and
// fails the commitment check.
func Binding(caller, ledger common.Address) *big.Int {
	return new(big.Int).SetBytes(mimcHash(caller.Bytes(), ledger.Bytes()))
}

// encMasks derives the two encryption masks from the shared point using a
// MiMC hash chain, one mask per encrypted field.
func encMasks(encKey *bls12377.G1Affine) [2]bls12377_fp.Element {
	h := mimcNative.NewMiMC()
	encKeyX := encKey.X.Bytes()
	encKeyY := encKey.Y.Bytes()
	h.Write(encKeyX[:])
	h.Write(encKeyY[:])
	mask1 := h.Sum(nil)

	h.Write(mask1)
	mask2 := h.Sum(nil)

	var m1, m2 bls12377_fp.Element
	m1.SetBigInt(new(big.Int).SetBytes(mask1))
	m2.SetBigInt(new(big.Int).SetBytes(mask2))
	return [2]bls12377_fp.Element{m1, m2}
}

// commitment computes cm = MiMC(amount, rand, binding), the public value an
// imported handle is derived from.
func commitment(amount, rnd, binding *big.Int) *big.Int {
	h := mimcNative.NewMiMC()
	h.Write(fieldBytes(amount))
	h.Write(fieldBytes(rnd))
	h.Write(fieldBytes(binding))
	return new(big.Int).SetBytes(h.Sum(nil))
}

// randomScalar derives a random BLS12-377 scalar the way the rest of the
// protocol derives randomness: hash a fresh seed, reduce mod the group order.
func randomScalar() *big.Int {
	seed := randomBytes(32)
	v := new(big.Int).SetBytes(mimcHash(seed))
	return v.Mod(v, bls12377_fr.Modulus())
}
