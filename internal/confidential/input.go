// input.go - Externally supplied ciphertexts.
//
// An ExternalInput is produced off-ledger by the account owner: an
// ElGamal-style encryption of (amount, randomness) against the engine key,
// a commitment binding it to the (caller, ledger) pair, and a Groth16 proof
// that the whole object is well formed. Seal builds the encryption; proof
// generation lives in the encproof package.

package confidential

import (
	"math/big"

	bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377"
	bls12377_fp "github.com/consensys/gnark-crypto/ecc/bls12-377/fp"
	"github.com/consensys/gnark/std/algebra/native/sw_bls12377"
	"github.com/ethereum/go-ethereum/common"
)

// ExternalInput carries a caller-constructed ciphertext into the engine.
// All field elements are decimal strings; points use the gnark affine form
// so the same values feed the public witness during verification.
type ExternalInput struct {
	Commitment string               `json:"commitment"` // cm = MiMC(amount, rand, binding)
	Binding    string               `json:"binding"`    // MiMC(caller || ledger)
	Cipher     [2]string            `json:"cipher"`     // masked (amount, rand)
	G          sw_bls12377.G1Affine `json:"g"`          // group generator
	Gr         sw_bls12377.G1Affine `json:"gr"`         // g^r, the ElGamal ephemeral
	Proof      []byte               `json:"proof"`      // Groth16 proof of encryption
}

// Sealed is the result of encrypting an amount for the engine. Input is the
// public part submitted to the ledger; the remaining fields are the secrets
// the proof of encryption is built from and must never leave the caller.
type Sealed struct {
	Input ExternalInput

	Amount *big.Int
	Rand   *big.Int
	R      *big.Int
	EncKey bls12377.G1Affine
}

// Seal encrypts amount for the engine identified by enginePk, bound to the
// (caller, ledger) pair. The returned Sealed has an empty proof; callers
// attach one via encproof before submitting.
func Seal(amount uint32, caller, ledger common.Address, enginePk *bls12377.G1Affine) (*Sealed, error) {
	// Ephemeral ElGamal scalar and points.
	r := randomScalar()
	g1Jac, _, _, _ := bls12377.Generators()
	var g, gr, encKey bls12377.G1Affine
	g.FromJacobian(&g1Jac)
	gr.ScalarMultiplication(&g, r)
	encKey.ScalarMultiplication(enginePk, r)

	amt := new(big.Int).SetUint64(uint64(amount))
	rnd := new(big.Int).SetBytes(mimcHash(randomBytes(32)))
	binding := Binding(caller, ledger)
	cm := commitment(amt, rnd, binding)

	masks := encMasks(&encKey)
	var amtEl, rndEl, c0, c1 bls12377_fp.Element
	amtEl.SetBigInt(amt)
	rndEl.SetBigInt(rnd)
	c0.Add(&amtEl, &masks[0])
	c1.Add(&rndEl, &masks[1])

	return &Sealed{
		Input: ExternalInput{
			Commitment: cm.String(),
			Binding:    binding.String(),
			Cipher:     [2]string{elementString(&c0), elementString(&c1)},
			G:          ToGnarkPoint(&g),
			Gr:         ToGnarkPoint(&gr),
		},
		Amount: amt,
		Rand:   rnd,
		R:      r,
		EncKey: encKey,
	}, nil
}

// ToGnarkPoint converts a native BLS12-377 point to gnark witness form.
func ToGnarkPoint(p *bls12377.G1Affine) sw_bls12377.G1Affine {
	xBytes := p.X.Bytes()
	yBytes := p.Y.Bytes()
	return sw_bls12377.G1Affine{
		X: new(big.Int).SetBytes(xBytes[:]).String(),
		Y: new(big.Int).SetBytes(yBytes[:]).String(),
	}
}

// fromGnarkPoint converts a gnark affine point back to native form.
func fromGnarkPoint(p *sw_bls12377.G1Affine) (*bls12377.G1Affine, bool) {
	x, okX := p.X.(string)
	y, okY := p.Y.(string)
	if !okX || !okY {
		return nil, false
	}
	xi, okX := new(big.Int).SetString(x, 10)
	yi, okY := new(big.Int).SetString(y, 10)
	if !okX || !okY {
		return nil, false
	}
	var out bls12377.G1Affine
	out.X.SetBigInt(xi)
	out.Y.SetBigInt(yi)
	return &out, true
}

func elementString(e *bls12377_fp.Element) string {
	return e.BigInt(new(big.Int)).String()
}
