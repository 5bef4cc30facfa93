package encproof

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/algebra/native/sw_bls12377"
	"github.com/consensys/gnark/std/hash/mimc"
)

// CircuitEncrypt proves that an external input is a well-formed encryption:
// the cipher fields mask a 32-bit amount and commitment randomness under the
// engine key, and the public commitment opens to exactly those values and the
// stated (caller, ledger) binding.
type CircuitEncrypt struct {
	// Public
	Commitment frontend.Variable    `gnark:",public"`
	Binding    frontend.Variable    `gnark:",public"`
	Cipher     [2]frontend.Variable `gnark:",public"`
	G          sw_bls12377.G1Affine `gnark:",public"`
	Gr         sw_bls12377.G1Affine `gnark:",public"`
	EnginePk   sw_bls12377.G1Affine `gnark:",public"`

	// Private
	Amount frontend.Variable
	Rand   frontend.Variable
	R      frontend.Variable
	EncKey sw_bls12377.G1Affine
}

func (c *CircuitEncrypt) Define(api frontend.API) error {
	// Step 1: Amount fits in 32 bits.
	api.ToBinary(c.Amount, 32)

	// Step 2: Commitment opens to (amount, rand, binding).
	hasher, _ := mimc.NewMiMC(api)
	hasher.Write(c.Amount)
	hasher.Write(c.Rand)
	hasher.Write(c.Binding)
	cmComputed := hasher.Sum()
	api.AssertIsEqual(c.Commitment, cmComputed)

	// Step 3: Cipher is the MiMC-masked encryption under EncKey.
	encVal := encZK(api, c.Amount, c.Rand, c.EncKey)
	for i := 0; i < 2; i++ {
		api.AssertIsEqual(c.Cipher[i], encVal[i])
	}

	// Step 4: Key derivations (Gr = G^r, EncKey = EnginePk^r).
	grComputed := new(sw_bls12377.G1Affine)
	grComputed.ScalarMul(api, c.G, c.R)
	api.AssertIsEqual(c.Gr.X, grComputed.X)
	api.AssertIsEqual(c.Gr.Y, grComputed.Y)
	encKeyComputed := new(sw_bls12377.G1Affine)
	encKeyComputed.ScalarMul(api, c.EnginePk, c.R)
	api.AssertIsEqual(c.EncKey.X, encKeyComputed.X)
	api.AssertIsEqual(c.EncKey.Y, encKeyComputed.Y)

	return nil
}

// encZK derives the encryption masks in-circuit with the same MiMC chain the
// engine uses natively.
func encZK(api frontend.API, amount, rnd frontend.Variable, encKey sw_bls12377.G1Affine) [2]frontend.Variable {
	h, _ := mimc.NewMiMC(api)

	h.Write(encKey.X)
	h.Write(encKey.Y)
	mask1 := h.Sum()

	h.Write(mask1)
	mask2 := h.Sum()

	amountEnc := api.Add(amount, mask1)
	rndEnc := api.Add(rnd, mask2)
	return [2]frontend.Variable{amountEnc, rndEnc}
}
