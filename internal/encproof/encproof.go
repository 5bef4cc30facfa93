// encproof.go - Proof-of-encryption generation and verification.
//
// Clients call Encrypt to seal an amount for the engine and attach a Groth16
// proof; the engine verifies through Verifier before importing the value.

package encproof

import (
	"bytes"
	"fmt"
	"os"

	"github.com/consensys/gnark-crypto/ecc"
	bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/ethereum/go-ethereum/common"

	"confledger/internal/confidential"
)

// Compile compiles the encryption circuit over BW6-761.
func Compile() (constraint.ConstraintSystem, error) {
	var circuit CircuitEncrypt
	return frontend.Compile(ecc.BW6_761.ScalarField(), r1cs.NewBuilder, &circuit)
}

// Encrypt seals amount for the engine identified by enginePk, bound to the
// (caller, ledger) pair, and attaches a Groth16 proof of encryption. The
// returned input is ready to submit.
func Encrypt(
	amount uint32, caller, ledger common.Address, enginePk *bls12377.G1Affine,
	pk groth16.ProvingKey, ccs constraint.ConstraintSystem,
) (*confidential.ExternalInput, error) {
	sealed, err := confidential.Seal(amount, caller, ledger, enginePk)
	if err != nil {
		return nil, fmt.Errorf("sealing failed: %w", err)
	}

	witness := &CircuitEncrypt{
		Commitment: sealed.Input.Commitment,
		Binding:    sealed.Input.Binding,
		Cipher: [2]frontend.Variable{
			sealed.Input.Cipher[0], sealed.Input.Cipher[1],
		},
		G:        sealed.Input.G,
		Gr:       sealed.Input.Gr,
		EnginePk: confidential.ToGnarkPoint(enginePk),
		Amount:   sealed.Amount.String(),
		Rand:     sealed.Rand.String(),
		R:        sealed.R.String(),
		EncKey:   confidential.ToGnarkPoint(&sealed.EncKey),
	}
	w, err := frontend.NewWitness(witness, ecc.BW6_761.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("witness creation failed: %w", err)
	}
	proof, err := groth16.Prove(ccs, pk, w)
	if err != nil {
		return nil, fmt.Errorf("proof generation failed: %w", err)
	}
	var proofBuf bytes.Buffer
	if _, err := proof.WriteTo(&proofBuf); err != nil {
		return nil, fmt.Errorf("proof marshaling failed: %w", err)
	}

	in := sealed.Input
	in.Proof = proofBuf.Bytes()
	return &in, nil
}

// Verifier checks proofs of encryption against a fixed verifying key and
// engine public key. It satisfies confidential.ProofVerifier.
type Verifier struct {
	vk       groth16.VerifyingKey
	enginePk *bls12377.G1Affine
}

// NewVerifier creates a verifier for proofs sealed against enginePk.
func NewVerifier(vk groth16.VerifyingKey, enginePk *bls12377.G1Affine) *Verifier {
	return &Verifier{vk: vk, enginePk: enginePk}
}

// VerifyEncryption rebuilds the public witness from the input and verifies
// the attached Groth16 proof.
func (v *Verifier) VerifyEncryption(in *confidential.ExternalInput) error {
	publicWitness := &CircuitEncrypt{
		Commitment: in.Commitment,
		Binding:    in.Binding,
		Cipher: [2]frontend.Variable{
			in.Cipher[0], in.Cipher[1],
		},
		G:        in.G,
		Gr:       in.Gr,
		EnginePk: confidential.ToGnarkPoint(v.enginePk),
	}
	w, err := frontend.NewWitness(publicWitness, ecc.BW6_761.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return fmt.Errorf("public witness creation failed: %w", err)
	}

	proof := groth16.NewProof(ecc.BW6_761)
	if _, err := proof.ReadFrom(bytes.NewReader(in.Proof)); err != nil {
		return fmt.Errorf("proof unmarshaling failed: %w", err)
	}

	if err := groth16.Verify(proof, v.vk, w); err != nil {
		return fmt.Errorf("proof verification failed: %w", err)
	}
	return nil
}

// SaveProvingKey saves a Groth16 proving key to disk.
func SaveProvingKey(path string, pk groth16.ProvingKey) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = pk.WriteTo(f)
	return err
}

// SaveVerifyingKey saves a Groth16 verifying key to disk.
func SaveVerifyingKey(path string, vk groth16.VerifyingKey) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = vk.WriteTo(f)
	return err
}

// LoadProvingKey loads a Groth16 proving key from disk.
func LoadProvingKey(path string) (groth16.ProvingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	pk := groth16.NewProvingKey(ecc.BW6_761)
	_, err = pk.ReadFrom(f)
	return pk, err
}

// LoadVerifyingKey loads a Groth16 verifying key from disk.
func LoadVerifyingKey(path string) (groth16.VerifyingKey, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	vk := groth16.NewVerifyingKey(ecc.BW6_761)
	_, err = vk.ReadFrom(f)
	return vk, err
}

// SetupOrLoadKeys generates or loads Groth16 keys for the circuit.
// If keys exist on disk, loads them; otherwise, generates and saves new keys.
func SetupOrLoadKeys(ccs constraint.ConstraintSystem, pkPath, vkPath string) (groth16.ProvingKey, groth16.VerifyingKey, error) {
	pk, pkErr := LoadProvingKey(pkPath)
	vk, vkErr := LoadVerifyingKey(vkPath)
	if pkErr == nil && vkErr == nil {
		return pk, vk, nil
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, nil, err
	}
	if err := SaveProvingKey(pkPath, pk); err != nil {
		return nil, nil, err
	}
	if err := SaveVerifyingKey(vkPath, vk); err != nil {
		return nil, nil, err
	}
	return pk, vk, nil
}
