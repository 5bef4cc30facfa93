// persist.go - Engine state persistence.
//
// The engine's handle table is the only place ciphertext values live, so a
// daemon restart must restore it alongside the ledger store or every
// persisted handle becomes undecryptable. The snapshot contains the secret
// key and the plaintext table; it is written with owner-only permissions and
// must be protected like the key itself.

package confidential

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	bls12377 "github.com/consensys/gnark-crypto/ecc/bls12-377"
	bls12377_fr "github.com/consensys/gnark-crypto/ecc/bls12-377/fr"
	"github.com/ethereum/go-ethereum/common"
)

// engineSnapshot is the JSON form of the engine's private state. Confidential
// booleans are per-operation scratch and are not persisted.
type engineSnapshot struct {
	Sk     string              `json:"sk"`
	Values map[string]uint32   `json:"values"`
	Access map[string][]string `json:"access"`
}

// SaveToFile writes the engine state to path. The snapshot is written to a
// temporary file and renamed into place so a crash or a concurrent save
// never leaves a torn file behind.
func (e *Engine) SaveToFile(path string) error {
	e.mu.RLock()
	snap := engineSnapshot{
		Sk:     e.key.Sk.String(),
		Values: make(map[string]uint32, len(e.values)),
		Access: make(map[string][]string, len(e.access)),
	}
	for c, v := range e.values {
		snap.Values[c.Hex()] = v
	}
	for h, grants := range e.access {
		for principal := range grants {
			snap.Access[h.Hex()] = append(snap.Access[h.Hex()], principal.Hex())
		}
	}
	e.mu.RUnlock()

	data, err := json.MarshalIndent(&snap, "", "  ")
	if err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp")
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return err
	}
	return os.Rename(f.Name(), path)
}

// LoadEngineFromFile restores an engine from a snapshot written by
// SaveToFile. The public key is recomputed from the secret key, so the
// restored engine keeps its self address and continues to serve handles
// sealed before the restart. The caller installs a verifier with
// SetVerifier before accepting external inputs.
func LoadEngineFromFile(path string) (*Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snap engineSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}

	var sk bls12377_fr.Element
	if _, err := sk.SetString(snap.Sk); err != nil {
		return nil, fmt.Errorf("invalid secret key: %w", err)
	}
	g1Jac, _, _, _ := bls12377.Generators()
	var pk bls12377.G1Affine
	pk.FromJacobian(&g1Jac)
	pk.ScalarMultiplication(&pk, sk.BigInt(new(big.Int)))

	e := NewEngine(&EngineKey{Sk: &sk, Pk: &pk}, nil)
	for cHex, v := range snap.Values {
		var c Ciphertext
		if err := c.UnmarshalText([]byte(cHex)); err != nil {
			return nil, err
		}
		e.values[c] = v
	}
	for hHex, principals := range snap.Access {
		var h Handle
		if err := h.UnmarshalText([]byte(hHex)); err != nil {
			return nil, err
		}
		grants := make(map[common.Address]struct{}, len(principals))
		for _, p := range principals {
			grants[common.HexToAddress(p)] = struct{}{}
		}
		e.access[h] = grants
	}
	return e, nil
}
