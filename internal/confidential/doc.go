// Package confidential implements the confidential arithmetic capability
// backing the encrypted ledger.
//
// Overview:
//   - Confidential integers and booleans are referenced by opaque 32-byte
//     handles; arithmetic, comparison, and selection never reveal the
//     underlying values to callers
//   - Externally supplied ciphertexts are MiMC-masked ElGamal encryptions
//     over BLS12-377, bound to a (caller, ledger) pair and attested by a
//     Groth16 proof of encryption before import
//   - Decryption is gated by per-handle access grants; only principals
//     granted access to a handle can recover its value
//
// Security Model:
//   - Uses MiMC hash for handle derivation, commitments, and encryption masks
//   - Uses BLS12-377 for the engine key exchange
//   - All randomness is generated using crypto/rand
//
// The Engine in this package executes the arithmetic symbolically over a
// value table it exclusively owns. It stands in for an external confidential
// coprocessor: ledger code only ever sees handles, and the access-control
// rules it enforces are the same ones a real coprocessor would.
package confidential
