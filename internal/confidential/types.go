// types.go - Handle types for confidential values.
//
// A Handle names a ciphertext held by the arithmetic engine. Handles are
// public: anyone may fetch and pass them around, but decryption requires an
// access grant recorded by the engine.

package confidential

import (
	"encoding/hex"
	"fmt"
)

// HandleSize is the byte length of a ciphertext handle.
const HandleSize = 32

// Handle is an opaque reference to a confidential value. The zero Handle is
// the "absent" sentinel: it is never minted for a real ciphertext.
type Handle [HandleSize]byte

// Ciphertext is a handle to a confidential unsigned 32-bit integer.
type Ciphertext Handle

// Bool is a handle to a confidential boolean, produced by comparisons and
// consumed by Select.
type Bool Handle

// IsZero reports whether the handle is the absent sentinel.
func (h Handle) IsZero() bool {
	return h == Handle{}
}

// Hex returns the 0x-prefixed hex encoding of the handle.
func (h Handle) Hex() string {
	return "0x" + hex.EncodeToString(h[:])
}

// MarshalText implements encoding.TextMarshaler so handles round-trip
// through JSON as hex strings.
func (h Handle) MarshalText() ([]byte, error) {
	return []byte(h.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Handle) UnmarshalText(text []byte) error {
	s := string(text)
	if len(s) >= 2 && s[:2] == "0x" {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(b) != HandleSize {
		return fmt.Errorf("invalid handle length: %d", len(b))
	}
	copy(h[:], b)
	return nil
}

// Handle returns the ciphertext's underlying handle.
func (c Ciphertext) Handle() Handle {
	return Handle(c)
}

// Hex returns the 0x-prefixed hex encoding of the ciphertext handle.
func (c Ciphertext) Hex() string {
	return Handle(c).Hex()
}

func (c Ciphertext) MarshalText() ([]byte, error) {
	return Handle(c).MarshalText()
}

func (c *Ciphertext) UnmarshalText(text []byte) error {
	return (*Handle)(c).UnmarshalText(text)
}
