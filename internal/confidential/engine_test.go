package confidential

import (
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

type acceptAll struct{}

func (acceptAll) VerifyEncryption(*ExternalInput) error { return nil }

type rejectAll struct{}

func (rejectAll) VerifyEncryption(*ExternalInput) error {
	return ErrInvalidProof
}

func newEngine(t *testing.T, v ProofVerifier) *Engine {
	t.Helper()
	key, err := GenerateEngineKey()
	require.NoError(t, err)
	return NewEngine(key, v)
}

func TestFromPlainMintsFreshHandles(t *testing.T) {
	e := newEngine(t, acceptAll{})
	a := e.FromPlain(7)
	b := e.FromPlain(7)
	require.NotEqual(t, a, b)
	require.False(t, a.Handle().IsZero())
}

func TestArithmetic(t *testing.T) {
	e := newEngine(t, acceptAll{})
	owner := common.HexToAddress("0x01")

	a := e.FromPlain(60)
	b := e.FromPlain(25)

	sum, err := e.Add(a, b)
	require.NoError(t, err)
	diff, err := e.Sub(a, b)
	require.NoError(t, err)

	e.GrantAccess(sum, owner)
	e.GrantAccess(diff, owner)
	v, err := e.Decrypt(sum.Handle(), owner)
	require.NoError(t, err)
	require.Equal(t, uint32(85), v)
	v, err = e.Decrypt(diff.Handle(), owner)
	require.NoError(t, err)
	require.Equal(t, uint32(35), v)
}

func TestSubWraps(t *testing.T) {
	e := newEngine(t, acceptAll{})
	owner := common.HexToAddress("0x01")

	diff, err := e.Sub(e.FromPlain(10), e.FromPlain(11))
	require.NoError(t, err)
	e.GrantAccess(diff, owner)
	v, err := e.Decrypt(diff.Handle(), owner)
	require.NoError(t, err)
	require.Equal(t, uint32(0xffffffff), v)
}

func TestSelect(t *testing.T) {
	e := newEngine(t, acceptAll{})
	owner := common.HexToAddress("0x01")

	a := e.FromPlain(60)
	b := e.FromPlain(25)

	ge, err := e.Ge(a, b)
	require.NoError(t, err)
	picked, err := e.Select(ge, a, b)
	require.NoError(t, err)

	// Fresh handle, not an alias of either operand.
	require.NotEqual(t, a, picked)
	require.NotEqual(t, b, picked)

	e.GrantAccess(picked, owner)
	v, err := e.Decrypt(picked.Handle(), owner)
	require.NoError(t, err)
	require.Equal(t, uint32(60), v)

	lt, err := e.Ge(b, a)
	require.NoError(t, err)
	picked, err = e.Select(lt, a, b)
	require.NoError(t, err)
	e.GrantAccess(picked, owner)
	v, err = e.Decrypt(picked.Handle(), owner)
	require.NoError(t, err)
	require.Equal(t, uint32(25), v)
}

func TestUnknownHandle(t *testing.T) {
	e := newEngine(t, acceptAll{})
	a := e.FromPlain(1)
	_, err := e.Add(a, Ciphertext{})
	require.ErrorIs(t, err, ErrUnknownHandle)
	_, err = e.Decrypt(Handle{}, common.Address{})
	require.ErrorIs(t, err, ErrUnknownHandle)
}

func TestImportExternalRoundTrip(t *testing.T) {
	e := newEngine(t, acceptAll{})
	caller := common.HexToAddress("0x0a")

	sealed, err := Seal(1234, caller, e.SelfAddress(), e.PublicKey())
	require.NoError(t, err)

	c, err := e.ImportExternal(&sealed.Input, caller)
	require.NoError(t, err)
	require.False(t, c.Handle().IsZero())

	e.GrantAccess(c, caller)
	v, err := e.Decrypt(c.Handle(), caller)
	require.NoError(t, err)
	require.Equal(t, uint32(1234), v)
}

func TestImportExternalRejectsWrongCaller(t *testing.T) {
	e := newEngine(t, acceptAll{})
	caller := common.HexToAddress("0x0a")
	other := common.HexToAddress("0x0b")

	sealed, err := Seal(1234, caller, e.SelfAddress(), e.PublicKey())
	require.NoError(t, err)

	_, err = e.ImportExternal(&sealed.Input, other)
	require.ErrorIs(t, err, ErrInvalidProof)
}

func TestImportExternalRejectsTamperedCipher(t *testing.T) {
	e := newEngine(t, acceptAll{})
	caller := common.HexToAddress("0x0a")

	sealed, err := Seal(1234, caller, e.SelfAddress(), e.PublicKey())
	require.NoError(t, err)

	// Tampering with the masked amount breaks the commitment check.
	in := sealed.Input
	in.Cipher[0] = "42"
	_, err = e.ImportExternal(&in, caller)
	require.ErrorIs(t, err, ErrInvalidProof)
}

func TestImportExternalRejectsFailingVerifier(t *testing.T) {
	e := newEngine(t, rejectAll{})
	caller := common.HexToAddress("0x0a")

	sealed, err := Seal(1234, caller, e.SelfAddress(), e.PublicKey())
	require.NoError(t, err)

	_, err = e.ImportExternal(&sealed.Input, caller)
	require.ErrorIs(t, err, ErrInvalidProof)
}

func TestDecryptRequiresGrant(t *testing.T) {
	e := newEngine(t, acceptAll{})
	owner := common.HexToAddress("0x01")
	stranger := common.HexToAddress("0x02")

	c := e.FromPlain(9)
	e.GrantAccess(c, owner)
	e.GrantAccessToSelf(c)

	_, err := e.Decrypt(c.Handle(), owner)
	require.NoError(t, err)
	_, err = e.Decrypt(c.Handle(), e.SelfAddress())
	require.NoError(t, err)
	_, err = e.Decrypt(c.Handle(), stranger)
	require.ErrorIs(t, err, ErrAccessDenied)
	require.False(t, e.HasAccess(c.Handle(), stranger))
}

func TestHandleHexRoundTrip(t *testing.T) {
	e := newEngine(t, acceptAll{})
	c := e.FromPlain(5)

	var parsed Ciphertext
	require.NoError(t, parsed.UnmarshalText([]byte(c.Hex())))
	require.Equal(t, c, parsed)
}

func TestEngineSaveLoad(t *testing.T) {
	e := newEngine(t, acceptAll{})
	owner := common.HexToAddress("0x0c")
	c := e.FromPlain(42)
	e.GrantAccess(c, owner)
	e.GrantAccessToSelf(c)

	path := filepath.Join(t.TempDir(), "engine.json")
	require.NoError(t, e.SaveToFile(path))

	restored, err := LoadEngineFromFile(path)
	require.NoError(t, err)
	restored.SetVerifier(acceptAll{})

	// Same keypair, so the same self address and sealing target.
	require.Equal(t, e.SelfAddress(), restored.SelfAddress())
	require.True(t, e.PublicKey().Equal(restored.PublicKey()))

	// Values and grants survive the round trip.
	v, err := restored.Decrypt(c.Handle(), owner)
	require.NoError(t, err)
	require.Equal(t, uint32(42), v)
	require.True(t, restored.HasAccess(c.Handle(), restored.SelfAddress()))

	// Ciphertexts sealed before the restart still import.
	sealed, err := Seal(9, owner, restored.SelfAddress(), e.PublicKey())
	require.NoError(t, err)
	_, err = restored.ImportExternal(&sealed.Input, owner)
	require.NoError(t, err)
}
