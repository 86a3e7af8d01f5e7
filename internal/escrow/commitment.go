package escrow

import (
	"crypto/rand"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// saltSize matches the 32 random bytes the browser client used.
const saltSize = 32

var commitmentArgs = abi.Arguments{
	{Type: mustType("uint8")},
	{Type: mustType("string")},
}

func mustType(name string) abi.Type {
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(err)
	}
	return t
}

// EncodeCommitment returns the ABI encoding of (uint8 move, string salt).
// This is the only encoding used for building and for verifying
// commitments. The packed encoding is not supported.
func EncodeCommitment(move Move, salt string) []byte {
	b, err := commitmentArgs.Pack(uint8(move), salt)
	if err != nil {
		// both argument types are fixed above
		panic(err)
	}
	return b
}

// Commit returns keccak256(abi.encode(move, salt)).
func Commit(move Move, salt string) common.Hash {
	return crypto.Keccak256Hash(EncodeCommitment(move, salt))
}

// Verify reports whether commitment binds exactly this move and salt.
func Verify(commitment common.Hash, move Move, salt string) bool {
	return Commit(move, salt) == commitment
}

// NewSalt returns 32 random bytes, 0x-prefixed hex.
func NewSalt() (string, error) {
	b := make([]byte, saltSize)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hexutil.Encode(b), nil
}
