package crypto

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// AddressLength is the width of every simulated actor address.
const AddressLength = 32

// DefaultPrefix is the human-readable part used when rendering addresses.
const DefaultPrefix = "sim"

// Address identifies a bank account, a validator or a contract instance.
type Address [AddressLength]byte

// Domain separators keep the derivation families disjoint.
var (
	sequenceDomain = []byte("chainsim/sequence")
	saltedDomain   = []byte("chainsim/salted")
	accountDomain  = []byte("chainsim/account")
	moduleDomain   = []byte("chainsim/module")
)

// Derive returns the address for the sequence-th instance created by
// creator. Equal inputs always yield the same address; the keccak256 digest
// over the concatenated inputs makes distinct pairs collide with negligible
// probability.
func Derive(creator Address, sequence uint64) Address {
	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], sequence)
	return hashAddress(sequenceDomain, creator[:], seq[:])
}

// DeriveSalted returns a predictable address that depends only on the
// creator, the code checksum and a caller supplied salt.
func DeriveSalted(creator Address, checksum, salt []byte) Address {
	return hashAddress(saltedDomain, creator[:], lengthPrefixed(checksum), lengthPrefixed(salt))
}

// AddressFromLabel turns a human label ("alice", "validator-1") into a
// stable test account address.
func AddressFromLabel(label string) Address {
	return hashAddress(accountDomain, []byte(label))
}

// ModuleAddress returns the account owned by a native module.
func ModuleAddress(module string) Address {
	return hashAddress(moduleDomain, []byte(module))
}

func lengthPrefixed(b []byte) []byte {
	out := make([]byte, 8+len(b))
	binary.BigEndian.PutUint64(out, uint64(len(b)))
	copy(out[8:], b)
	return out
}

func hashAddress(parts ...[]byte) Address {
	var addr Address
	copy(addr[:], ethcrypto.Keccak256(parts...))
	return addr
}

// BytesToAddress copies b into an Address. It fails unless b is exactly
// AddressLength bytes.
func BytesToAddress(b []byte) (Address, error) {
	var addr Address
	if len(b) != AddressLength {
		return addr, fmt.Errorf("address must be %d bytes long, got %d", AddressLength, len(b))
	}
	copy(addr[:], b)
	return addr, nil
}

func (a Address) Bytes() []byte {
	return append([]byte(nil), a[:]...)
}

func (a Address) IsZero() bool {
	return a == Address{}
}

func (a Address) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a Address) String() string {
	return a.Format(DefaultPrefix)
}

// Format renders the address in bech32 with the supplied human-readable part.
func (a Address) Format(hrp string) string {
	conv, err := bech32.ConvertBits(a[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(hrp, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// MarshalText renders the bech32 form so addresses read naturally in JSON
// query payloads and genesis files.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	decoded, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = decoded
	return nil
}

// DecodeAddress parses a bech32 address carrying any prefix.
func DecodeAddress(addrStr string) (Address, error) {
	_, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("error converting bits: %w", err)
	}
	return BytesToAddress(conv)
}

// ParseAddress accepts either the bech32 or the 0x-prefixed hex form.
func ParseAddress(value string) (Address, error) {
	if value == "" {
		return Address{}, errors.New("address must not be empty")
	}
	if len(value) > 2 && (value[:2] == "0x" || value[:2] == "0X") {
		raw, err := hex.DecodeString(value[2:])
		if err != nil {
			return Address{}, fmt.Errorf("invalid hex address: %w", err)
		}
		return BytesToAddress(raw)
	}
	return DecodeAddress(value)
}

// MustParseAddress is ParseAddress for fixtures; it panics on error.
func MustParseAddress(value string) Address {
	addr, err := ParseAddress(value)
	if err != nil {
		panic(err)
	}
	return addr
}
