// Package ss58 encodes and decodes Substrate SS58 addresses.
//
// An address is base58(prefix || payload || checksum), where checksum is the
// head of blake2b-512("SS58PRE" || prefix || payload).
package ss58

import (
	"bytes"

	"github.com/btcsuite/btcutil/base58"
	"golang.org/x/crypto/blake2b"
)

// DefaultPrefix is the generic Substrate network identifier.
const DefaultPrefix uint16 = 42

const maxPrefix = 16383

var checksumPreimage = []byte("SS58PRE")

// checksumLen returns the checksum length for a payload length, or 0 if the
// length is not a valid SS58 payload.
func checksumLen(n int) int {
	switch n {
	case 1, 2, 4, 8:
		return 1
	case 32, 33:
		return 2
	}
	return 0
}

func checksum(data []byte) []byte {
	h, _ := blake2b.New512(nil)
	h.Write(checksumPreimage)
	h.Write(data)
	return h.Sum(nil)
}

func encodePrefix(prefix uint16) []byte {
	if prefix < 64 {
		return []byte{byte(prefix)}
	}
	return []byte{
		byte((prefix&0b0000_0000_1111_1100)>>2) | 0b0100_0000,
		byte(prefix>>8) | byte(prefix&0b0000_0000_0000_0011)<<6,
	}
}

// Encode returns the address of pub on network prefix, or "" if pub has an
// invalid length or prefix is out of range.
func Encode(pub []byte, prefix uint16) string {
	n := checksumLen(len(pub))
	if n == 0 || prefix > maxPrefix {
		return ""
	}
	data := append(encodePrefix(prefix), pub...)
	return base58.Encode(append(data, checksum(data)[:n]...))
}

// DecodeWithPrefix returns the payload and network prefix of addr. It
// returns nil and false for anything that is not a well-formed address.
func DecodeWithPrefix(addr string) ([]byte, uint16, bool) {
	raw := base58.Decode(addr)
	if len(raw) < 2 {
		return nil, 0, false
	}

	var prefix uint16
	prefixLen := 1
	switch {
	case raw[0] < 64:
		prefix = uint16(raw[0])
	case raw[0] < 128:
		prefixLen = 2
		lower := (raw[0] << 2) | (raw[1] >> 6)
		upper := raw[1] & 0b0011_1111
		prefix = uint16(lower) | uint16(upper)<<8
	default:
		return nil, 0, false
	}

	rest := len(raw) - prefixLen
	for _, payloadLen := range []int{33, 32, 8, 4, 2, 1} {
		n := checksumLen(payloadLen)
		if rest != payloadLen+n {
			continue
		}
		body := raw[:prefixLen+payloadLen]
		if !bytes.Equal(checksum(body)[:n], raw[prefixLen+payloadLen:]) {
			return nil, 0, false
		}
		return append([]byte(nil), body[prefixLen:]...), prefix, true
	}
	return nil, 0, false
}

// Decode returns the payload (public key) of addr, or nil if addr is invalid.
func Decode(addr string) []byte {
	pub, _, ok := DecodeWithPrefix(addr)
	if !ok {
		return nil
	}
	return pub
}

// Valid reports whether addr is a well-formed address.
func Valid(addr string) bool {
	_, _, ok := DecodeWithPrefix(addr)
	return ok
}

// AddressToStr encodes a public key with DefaultPrefix. Nil or malformed
// input yields "".
func AddressToStr(pub []byte) string {
	if len(pub) == 0 {
		return ""
	}
	return Encode(pub, DefaultPrefix)
}
