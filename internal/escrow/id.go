package escrow

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Agreement and invite ids are bytes32 hashes on the ledger. Every id entering
// the system is normalized to 0x + 64 lower-case hex digits before it is used
// as a map key or compared.

const idHexLen = 64

var ErrInvalidID = errors.New("invalid id (expected 64 hex chars)")

// CanonicalizeStrict normalizes a user-typed id. Anything that is not exactly
// 64 hex digits after an optional 0x prefix is a user error.
func CanonicalizeStrict(id string) (string, error) {
	h := strings.TrimPrefix(strings.TrimSpace(id), "0x")
	if len(h) != idHexLen || !isHex(h) {
		return "", ErrInvalidID
	}
	return "0x" + strings.ToLower(h), nil
}

// CanonicalizeLenient normalizes an id obtained from the ledger itself, which
// may come back as a numeric, short-hex, or over-length-hex form depending on
// the read path. Short values are zero-padded on the left (stripping leading
// zeros would change the value); over-length values keep the last 64 digits.
// Non-hex input is passed through with only the prefix fixed up, since
// ledger-sourced ids are assumed well formed.
func CanonicalizeLenient(id string) string {
	h := strings.TrimSpace(id)
	h = strings.TrimPrefix(h, "0x")
	if !isHex(h) {
		if strings.HasPrefix(strings.TrimSpace(id), "0x") {
			return strings.TrimSpace(id)
		}
		return "0x" + h
	}
	if len(h) < idHexLen {
		h = strings.Repeat("0", idHexLen-len(h)) + h
	} else if len(h) > idHexLen {
		h = h[len(h)-idHexLen:]
	}
	return "0x" + strings.ToLower(h)
}

// IDToHash converts a canonical id to the bytes32 form ledger calls expect.
func IDToHash(id string) common.Hash {
	return common.HexToHash(id)
}

// ShortID is the display/log form: the first 8 hex digits.
func ShortID(id string) string {
	h := strings.TrimPrefix(id, "0x")
	if len(h) > 8 {
		h = h[:8]
	}
	return h
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
