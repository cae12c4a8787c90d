package cofhe

import "math/big"

// Encrypted uint types as the coprocessor numbers them.
const (
	UtypeUint32  uint8 = 2
	UtypeUint128 uint8 = 6
)

// EncryptedInput is a sealed ciphertext handle as the ledger expects it. The
// plaintext never appears here; CtHash references the value held by the
// coprocessor and Signature proves the sealing.
type EncryptedInput struct {
	CtHash       *big.Int `json:"ctHash"`
	SecurityZone uint8    `json:"securityZone"`
	Utype        uint8    `json:"utype"`
	Signature    []byte   `json:"signature"`
}
