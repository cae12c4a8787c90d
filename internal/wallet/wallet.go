// Package wallet holds the daemon's signing key and the approval hook that
// stands between a prepared transaction and its signature.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrRejected means the approver declined to sign. It is never a failure of
// the transaction itself.
var ErrRejected = errors.New("user rejected the request")

// Approver decides whether a prepared action may be signed. The default
// approver accepts everything; interactive front ends plug in their own.
type Approver interface {
	Approve(ctx context.Context, action string, agreementID string) error
}

// AutoApprover signs everything without asking.
type AutoApprover struct{}

func (AutoApprover) Approve(ctx context.Context, action, agreementID string) error { return nil }

// Wallet wraps a single ECDSA key.
type Wallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// FromKeystore unlocks the first key of a geth keystore JSON file.
func FromKeystore(path, passphrase string) (*Wallet, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keystore: %w", err)
	}
	key, err := keystore.DecryptKey(blob, passphrase)
	if err != nil {
		return nil, fmt.Errorf("decrypt keystore: %w", err)
	}
	return &Wallet{key: key.PrivateKey, address: crypto.PubkeyToAddress(key.PrivateKey.PublicKey)}, nil
}

// FromHex loads a raw hex private key. Intended for development setups only.
func FromHex(hexKey string) (*Wallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &Wallet{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

func (w *Wallet) Address() common.Address {
	return w.address
}

// TransactOpts builds signing opts bound to the given chain.
func (w *Wallet) TransactOpts(chainID *big.Int) (*bind.TransactOpts, error) {
	return bind.NewKeyedTransactorWithChainID(w.key, chainID)
}
