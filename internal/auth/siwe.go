package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/redis/go-redis/v9"
)

// nonceTTL bounds how long a challenge stays valid.
const nonceTTL = 5 * time.Minute

// Challenger hands out one-time nonces and verifies personal-sign responses,
// proving the caller controls an address before a session token is issued.
type Challenger struct {
	redis *redis.Client
}

func NewChallenger(client *redis.Client) *Challenger {
	return &Challenger{redis: client}
}

func nonceKey(addr common.Address) string {
	return "auth:nonce:" + strings.ToLower(addr.Hex())
}

// Challenge issues a fresh nonce for the address and returns the exact
// message the wallet must sign.
func (c *Challenger) Challenge(ctx context.Context, addr common.Address) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	nonce := hex.EncodeToString(buf)

	if err := c.redis.Set(ctx, nonceKey(addr), nonce, nonceTTL).Err(); err != nil {
		return "", err
	}
	return loginMessage(addr, nonce), nil
}

// Verify checks a personal-sign signature against the stored nonce. The
// nonce burns on first use, success or not.
func (c *Challenger) Verify(ctx context.Context, addr common.Address, signature []byte) error {
	nonce, err := c.redis.GetDel(ctx, nonceKey(addr)).Result()
	if err != nil {
		return fmt.Errorf("no pending challenge for this address")
	}

	if len(signature) != 65 {
		return fmt.Errorf("invalid signature length %d", len(signature))
	}
	// normalize v from 27/28 to 0/1
	sig := make([]byte, 65)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	msgHash := accounts.TextHash([]byte(loginMessage(addr, nonce)))
	pub, err := crypto.SigToPub(msgHash, sig)
	if err != nil {
		return fmt.Errorf("recover signer: %w", err)
	}
	if crypto.PubkeyToAddress(*pub) != addr {
		return fmt.Errorf("signature does not match address")
	}
	return nil
}

func loginMessage(addr common.Address, nonce string) string {
	return fmt.Sprintf("escrowd login\naddress: %s\nnonce: %s", strings.ToLower(addr.Hex()), nonce)
}
