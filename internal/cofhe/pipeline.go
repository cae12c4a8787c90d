// Package cofhe produces sealed ciphertext inputs for the escrow ledger via
// the CoFHE coprocessor. Initialization is lazy: nothing talks to the
// coprocessor until the first value needs sealing.
package cofhe

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/private-escrow/escrowd/internal/errutil"
)

// ChainSwitcher is the slice of the gateway the pipeline needs: the current
// chain and the ability to move to the expected one before sealing.
type ChainSwitcher interface {
	ChainID() int64
	SwitchNetwork(ctx context.Context, net Network) error
}

// Network mirrors the gateway's network descriptor so the pipeline does not
// import it.
type Network struct {
	ChainID   int64
	ChainName string
	RPCURLs   []string
}

type Pipeline struct {
	mu sync.Mutex

	env          string
	coprocessor  string
	securityZone uint8
	expected     Network

	chain ChainSwitcher
	http  *http.Client
	log   *zap.Logger

	// chain id the coprocessor session was initialized for, 0 = none
	initializedFor int64
}

func NewPipeline(env, coprocessorURL string, securityZone uint8, expected Network, chain ChainSwitcher, log *zap.Logger) *Pipeline {
	return &Pipeline{
		env:          env,
		coprocessor:  strings.TrimRight(coprocessorURL, "/"),
		securityZone: securityZone,
		expected:     expected,
		chain:        chain,
		http:         &http.Client{Timeout: 30 * time.Second},
		log:          log,
	}
}

// Invalidate drops the memoized session. The next sealing re-initializes
// from scratch. Called on every network change.
func (p *Pipeline) Invalidate() {
	p.mu.Lock()
	p.initializedFor = 0
	p.mu.Unlock()
	p.log.Debug("cofhe session invalidated")
}

// EncryptUint128 seals a 128-bit amount. The amount itself is never logged.
func (p *Pipeline) EncryptUint128(ctx context.Context, value *big.Int) (EncryptedInput, error) {
	return p.encrypt(ctx, value, UtypeUint128)
}

// EncryptUint32 seals a 32-bit value.
func (p *Pipeline) EncryptUint32(ctx context.Context, value uint32) (EncryptedInput, error) {
	return p.encrypt(ctx, new(big.Int).SetUint64(uint64(value)), UtypeUint32)
}

func (p *Pipeline) encrypt(ctx context.Context, value *big.Int, utype uint8) (EncryptedInput, error) {
	if err := p.ensureInitialized(ctx); err != nil {
		return EncryptedInput{}, err
	}

	reqBody, err := json.Marshal(map[string]any{
		"value":         value.String(),
		"utype":         utype,
		"security_zone": p.securityZone,
	})
	if err != nil {
		return EncryptedInput{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.coprocessor+"/encrypt", bytes.NewReader(reqBody))
	if err != nil {
		return EncryptedInput{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return EncryptedInput{}, errutil.Wrap(errutil.EncryptionUnavailable, fmt.Errorf("coprocessor unavailable: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return EncryptedInput{}, errutil.Wrap(errutil.EncryptionUnavailable,
			fmt.Errorf("coprocessor returned %d: %s", resp.StatusCode, string(body)))
	}

	var out struct {
		CtHash       string `json:"ct_hash"`
		SecurityZone uint8  `json:"security_zone"`
		Utype        uint8  `json:"utype"`
		Signature    string `json:"signature"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return EncryptedInput{}, errutil.Wrap(errutil.EncryptionUnavailable, fmt.Errorf("decode coprocessor response: %w", err))
	}

	ctHash, ok := new(big.Int).SetString(strings.TrimPrefix(out.CtHash, "0x"), 16)
	if !ok {
		return EncryptedInput{}, errutil.New(errutil.EncryptionUnavailable, "coprocessor returned malformed ct hash")
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(out.Signature, "0x"))
	if err != nil {
		return EncryptedInput{}, errutil.Wrap(errutil.EncryptionUnavailable, fmt.Errorf("decode coprocessor signature: %w", err))
	}

	return EncryptedInput{
		CtHash:       ctHash,
		SecurityZone: out.SecurityZone,
		Utype:        out.Utype,
		Signature:    sig,
	}, nil
}

// ensureInitialized brings the gateway to the expected chain and opens a
// coprocessor session for it. The session is memoized per chain id, so
// repeated sealing pays no extra round trips.
func (p *Pipeline) ensureInitialized(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.coprocessor == "" {
		return errutil.New(errutil.ConfigurationMissing, "cofhe coprocessor url is not configured")
	}

	current := p.chain.ChainID()
	if current != p.expected.ChainID {
		if err := p.chain.SwitchNetwork(ctx, p.expected); err != nil {
			return errutil.Wrap(errutil.WrongNetwork, err)
		}
		current = p.expected.ChainID
		p.initializedFor = 0
	}

	if p.initializedFor == current {
		return nil
	}

	reqBody, err := json.Marshal(map[string]any{
		"environment": p.env,
		"chain_id":    current,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.coprocessor+"/init", bytes.NewReader(reqBody))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return errutil.Wrap(errutil.EncryptionUnavailable, fmt.Errorf("coprocessor init failed: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return errutil.Wrap(errutil.EncryptionUnavailable,
			fmt.Errorf("coprocessor init returned %d: %s", resp.StatusCode, string(body)))
	}

	p.initializedFor = current
	p.log.Info("cofhe session initialized", zap.Int64("chain_id", current), zap.String("env", p.env))
	return nil
}
