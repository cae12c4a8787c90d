// Package ledger is the single place the daemon talks to the chain. Reads go
// through a failover pool of RPC endpoints; writes go through the daemon's
// wallet and wait for inclusion.
package ledger

import (
	"context"
	"fmt"
	"math/big"
	"math/rand"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/private-escrow/escrowd/internal/errutil"
	"github.com/private-escrow/escrowd/internal/wallet"
)

type Network struct {
	ChainID   int64
	ChainName string
	RPCURLs   []string
}

type Gateway struct {
	mu sync.Mutex

	net          Network
	escrowAddr   common.Address
	resolverAddr common.Address

	client   *ethclient.Client
	escrow   abi.ABI
	resolver abi.ABI

	wallet   *wallet.Wallet
	approver wallet.Approver
	log      *zap.Logger

	onNetworkChange []func(chainID int64)
}

// New parses the ABIs and dials the first reachable endpoint of net. A nil
// wallet makes the gateway read-only.
func New(net Network, escrowAddr, resolverAddr common.Address, w *wallet.Wallet, approver wallet.Approver, log *zap.Logger) (*Gateway, error) {
	escrowParsed, err := abi.JSON(strings.NewReader(escrowABI))
	if err != nil {
		return nil, fmt.Errorf("parse escrow abi: %w", err)
	}
	resolverParsed, err := abi.JSON(strings.NewReader(resolverABI))
	if err != nil {
		return nil, fmt.Errorf("parse resolver abi: %w", err)
	}
	if approver == nil {
		approver = wallet.AutoApprover{}
	}

	g := &Gateway{
		net:          net,
		escrowAddr:   escrowAddr,
		resolverAddr: resolverAddr,
		escrow:       escrowParsed,
		resolver:     resolverParsed,
		wallet:       w,
		approver:     approver,
		log:          log,
	}
	if err := g.dial(context.Background()); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Gateway) ChainID() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.net.ChainID
}

func (g *Gateway) Account() common.Address {
	if g.wallet == nil {
		return common.Address{}
	}
	return g.wallet.Address()
}

// OnNetworkChange registers a callback fired after every successful network
// switch, outside the gateway lock.
func (g *Gateway) OnNetworkChange(fn func(chainID int64)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onNetworkChange = append(g.onNetworkChange, fn)
}

// SwitchNetwork re-dials against a different chain. All registered
// network-change callbacks fire after the new connection is verified.
func (g *Gateway) SwitchNetwork(ctx context.Context, net Network) error {
	g.mu.Lock()
	old := g.client
	g.net = net
	g.client = nil
	if err := g.dialLocked(ctx); err != nil {
		g.client = old
		g.mu.Unlock()
		return err
	}
	if old != nil {
		old.Close()
	}
	callbacks := append([]func(int64){}, g.onNetworkChange...)
	chainID := g.net.ChainID
	g.mu.Unlock()

	g.log.Info("switched network", zap.Int64("chain_id", chainID), zap.String("chain", net.ChainName))
	for _, fn := range callbacks {
		fn(chainID)
	}
	return nil
}

func (g *Gateway) dial(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dialLocked(ctx)
}

// dialLocked tries every configured endpoint and keeps the first one whose
// reported chain id matches the expected one.
func (g *Gateway) dialLocked(ctx context.Context) error {
	var lastErr error
	for _, url := range g.net.RPCURLs {
		client, err := ethclient.DialContext(ctx, url)
		if err != nil {
			lastErr = err
			continue
		}
		chainID, err := client.ChainID(ctx)
		if err != nil {
			client.Close()
			lastErr = err
			continue
		}
		if chainID.Int64() != g.net.ChainID {
			client.Close()
			lastErr = fmt.Errorf("chain id mismatch: have %d, want %d at %s", chainID.Int64(), g.net.ChainID, url)
			continue
		}
		g.client = client
		g.log.Info("rpc endpoint connected", zap.String("url", url), zap.Int64("chain_id", g.net.ChainID))
		return nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no rpc endpoints configured")
	}
	return errutil.Wrap(errutil.NetworkFailure, lastErr)
}

// callOrder returns endpoints for a read attempt: the primary first, the rest
// shuffled so retries spread load, the primary repeated last as a rescue.
func (g *Gateway) callOrder() []string {
	urls := g.net.RPCURLs
	if len(urls) <= 1 {
		return urls
	}
	rest := append([]string{}, urls[1:]...)
	rand.Shuffle(len(rest), func(i, j int) { rest[i], rest[j] = rest[j], rest[i] })
	order := append([]string{urls[0]}, rest...)
	return append(order, urls[0])
}

// callEscrow packs an escrow view call, executes it with endpoint failover
// and unpacks the result. Revert errors are returned as is so callers can
// classify them.
func (g *Gateway) callEscrow(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	return g.callAt(ctx, g.escrow, g.escrowAddr, method, args...)
}

func (g *Gateway) callResolver(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	if g.resolverAddr == (common.Address{}) {
		return nil, errutil.New(errutil.ConfigurationMissing, "dispute resolver address is not configured")
	}
	return g.callAt(ctx, g.resolver, g.resolverAddr, method, args...)
}

func (g *Gateway) callAt(ctx context.Context, contractABI abi.ABI, addr common.Address, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &addr, Data: data}

	g.mu.Lock()
	client := g.client
	order := g.callOrder()
	g.mu.Unlock()

	if client != nil {
		if out, err := client.CallContract(ctx, msg, nil); err == nil {
			return contractABI.Unpack(method, out)
		} else if isRevert(err) {
			return nil, err
		}
	}

	var lastErr error
	for _, url := range order {
		alt, err := ethclient.DialContext(ctx, url)
		if err != nil {
			lastErr = err
			continue
		}
		out, err := alt.CallContract(ctx, msg, nil)
		if err != nil {
			alt.Close()
			if isRevert(err) {
				return nil, err
			}
			lastErr = err
			continue
		}
		g.mu.Lock()
		if g.client != nil {
			g.client.Close()
		}
		g.client = alt
		g.mu.Unlock()
		return contractABI.Unpack(method, out)
	}
	return nil, errutil.Wrap(errutil.NetworkFailure, fmt.Errorf("%s: all rpc endpoints failed: %w", method, lastErr))
}

func isRevert(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "revert")
}

// transact asks the approver, submits the transaction and waits for
// inclusion. A mined-but-reverted receipt is an error.
func (g *Gateway) transact(ctx context.Context, action, agreementID string, value *big.Int, method string, args ...interface{}) (*types.Receipt, error) {
	return g.transactAt(ctx, g.escrow, g.escrowAddr, action, agreementID, value, method, args...)
}

func (g *Gateway) transactAt(ctx context.Context, contractABI abi.ABI, addr common.Address, action, agreementID string, value *big.Int, method string, args ...interface{}) (*types.Receipt, error) {
	if g.wallet == nil {
		return nil, errutil.New(errutil.ConfigurationMissing, "no signer configured, gateway is read-only")
	}
	if err := g.approver.Approve(ctx, action, agreementID); err != nil {
		return nil, err
	}

	g.mu.Lock()
	client := g.client
	chainID := big.NewInt(g.net.ChainID)
	g.mu.Unlock()
	if client == nil {
		return nil, errutil.New(errutil.NetworkFailure, "no rpc connection")
	}

	opts, err := g.wallet.TransactOpts(chainID)
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	if value != nil {
		opts.Value = value
	}

	bound := bind.NewBoundContract(addr, contractABI, client, client, client)
	tx, err := bound.Transact(opts, method, args...)
	if err != nil {
		return nil, err
	}

	g.log.Info("transaction submitted",
		zap.String("action", action),
		zap.String("method", method),
		zap.String("tx", tx.Hash().Hex()))

	receipt, err := bind.WaitMined(ctx, client, tx)
	if err != nil {
		return nil, errutil.Wrap(errutil.NetworkFailure, fmt.Errorf("wait mined %s: %w", tx.Hash().Hex(), err))
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, errutil.New(errutil.LedgerRejected, fmt.Sprintf("transaction %s reverted", tx.Hash().Hex()))
	}
	return receipt, nil
}

// eventTopic extracts the first indexed bytes32 of the named event from a
// receipt. Returns the zero hash when the event is absent.
func (g *Gateway) eventTopic(receipt *types.Receipt, eventName string) common.Hash {
	ev, ok := g.escrow.Events[eventName]
	if !ok {
		return common.Hash{}
	}
	for _, lg := range receipt.Logs {
		if lg.Address == g.escrowAddr && len(lg.Topics) >= 2 && lg.Topics[0] == ev.ID {
			return lg.Topics[1]
		}
	}
	return common.Hash{}
}
