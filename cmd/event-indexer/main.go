package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/private-escrow/escrowd/internal/config"
	"github.com/private-escrow/escrowd/internal/db"
	"github.com/private-escrow/escrowd/internal/events"
	"github.com/private-escrow/escrowd/internal/ledger"
)

const (
	redisCursorKey = "event-indexer:cursor:block"
	pollInterval   = 5 * time.Second
	maxBlockSpan   = 2000
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.ApplyRemote(log)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.EscrowContractAddress == "" {
		log.Fatal("ESCROW_CONTRACT_ADDRESS is required")
	}
	escrowAddr := common.HexToAddress(cfg.EscrowContractAddress)

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	client, err := dialAny(ctx, cfg.RPCURLs)
	if err != nil {
		log.Fatal("failed to reach an rpc endpoint", zap.Error(err))
	}
	defer client.Close()

	escrowABI, err := ledger.EscrowABI()
	if err != nil {
		log.Fatal("failed to parse contract abi", zap.Error(err))
	}

	publisher := events.NewRedisPublisher(rdb, log)

	log.Info("event indexer started",
		zap.String("contract", escrowAddr.Hex()),
		zap.Int64("chain", cfg.ChainID),
	)

	if err := initCursor(ctx, client, rdb, log); err != nil {
		log.Fatal("failed to initialize block cursor", zap.Error(err))
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			if err := pollAndPublish(ctx, client, escrowAddr, escrowABI, publisher, rdb, log); err != nil {
				log.Error("poll cycle failed", zap.Error(err))
			}
		case <-sigCh:
			log.Info("shutting down event indexer")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

// dialAny tries the configured endpoints in order and keeps the first one
// that answers a chain id request.
func dialAny(ctx context.Context, urls []string) (*ethclient.Client, error) {
	var lastErr error
	for _, url := range urls {
		client, err := ethclient.DialContext(ctx, url)
		if err != nil {
			lastErr = err
			continue
		}
		if _, err := client.ChainID(ctx); err != nil {
			client.Close()
			lastErr = err
			continue
		}
		return client, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no rpc endpoints configured")
	}
	return nil, lastErr
}

// initCursor seeds the cursor with the current head so a fresh indexer does
// not replay the whole chain.
func initCursor(ctx context.Context, client *ethclient.Client, rdb *redis.Client, log *zap.Logger) error {
	if _, err := rdb.Get(ctx, redisCursorKey).Result(); err == nil {
		return nil
	}
	head, err := client.BlockNumber(ctx)
	if err != nil {
		return err
	}
	log.Info("cursor initialized at head", zap.Uint64("block", head))
	return rdb.Set(ctx, redisCursorKey, strconv.FormatUint(head, 10), 0).Err()
}

func pollAndPublish(ctx context.Context, client *ethclient.Client, escrowAddr common.Address, escrowABI abi.ABI, publisher events.Publisher, rdb *redis.Client, log *zap.Logger) error {
	raw, err := rdb.Get(ctx, redisCursorKey).Result()
	if err != nil {
		return fmt.Errorf("read cursor: %w", err)
	}
	from, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("parse cursor %q: %w", raw, err)
	}

	head, err := client.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("head: %w", err)
	}
	if head <= from {
		return nil
	}
	to := head
	if to-from > maxBlockSpan {
		to = from + maxBlockSpan
	}

	logs, err := client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from + 1),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{escrowAddr},
	})
	if err != nil {
		return fmt.Errorf("filter logs: %w", err)
	}

	for _, entry := range logs {
		publishLog(ctx, escrowABI, entry, publisher, log)
	}

	return rdb.Set(ctx, redisCursorKey, strconv.FormatUint(to, 10), 0).Err()
}

// publishLog maps one contract log onto a bus event. Unknown topics are
// skipped silently; the ABI only names the events the daemon reacts to.
func publishLog(ctx context.Context, escrowABI abi.ABI, entry types.Log, publisher events.Publisher, log *zap.Logger) {
	if len(entry.Topics) < 2 {
		return
	}
	event, err := escrowABI.EventByID(entry.Topics[0])
	if err != nil {
		return
	}

	// The first indexed input of every event is the subject id.
	id := entry.Topics[1].Hex()

	var stream, eventType string
	switch event.Name {
	case "ContractCreated", "ContractStateChanged":
		stream, eventType = events.StreamAgreements, events.EventAgreementUpdated
	case "DiscussionMessage":
		stream, eventType = events.StreamAgreements, events.EventDiscussionUpdated
	case "InviteCreated", "InviteAccepted":
		stream, eventType = events.StreamInvites, events.EventInviteUpdated
	default:
		return
	}

	err = publisher.Publish(ctx, stream, events.Event{
		Type: eventType,
		Payload: map[string]any{
			"id":    id,
			"block": entry.BlockNumber,
			"tx":    entry.TxHash.Hex(),
		},
	})
	if err != nil {
		log.Warn("event publish failed", zap.String("event", event.Name), zap.Error(err))
		return
	}
	log.Debug("published",
		zap.String("event", event.Name),
		zap.String("id", id),
		zap.Uint64("block", entry.BlockNumber))
}
