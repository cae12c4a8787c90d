package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/private-escrow/escrowd/internal/auth"
	"github.com/private-escrow/escrowd/internal/cache"
	"github.com/private-escrow/escrowd/internal/cofhe"
	"github.com/private-escrow/escrowd/internal/config"
	"github.com/private-escrow/escrowd/internal/db"
	"github.com/private-escrow/escrowd/internal/events"
	apphttp "github.com/private-escrow/escrowd/internal/http"
	"github.com/private-escrow/escrowd/internal/http/handlers"
	"github.com/private-escrow/escrowd/internal/ledger"
	"github.com/private-escrow/escrowd/internal/projection"
	"github.com/private-escrow/escrowd/internal/repositories"
	"github.com/private-escrow/escrowd/internal/services"
	"github.com/private-escrow/escrowd/internal/wallet"
)

// chainAdapter exposes the gateway to the encryption pipeline without the
// pipeline importing the ledger package.
type chainAdapter struct {
	gateway *ledger.Gateway
}

func (a chainAdapter) ChainID() int64 { return a.gateway.ChainID() }

func (a chainAdapter) SwitchNetwork(ctx context.Context, net cofhe.Network) error {
	return a.gateway.SwitchNetwork(ctx, ledger.Network{
		ChainID:   net.ChainID,
		ChainName: net.ChainName,
		RPCURLs:   net.RPCURLs,
	})
}

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.ApplyRemote(log)
	if err := cfg.Validate(log); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, "migrations", log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Signer. A missing key leaves the gateway read-only.
	var w *wallet.Wallet
	switch {
	case cfg.KeystorePath != "":
		w, err = wallet.FromKeystore(cfg.KeystorePath, cfg.KeystorePassphrase)
	case cfg.PrivateKeyHex != "":
		w, err = wallet.FromHex(cfg.PrivateKeyHex)
	}
	if err != nil {
		log.Fatal("failed to load signer", zap.Error(err))
	}

	// Ledger gateway
	net := ledger.Network{ChainID: cfg.ChainID, ChainName: cfg.ChainName, RPCURLs: cfg.RPCURLs}
	gateway, err := ledger.New(net,
		common.HexToAddress(cfg.EscrowContractAddress),
		common.HexToAddress(cfg.DisputeResolverAddress),
		w, nil, log)
	if err != nil {
		log.Fatal("failed to reach the ledger", zap.Error(err))
	}

	// Encryption pipeline, re-initialized after every network switch
	pipeline := cofhe.NewPipeline(cfg.CofheEnv, cfg.CofheCoprocessorURL, uint8(cfg.CofheSecurityZone),
		cofhe.Network{ChainID: cfg.ChainID, ChainName: cfg.ChainName, RPCURLs: cfg.RPCURLs},
		chainAdapter{gateway: gateway}, log)
	gateway.OnNetworkChange(func(chainID int64) {
		pipeline.Invalidate()
	})

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Projections
	store := projection.NewStore(func(id string) {
		err := publisher.Publish(ctx, events.StreamAgreements, events.Event{
			Type:    events.EventAgreementUpdated,
			Payload: map[string]any{"id": id},
		})
		if err != nil {
			log.Warn("event publish failed", zap.Error(err))
		}
	})
	fetcher := projection.NewFetcher(gateway, gateway.Account())
	scheduler := projection.NewScheduler(fetcher, store,
		cfg.PollInterval, cfg.DiscussionPollInterval, cfg.AmbientMinInterval, cfg.WatchIdleTimeout, log)

	// Repositories and services
	journalRepo := repositories.NewJournalRepo(pool)
	redisCache := cache.New(rdb, log)
	escrowService := services.NewEscrowService(gateway, pipeline, store, scheduler, journalRepo, publisher, log)
	inviteService := services.NewInviteService(gateway, pipeline, scheduler, journalRepo, publisher, log)
	accountService := services.NewAccountService(gateway, redisCache, journalRepo, cfg.DashboardCacheTTL, log)

	// An indexer-published update nudges the watched projection ahead of its
	// next tick.
	_ = subscriber.Subscribe(ctx, events.StreamAgreements, func(event events.Event) {
		if id, ok := event.Payload["id"].(string); ok {
			scheduler.Ambient(id)
		}
	})
	// A confirmed action invalidates the cached dashboard so the next visit
	// rebuilds it.
	_ = subscriber.Subscribe(ctx, events.StreamActions, func(event events.Event) {
		if event.Type == events.EventActionConfirmed {
			accountService.InvalidateDashboard(ctx, gateway.Account())
		}
	})

	// Handlers
	challenger := auth.NewChallenger(rdb)
	authHandler := handlers.NewAuthHandler(challenger, cfg, log)
	configHandler := handlers.NewConfigHandler(cfg, gateway)
	agreementHandler := handlers.NewAgreementHandler(escrowService, journalRepo, log)
	inviteHandler := handlers.NewInviteHandler(inviteService, log)
	accountHandler := handlers.NewAccountHandler(accountService, log)
	wsHub := handlers.NewWSHub(cfg, subscriber, log)

	// Start WS hub
	wsHub.Start(ctx)

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, authHandler, configHandler, agreementHandler, inviteHandler, accountHandler, wsHub)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting escrowd",
		zap.String("addr", addr),
		zap.Int64("chain", gateway.ChainID()),
		zap.String("account", gateway.Account().Hex()))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
