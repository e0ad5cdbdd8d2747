package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/harborwallet/walletkit-backend/internal/api"
	"github.com/harborwallet/walletkit-backend/internal/approval"
	"github.com/harborwallet/walletkit-backend/internal/chains"
	"github.com/harborwallet/walletkit-backend/internal/chains/evm"
	"github.com/harborwallet/walletkit-backend/internal/config"
	"github.com/harborwallet/walletkit-backend/internal/dispatch"
	"github.com/harborwallet/walletkit-backend/internal/log"
	"github.com/harborwallet/walletkit-backend/internal/metrics"
	"github.com/harborwallet/walletkit-backend/internal/redirect"
	"github.com/harborwallet/walletkit-backend/internal/relay"
	"github.com/harborwallet/walletkit-backend/internal/seedvault"
	"github.com/harborwallet/walletkit-backend/internal/session"
	"github.com/harborwallet/walletkit-backend/internal/telemetry"
	"github.com/harborwallet/walletkit-backend/pkg/kv"
	_ "github.com/harborwallet/walletkit-backend/pkg/kv/memory"
	_ "github.com/harborwallet/walletkit-backend/pkg/kv/redis"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger, err := log.NewSugar(cfg.Env, "walletkitd")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Infow("Starting WalletKit backend",
		"env", cfg.Env,
		"addr", cfg.HTTPAddr,
		"relay", cfg.Relay.URL,
	)

	// Setup metrics
	metricsObj, metricsHandler, err := metrics.Setup("walletkitd")
	if err != nil {
		logger.Fatalw("Failed to setup metrics", "error", err)
	}

	// Setup key-value store
	store, err := kv.NewStoreFromConfig(kv.Config{
		Backend:  kv.Backend(cfg.Store.Backend),
		RedisURL: cfg.Store.RedisURL,
	})
	if err != nil {
		logger.Fatalw("Failed to setup store", "error", err, "backend", cfg.Store.Backend)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := store.Ping(ctx); err != nil {
		cancel()
		logger.Fatalw("Store ping failed", "error", err)
	}
	cancel()
	logger.Infow("Store connection established", "backend", cfg.Store.Backend)

	sessions := session.NewStore(store)

	// Seed vault
	vault := seedvault.NewFileVault(cfg.Vault.Path, cfg.Vault.Passphrase, nil)

	// Chain registry
	registry := chains.NewRegistry()
	for _, nw := range cfg.Networks.EVM {
		client, err := ethclient.Dial(nw.RPCURL)
		if err != nil {
			logger.Fatalw("Failed to connect to RPC node", "network", nw.ID, "error", err)
		}
		network := evm.NewNetwork(nw.ID, big.NewInt(nw.ChainID))
		if err := registry.Register(chains.Capabilities{
			Network:   network,
			Preparer:  evm.NewPreparer(network, client, nil),
			Signer:    evm.NewSigner(network),
			Describer: evm.NewDescriber(network),
		}); err != nil {
			logger.Fatalw("Failed to register network", "network", nw.ID, "error", err)
		}
		logger.Infow("Network registered", "network", nw.ID, "name", network.Name())
	}

	// Approval broker
	approvals := approval.NewBroker(cfg.Approval.DecisionTimeout, metricsObj)

	// Redirect notifier
	var redirects redirect.Notifier = redirect.NopNotifier{}
	if cfg.Redirect.WebhookURL != "" {
		redirects = redirect.NewWebhookNotifier(cfg.Redirect.WebhookURL, cfg.Redirect.Timeout, logger)
	}

	// Relay transport: a real websocket relay, or the in-process bus for
	// development and tests.
	var (
		responder relay.Responder
		localBus  *relay.LocalBus
	)
	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	if cfg.Relay.URL == "local" {
		localBus = relay.NewLocalBus()
		responder = localBus
		logger.Infow("Using in-process relay bus")
	} else {
		client := relay.NewClient(cfg.Relay.URL, logger, relay.ClientOptions{
			PingInterval: cfg.Relay.PingInterval,
			WriteTimeout: cfg.Relay.WriteTimeout,
		})
		if err := client.Connect(runCtx); err != nil {
			logger.Fatalw("Failed to connect to relay", "url", cfg.Relay.URL, "error", err)
		}
		defer client.Close()
		responder = client

		topics, err := sessionTopics(runCtx, sessions)
		if err != nil {
			logger.Fatalw("Failed to list session topics", "error", err)
		}
		if len(topics) > 0 {
			if err := client.Subscribe(runCtx, topics...); err != nil {
				logger.Fatalw("Failed to subscribe to session topics", "error", err)
			}
		}
		logger.Infow("Relay connected", "url", cfg.Relay.URL, "topics", len(topics))
	}

	// Dispatcher: one instance handles every inbound session request.
	dispatcher := dispatch.New(dispatch.Options{
		Registry:  registry,
		Sessions:  sessions,
		Approvals: approvals,
		Seeds:     vault,
		Responder: responder,
		Redirects: redirects,
		Reporter:  telemetry.NewZapReporter(logger),
		Logger:    logger,
		Metrics:   metricsObj,
	})

	if localBus != nil {
		localBus.Subscribe(dispatcher.HandleSessionRequest)
	} else if client, ok := responder.(*relay.Client); ok {
		client.Start(runCtx, dispatcher.HandleSessionRequest)
	}

	// Setup API handler and middleware
	handler := api.NewHandler(sessions, approvals, registry, store, logger, metricsObj, metricsHandler)
	middleware := api.NewMiddleware(logger, metricsObj)
	router := handler.Routes(middleware, cfg.Security.CORSAllowedOrigins, cfg.Security.RateLimitRPM)

	// In local relay mode, requests can be injected over HTTP for testing.
	if localBus != nil {
		router.Post("/v1/dev/session-requests", func(w http.ResponseWriter, r *http.Request) {
			var req session.Request
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid request payload", http.StatusBadRequest)
				return
			}
			go localBus.Deliver(runCtx, req)
			w.WriteHeader(http.StatusAccepted)
		})
	}

	// Setup HTTP server
	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		logger.Infow("API server starting", "addr", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	// Wait for interrupt signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Fatalw("Server startup failed", "error", err)
	case sig := <-shutdown:
		logger.Infow("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		runCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Errorw("Graceful shutdown failed", "error", err)
			server.Close()
		}
		logger.Infow("Server stopped")
	}
}

func sessionTopics(ctx context.Context, sessions *session.Store) ([]string, error) {
	list, err := sessions.List(ctx)
	if err != nil {
		return nil, err
	}
	topics := make([]string, 0, len(list))
	for _, s := range list {
		topics = append(topics, s.Topic)
	}
	return topics, nil
}
