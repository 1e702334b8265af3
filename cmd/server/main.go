package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/marketcalls/openalgo-sub001/config"
	"github.com/marketcalls/openalgo-sub001/internal/api"
	"github.com/marketcalls/openalgo-sub001/internal/approval"
	"github.com/marketcalls/openalgo-sub001/internal/audit"
	"github.com/marketcalls/openalgo-sub001/internal/auth"
	"github.com/marketcalls/openalgo-sub001/internal/broker"
	"github.com/marketcalls/openalgo-sub001/internal/engine"
	"github.com/marketcalls/openalgo-sub001/internal/events"
	"github.com/marketcalls/openalgo-sub001/internal/logger"
	"github.com/marketcalls/openalgo-sub001/internal/metrics"
	"github.com/marketcalls/openalgo-sub001/internal/notify"
	"github.com/marketcalls/openalgo-sub001/internal/options"
	"github.com/marketcalls/openalgo-sub001/internal/order"
	"github.com/marketcalls/openalgo-sub001/internal/queue"
	"github.com/marketcalls/openalgo-sub001/internal/refdata"
)

// maintainAngelSession keeps the gateway API key's Angel JWT fresh.
// Angel sessions last a day; a failed login retries after a minute so
// a transient SmartAPI outage does not leave the key dead until the
// next refresh window.
func maintainAngelSession(ctx context.Context, cfg *config.Config, store *auth.Store) {
	angel := broker.NewAngel(broker.AngelConfig{APIKey: cfg.AngelAPIKey})

	refresh := func() error {
		loginCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		jwt, err := angel.GenerateSession(loginCtx, cfg.AngelClientCode, cfg.AngelPassword, cfg.AngelTOTPSecret)
		if err != nil {
			return err
		}
		return store.Put(ctx, cfg.GatewayAPIKey, auth.Credentials{
			Owner:       cfg.AngelClientCode,
			Broker:      "angel",
			AuthToken:   jwt,
			TradingMode: cfg.GatewayTradingMode,
		})
	}

	for {
		wait := 6 * time.Hour
		if err := refresh(); err != nil {
			log.Printf("[server] angel session refresh failed: %v", err)
			wait = time.Minute
		} else {
			log.Printf("[server] angel session refreshed for %s", cfg.AngelClientCode)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	slogger := logger.Init("order-gateway", slog.LevelInfo)
	slogger.Info("starting")

	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Shared Redis connection: credentials and order-event PubSub.
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("[server] redis connection failed: %v", err)
	}
	log.Printf("[server] redis connected at %s", cfg.RedisAddr)

	authStore := auth.NewWithClient(rdb)

	auditLog, err := audit.New(cfg.AuditDBPath)
	if err != nil {
		log.Fatalf("[server] audit log: %v", err)
	}
	defer auditLog.Close()

	approvals, err := approval.NewStore(cfg.ApprovalDBPath)
	if err != nil {
		log.Fatalf("[server] approval queue: %v", err)
	}
	defer approvals.Close()

	refSource, err := refdata.NewSQLiteSource(cfg.RefDataDBPath)
	if err != nil {
		log.Fatalf("[server] refdata: %v", err)
	}
	defer refSource.Close()

	m := metrics.New()
	auditLog.OnDrop = m.AuditDropped.Inc

	health := metrics.NewHealthStatus()
	health.Submit = m.Latency
	health.StartLivenessChecker(ctx, rdb, auditLog.DB(), 15*time.Second)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// Order-event stream: engine -> Redis PubSub -> WS clients.
	hub := events.NewHub(rdb)
	hub.OnClientCountChange = func(n int) { m.WSClients.Set(float64(n)) }
	go hub.Run(ctx)

	channels := []notify.Notifier{notify.NewLogNotifier(), events.NewPublisher(rdb)}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		channels = append(channels, notify.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	if cfg.WebhookURL != "" {
		channels = append(channels, notify.NewWebhookNotifier(cfg.WebhookURL))
	}

	// Broker adapters. The paper sandbox is always available; Angel One
	// only with credentials.
	broker.Register("paper", func() broker.Adapter { return broker.NewPaper() })
	if cfg.AngelAPIKey != "" {
		angelCfg := broker.AngelConfig{APIKey: cfg.AngelAPIKey}
		broker.Register("angel", func() broker.Adapter { return broker.NewAngel(angelCfg) })
		if cfg.AngelClientCode != "" && cfg.AngelTOTPSecret != "" && cfg.GatewayAPIKey != "" {
			go maintainAngelSession(ctx, cfg, authStore)
		}
	}
	log.Printf("[server] brokers registered: %v", broker.Registered())

	eng := engine.New(authStore)
	eng.Options = options.NewResolver(refSource)
	eng.Approvals = approvals
	eng.Queue = queue.New(time.Duration(cfg.SmartDelayMillis)*time.Millisecond, cfg.OrdersPerSecond)
	eng.Audit = auditLog
	eng.Events = notify.NewFanout(channels...)
	eng.Metrics = m
	eng.Coord = order.NewCoordinator(cfg.Workers, cfg.OrdersPerSecond)
	eng.SetMode(cfg.DefaultMode)
	log.Printf("[server] engine ready (mode=%s, workers=%d, rate=%d/s)",
		eng.Mode(), cfg.Workers, cfg.OrdersPerSecond)

	handler := &api.Handler{
		Engine:  eng,
		Pending: approvals,
		Audit:   auditLog,
		Hub:     hub,
		Log:     slogger,
	}
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: handler.Routes(),
	}

	go func() {
		log.Printf("[server] listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[server] http: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("[server] shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
	cancel()
	log.Println("[server] bye")
}
