package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-shop-settlement/internal/accounts"
	"github.com/ariefcatur/go-shop-settlement/internal/cart"
	"github.com/ariefcatur/go-shop-settlement/internal/catalog"
	"github.com/ariefcatur/go-shop-settlement/internal/config"
	"github.com/ariefcatur/go-shop-settlement/internal/dashboard"
	"github.com/ariefcatur/go-shop-settlement/internal/events"
	"github.com/ariefcatur/go-shop-settlement/internal/httpx"
	kafkax "github.com/ariefcatur/go-shop-settlement/internal/kafka"
	"github.com/ariefcatur/go-shop-settlement/internal/logging"
	"github.com/ariefcatur/go-shop-settlement/internal/orders"
	"github.com/ariefcatur/go-shop-settlement/internal/payment"
	"github.com/ariefcatur/go-shop-settlement/internal/postgres"
	"github.com/ariefcatur/go-shop-settlement/internal/redisx"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logging.New(cfg.ServiceName, cfg.LogLevel)

	// money leaves as JSON numbers, as the storefront expects
	decimal.MarshalJSONWithoutQuotes = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stores
	var (
		store    orders.Store
		products catalog.Reader
		users    dashboard.Counter
	)
	switch cfg.OrderStore {
	case "memory":
		log.Warn().Msg("using in-memory stores; orders are lost on restart")
		store, products, users = orders.NewMemoryStore(), catalog.NewMemory(), accounts.NewMemory()
	default:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN, log)
		if err != nil {
			log.Fatal().Err(err).Msg("db connect")
		}
		defer db.Close()
		if err := postgres.Migrate(db); err != nil {
			log.Fatal().Err(err).Msg("db migrate")
		}
		store, products, users = &orders.PgStore{DB: db}, &catalog.Repo{DB: db}, &accounts.Repo{DB: db}
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers, one per topic
	pPlaced := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderPlaced, 1024, log)
	pPlaced.Start()
	pChanged := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderStatusChanged, 1024, log)
	pChanged.Start()

	// Payment providers
	var providers []payment.Provider
	if cfg.StripeSecretKey != "" {
		providers = append(providers, payment.NewStripe(
			payment.NewStripeClient(cfg.StripeSecretKey, cfg.StripeAPIURL, cfg.PaymentTimeout), cfg.PaymentMaxTries))
	} else {
		log.Warn().Msg("STRIPE_SECRET_KEY not set; stripe orders will be refused")
	}
	if cfg.RazorpayKeyID != "" {
		providers = append(providers, payment.NewRazorpay(
			payment.NewRazorpayClient(cfg.RazorpayKeyID, cfg.RazorpayKeySecret), cfg.PaymentMaxTries))
	} else {
		log.Warn().Msg("RAZORPAY_KEY_ID not set; razorpay orders will be refused")
	}
	verifier := payment.NewVerifier(cfg.PaymentTimeout, log, providers...)

	// Services
	svc := orders.NewService(store, verifier, log,
		orders.WithNotifier(events.NewPublisher(pPlaced, pChanged, cfg.ServiceName, log)),
		orders.WithProductIDFormat(orders.ParseIDFormat(cfg.ProductIDFormat)),
	)
	reports := dashboard.NewCache(dashboard.NewReporter(store, products, users, log), rdb, cfg.DashboardCacheTTL, log)
	carts := cart.NewRedisStore(rdb)

	if cfg.JWTSecret == "" {
		log.Warn().Msg("JWT_SECRET not set; admin routes will reject every request")
	}
	auth := httpx.NewAuth(cfg.JWTSecret)

	// Handlers
	router := httpx.NewRouter(log)
	(&httpx.OrdersHandler{
		Orders:           svc,
		Auth:             auth,
		Redis:            rdb,
		Carts:            carts,
		Limit:            httpx.NewRateLimiter(cfg.CreateOrderRPS, cfg.CreateOrderBurst).Middleware,
		TrustClientEmail: cfg.TrustClientEmail,
	}).Register(router)
	(&httpx.DashboardHandler{Reports: reports, Auth: auth}).Register(router)
	(&httpx.CartHandler{Carts: carts, Catalog: products}).Register(router)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("store", cfg.OrderStore).Msg("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel2()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Error().Err(err).Msg("http shutdown did not drain in time")
	}
	// handlers still running after a failed drain get ErrClosed from Publish
	pPlaced.Close() // flush queued events and close the writer
	pChanged.Close()
	pPlaced.WaitClosed()
	pChanged.WaitClosed()
	cancel()
}
