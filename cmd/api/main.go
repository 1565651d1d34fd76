// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hoardrun1/hoardrun-sub005/internal/auth"
	"github.com/hoardrun1/hoardrun-sub005/internal/config"
	"github.com/hoardrun1/hoardrun-sub005/internal/grpcserver"
	"github.com/hoardrun1/hoardrun-sub005/internal/handlers"
	"github.com/hoardrun1/hoardrun-sub005/internal/mail"
	"github.com/hoardrun1/hoardrun-sub005/internal/market"
	"github.com/hoardrun1/hoardrun-sub005/internal/middleware"
	"github.com/hoardrun1/hoardrun-sub005/internal/momo"
	"github.com/hoardrun1/hoardrun-sub005/internal/payments"
	"github.com/hoardrun1/hoardrun-sub005/internal/queue"
	"github.com/hoardrun1/hoardrun-sub005/internal/store"
	"github.com/hoardrun1/hoardrun-sub005/internal/validate"
)

func main() {
	configFile := flag.String("config", "", "path to a YAML config file")
	envFile := flag.String("env", ".env", "path to a .env file")
	flag.Parse()

	cfg, err := config.Load(*configFile, *envFile)
	if err != nil {
		log.Fatal("[API] ", err)
	}
	config.InitLogger(cfg.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxOpenConns)
	if err != nil {
		log.Fatal("[API] ", err)
	}
	defer db.Close()

	st := store.New(db, cfg.Momo.Currency)
	if cfg.Postgres.MigrateOnBoot {
		if err := st.Migrate(ctx); err != nil {
			log.Fatal("[API] ", err)
		}
	}

	events := queue.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic)
	defer events.Close()

	svc := payments.NewService(st, momo.New(cfg.Momo, &http.Client{Timeout: cfg.Momo.Timeout}), events)

	proxies, err := middleware.ParseTrustedProxies(cfg.RateLimit.TrustedProxies)
	if err != nil {
		log.Fatal("[API] ", err)
	}
	apiLimit := middleware.NewRateLimiter("api", cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, cfg.RateLimit.IdleTTL).
		TrustProxies(proxies)
	contactLimit := middleware.NewRateLimiter("contact", cfg.RateLimit.ContactPerSecond, cfg.RateLimit.ContactBurst, cfg.RateLimit.IdleTTL).
		TrustProxies(proxies)
	apiLimit.StartCleanup(ctx, time.Minute)
	contactLimit.StartCleanup(ctx, time.Minute)

	verifier := auth.NewVerifier(cfg.Auth, &http.Client{Timeout: cfg.Auth.HTTPTimeout})
	router := handlers.NewRouter(handlers.Deps{
		Store:         st,
		Payments:      svc,
		Market:        market.New(cfg.Market, &http.Client{Timeout: cfg.Market.Timeout}),
		Contact:       mail.NewWeb3Forms(cfg.Mail, &http.Client{Timeout: 10 * time.Second}),
		Validator:     validate.New(),
		CallbackToken: cfg.Momo.CallbackToken,
	}, handlers.Middlewares{
		Auth:         auth.Middleware(verifier, st),
		APILimit:     apiLimit,
		ContactLimit: contactLimit,
		CORSOrigins:  cfg.HTTP.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}
	go func() {
		log.Info("[API] Serving HTTP on ", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("[API] HTTP serve: ", err)
		}
	}()

	grpcSrv, health := grpcserver.New(st, 15*time.Second)
	health.Start()
	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		log.Fatalf("[API] listen %s: %v", cfg.GRPC.Addr, err)
	}
	go func() {
		log.Info("[API] Serving gRPC health on ", cfg.GRPC.Addr)
		if err := grpcSrv.Serve(lis); err != nil {
			log.Error("[API] gRPC serve: ", err)
		}
	}()

	<-ctx.Done()
	log.Info("[API] Shutting down")

	health.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("[API] HTTP shutdown: ", err)
	}
	grpcSrv.GracefulStop()
	log.Info("[API] Bye")
}
