// cmd/payments-worker/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/hoardrun1/hoardrun-sub005/internal/config"
	"github.com/hoardrun1/hoardrun-sub005/internal/mail"
	"github.com/hoardrun1/hoardrun-sub005/internal/momo"
	"github.com/hoardrun1/hoardrun-sub005/internal/payments"
	"github.com/hoardrun1/hoardrun-sub005/internal/queue"
	"github.com/hoardrun1/hoardrun-sub005/internal/reconciler"
	"github.com/hoardrun1/hoardrun-sub005/internal/store"
)

func main() {
	configFile := flag.String("config", "", "path to a YAML config file")
	envFile := flag.String("env", ".env", "path to a .env file")
	metricsAddr := flag.String("metrics-addr", ":9101", "address for /metrics")
	flag.Parse()

	cfg, err := config.Load(*configFile, *envFile)
	if err != nil {
		log.Fatal("[WORKER] ", err)
	}
	config.InitLogger(cfg.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxOpenConns)
	if err != nil {
		log.Fatal("[WORKER] ", err)
	}
	defer db.Close()
	st := store.New(db, cfg.Momo.Currency)

	events := queue.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic)
	defer events.Close()
	svc := payments.NewService(st, momo.New(cfg.Momo, &http.Client{Timeout: cfg.Momo.Timeout}), events)

	var rec *reconciler.Service
	if cfg.Reconciler.Enabled {
		rec = reconciler.New(svc, cfg.Reconciler)
		rec.Start()
	}

	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: *metricsAddr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("[WORKER] Serving metrics on ", *metricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("[WORKER] metrics serve: ", err)
		}
	}()

	if len(cfg.Kafka.Brokers) > 0 && cfg.Mail.ReceiptsEnabled {
		consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic, cfg.Kafka.GroupID)
		go func() {
			defer consumer.Close()
			log.Info("[WORKER] Consuming ", cfg.Kafka.EventsTopic)
			if err := consumer.Run(ctx, mail.ReceiptHandler(st, mail.NewMailgun(cfg.Mail, &http.Client{Timeout: 10 * time.Second}))); err != nil {
				log.Error("[WORKER] consumer stopped: ", err)
				stop()
			}
		}()
	} else {
		log.Info("[WORKER] Receipts disabled, not consuming events")
	}

	<-ctx.Done()
	log.Info("[WORKER] Shutting down")
	if rec != nil {
		rec.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	log.Info("[WORKER] Bye")
}
