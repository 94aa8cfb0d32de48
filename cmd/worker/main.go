package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NordCoder/Herald/internal/bootstrap"
	config "github.com/NordCoder/Herald/internal/config/worker"
	"github.com/NordCoder/Herald/internal/obs"
	"github.com/NordCoder/Herald/internal/queue"
	"github.com/NordCoder/Herald/internal/repository/kafka"
	pg "github.com/NordCoder/Herald/internal/repository/postgres"
	"github.com/NordCoder/Herald/internal/services/worker"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfgPath := flag.String("config", "config/worker.yaml", "path to yaml config")
	flag.Parse()

	// init
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal(err)
	}

	// logger
	l, err := obs.NewLogger(cfg.Log.AsLoggerConfig(cfg.App))
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Sync() }()
	l.Info("starting worker",
		zap.Any("queue", cfg.Queue),
		zap.Any("kafka_in", cfg.KafkaIn),
		zap.String("email_provider", cfg.Email.Provider),
	)

	// otel
	otelCloser, err := obs.SetupOTel(rootCtx, cfg.OTEL.AsOTELConfig(cfg.App))
	if err != nil {
		l.Fatal("otel init", zap.Error(err))
	}
	defer func() { _ = otelCloser.Shutdown(context.Background()) }()

	// db
	db, err := pg.NewDB(rootCtx, cfg.DB)
	if err != nil {
		l.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	l.Info("db connected")

	// metrics
	ms := obs.BootstrapMetricsServer(cfg.Server.MetricsAddr, db.Ping, l)

	eng, closeEngine, err := bootstrap.Engine(db, cfg.Email, cfg.KafkaOut, l)
	if err != nil {
		l.Fatal("engine init", zap.Error(err))
	}
	defer closeEngine()

	runner := queue.NewRunner(l, pg.NewQueueRepo(db), eng.HandleTask, cfg.Queue)

	g, gctx := errgroup.WithContext(rootCtx)
	g.Go(func() error {
		l.Info("queue runner starting")
		return runner.Run(gctx)
	})

	if cfg.KafkaIn.Enable && len(cfg.KafkaIn.Brokers) > 0 {
		cons := kafka.BootstrapConsumer(gctx, &kafka.ConsumerConfig{
			Brokers: cfg.KafkaIn.Brokers,
			GroupID: cfg.KafkaIn.GroupID,
			Topic:   cfg.KafkaIn.Topic,
			Logger:  l,
		}, cfg.KafkaIn.Partitions, l)
		defer func() { _ = cons.Close() }()

		ctrl := &worker.Controller{Log: l, Sub: cons, UC: eng}
		g.Go(func() error {
			l.Info("trigger consumer starting", zap.String("topic", cfg.KafkaIn.Topic))
			return ctrl.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		l.Error("worker stopped", zap.Error(err))
	}

	shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = ms.Shutdown(shCtx)
	l.Info("bye")
}
