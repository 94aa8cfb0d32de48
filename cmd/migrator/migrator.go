package main

import (
	"context"
	"flag"
	"os"

	"github.com/NordCoder/Herald/internal/obs"
	"github.com/NordCoder/Herald/migrations"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

func main() {
	cmd := flag.String("cmd", "up", "goose command: up, down, status, version")
	flag.Parse()

	log, err := obs.NewLogger(obs.LogConfig{Level: "info", App: "herald-migrator"})
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatal("DB_DSN is empty")
	}

	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(zap.NewStdLog(log))
	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatal("set dialect", zap.Error(err))
	}
	db, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		log.Fatal("open db", zap.Error(err))
	}
	defer db.Close()

	if err := goose.RunContext(context.Background(), *cmd, db, "."); err != nil {
		log.Fatal("migrate", zap.String("cmd", *cmd), zap.Error(err))
	}
	log.Info("migrations done", zap.String("cmd", *cmd))
}
