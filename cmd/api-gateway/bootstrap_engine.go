package main

import (
	"github.com/NordCoder/Herald/internal/bootstrap"
	config "github.com/NordCoder/Herald/internal/config/api-gateway"
	pg "github.com/NordCoder/Herald/internal/repository/postgres"
	"github.com/NordCoder/Herald/internal/services/notifier"
	"go.uber.org/zap"
)

// initEngine wires the engine for request handling. Tasks are only
// enqueued here; the worker binary executes them.
func initEngine(cfg *config.Config, db *pg.DB, logger *zap.Logger) (*notifier.Engine, func(), error) {
	return bootstrap.Engine(db, cfg.Email, cfg.KafkaOut, logger)
}
