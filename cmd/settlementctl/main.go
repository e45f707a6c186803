package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/josh-kwaku/settlement-engine/internal/app"
	"github.com/josh-kwaku/settlement-engine/internal/config"
	"github.com/josh-kwaku/settlement-engine/internal/logging"
	"github.com/josh-kwaku/settlement-engine/internal/repository"
)

func main() {
	if err := newApp(open).Run(os.Args); err != nil {
		slog.Error("settlementctl failed", "error", err)
		os.Exit(1)
	}
}

// open connects to the database and builds the dispatcher from the
// environment.
func open(ctx context.Context) (engine, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger := logging.Init(logging.Options{
		Service: "settlementctl",
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		AppEnv:  cfg.AppEnv,
	})

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return ctlEngine{Service: a.Settlement, operators: repository.NewOperatorRepository(a.DB)}, a.Close, nil
}
