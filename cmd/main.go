package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"claims-agent/internal/bootstrap"
	"claims-agent/internal/config"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	if cfg.CapForLambda() {
		logger.Info("document limit lowered for lambda", "max_document_bytes", cfg.MaxDocumentBytes)
	}

	// ---- AWS SDK config ----
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Wiring ----
	app, err := bootstrap.New(ctx, cfg, bootstrap.NewClients(awsCfg), logger)
	if err != nil {
		logger.Error("failed to wire service", "err", err)
		os.Exit(1)
	}

	lambda.Start(app.Handler.Handle)
}
