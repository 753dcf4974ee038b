package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	appconfig "github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/config"
	conversationworker "github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/internal/worker/conversation"
	"github.com/FERNANDO-ZAPCOMM/GENDEI-APP-sub001/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting gendei conversation worker", "env", cfg.Env)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down conversation worker...")
		cancel()
	}()

	if err := conversationworker.Run(ctx, cfg, logger); err != nil {
		logger.Error("conversation worker exited", "error", err)
		os.Exit(1)
	}
}
