package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dessources/Go-rate-limited-url-shortener/internal/config"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		log.Fatalf("%s: %v", config.AppName, err)
	}
}

func run(ctx context.Context, args []string) error {
	cfg, err := config.Load(args)
	if err != nil {
		return err
	}

	//Создаём регистратор zap по LOG_LEVEL
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	sugar := logger.Sugar() // прокидываем его в middleware и компоненты

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := build(ctx, cfg, sugar)
	if err != nil {
		return err
	}
	defer a.close()

	return a.serve(ctx)
}
