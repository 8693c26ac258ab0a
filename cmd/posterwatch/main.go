package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/posterwatch/posterwatch/internal/app/runtime"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := runtime.NewApplication()
	if err != nil {
		log.Fatalf("posterwatch: %v", err)
	}

	if err := app.Run(ctx); err != nil {
		log.Fatalf("posterwatch: %v", err)
	}

	if err := app.Shutdown(context.Background()); err != nil {
		log.Fatalf("posterwatch: shutdown: %v", err)
	}
}
