package main

import (
	"log"

	"github.com/mango3/identity/internal/identity/app"
)

func main() {
	cfg := app.LoadConfig()

	worker, err := app.NewWorker(cfg)
	if err != nil {
		log.Fatalf("failed to initialize worker: %v", err)
	}

	if err := worker.Run(); err != nil {
		log.Fatalf("worker error: %v", err)
	}
}
