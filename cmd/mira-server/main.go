// Command mira-server runs the Mira note enhancement API: entity
// extraction, fact memory, LLM reasoning, task scheduling and reminder
// delivery behind one HTTP server.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mira-notes/mira/internal/config"
	"github.com/mira-notes/mira/internal/extractor"
	"github.com/mira-notes/mira/internal/llm"
	"github.com/mira-notes/mira/internal/memory"
	"github.com/mira-notes/mira/internal/notify"
	"github.com/mira-notes/mira/internal/reasoning"
	"github.com/mira-notes/mira/internal/scheduler"
	"github.com/mira-notes/mira/internal/server"
	"github.com/mira-notes/mira/internal/sse"
	"github.com/mira-notes/mira/internal/storage"
	"github.com/mira-notes/mira/internal/storage/postgres"
	"github.com/mira-notes/mira/internal/storage/sqlite"
	"github.com/mira-notes/mira/internal/tasks"
)

var configPath = flag.String("config", "", "Path to YAML config file (optional, uses env vars by default)")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	breaker := llm.NewFromConfig(cfg.LLM)
	broadcaster := sse.NewBroadcaster()
	taskSvc := tasks.NewService(store)
	engine := reasoning.NewEngine(
		extractor.New(ctx, store),
		memory.NewService(store),
		breaker,
		taskSvc,
		store,
		broadcaster,
	)

	notifier := notify.NewNotifier(cfg.Notify, store)
	sched := scheduler.New(store, scheduler.NewTimeParser(), notifier, cfg.Scheduler, nil)
	go sched.Run(ctx)

	addr, err := server.Start(ctx, cfg, server.Deps{
		Engine:      engine,
		Tasks:       taskSvc,
		Broadcaster: broadcaster,
		Breaker:     breaker,
		Queue:       sched,
	})
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	log.Printf("Mira server listening on %s (storage: %s, model: %s)", addr, cfg.Storage.Engine, cfg.LLM.Model)

	<-ctx.Done()
	log.Println("Shutting down...")
	engine.Drain()
}

// openStore selects the storage backend from config.
func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Engine {
	case "postgres":
		return postgres.New(cfg.Storage.PostgresURL)
	default:
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
			return nil, err
		}
		return sqlite.New(cfg.Storage.DataPath + "/mira.db")
	}
}
