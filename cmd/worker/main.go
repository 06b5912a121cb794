package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"academy/internal/audit"
	"academy/internal/config"
	"academy/internal/notify"
	"academy/internal/queue"
	"academy/internal/store"
)

// Worker drains the audit queue into postgres and forwards enrollment
// activity to the configured webhook.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatalf("db migrate failed: %v", err)
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "academy:events")
	}

	repo := audit.NewRepository(db.Client)
	webhook := notify.New(cfg.WebhookURL, cfg.WebhookSkip)
	if webhook.Skip {
		log.Println("webhook disabled, enrollment events stay local")
	} else {
		log.Printf("webhook enabled: %s", cfg.WebhookURL)
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		if msg.Type != queue.TypeAudit {
			continue
		}

		evt, err := audit.Decode(msg.Body)
		if err != nil {
			log.Printf("decode event failed: %v", err)
			continue
		}

		if err := repo.Insert(ctx, evt); err != nil {
			log.Printf("store event %s failed: %v", evt.ID, err)
			continue
		}

		// Only enrollment activity leaves the building.
		if strings.HasPrefix(evt.Action, "enrollment.") {
			err := webhook.Send(ctx, notify.Event{
				Action:  evt.Action,
				Actor:   evt.Actor,
				Outcome: evt.Outcome,
				Detail:  evt.Detail,
				At:      evt.CreatedAt,
			})
			if err != nil {
				log.Printf("webhook for %s failed: %v", evt.ID, err)
			}
		}
	}

	log.Println("worker stopped")
}
