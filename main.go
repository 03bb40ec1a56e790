package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/doctalk/doctalk/internal/adapter/embedding"
	"github.com/doctalk/doctalk/internal/adapter/llm"
	"github.com/doctalk/doctalk/internal/config"
	"github.com/doctalk/doctalk/internal/service"
	transport "github.com/doctalk/doctalk/internal/transport/http"
	"github.com/doctalk/doctalk/internal/vectorstore"
	"github.com/doctalk/doctalk/internal/vectorstore/chroma"
	"github.com/doctalk/doctalk/internal/vectorstore/sqlite"
	"github.com/doctalk/doctalk/policy"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg := config.Load()

	log.Printf("Starting doctalk...")
	log.Printf("HTTP Port: %d", cfg.HTTPPort)
	log.Printf("Store backend: %s", cfg.StoreBackend)
	log.Printf("Ollama URL: %s", cfg.OllamaURL)

	// Initialize vector store
	var store vectorstore.Store
	switch cfg.StoreBackend {
	case "chroma":
		store = chroma.New(chroma.Config{URL: cfg.ChromaURL})
	case "sqlite":
		s, err := sqlite.New(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to initialize store: %v", err)
		}
		store = s
	default:
		log.Fatalf("Unknown store backend: %s", cfg.StoreBackend)
	}
	defer store.Close()

	// Initialize providers
	embedder := embedding.NewEmbedder(cfg.OllamaURL, cfg.EmbedModel, cfg.EmbedTimeout)
	generator := llm.NewGenerator(cfg.OllamaURL, cfg.LLMModel, cfg.LLMTimeout)

	// Initialize policy engine
	ctx := context.Background()
	policyEngine, err := policy.NewEngineFromFile(ctx, cfg.PolicyFile)
	if err != nil {
		log.Fatalf("Failed to initialize policy engine: %v", err)
	}

	// Initialize service and server
	svc := service.New(store, embedder, generator, policyEngine, cfg)
	server := transport.NewServer(svc)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("API started on port %d", cfg.HTTPPort)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down doctalk...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	log.Println("doctalk stopped")
}
