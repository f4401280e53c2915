package main

import (
	"context"
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/reyharighy/cba-agentic-ai/internal/agent/datastore"
	"github.com/reyharighy/cba-agentic-ai/internal/agent/events"
	"github.com/reyharighy/cba-agentic-ai/internal/agent/graph"
	"github.com/reyharighy/cba-agentic-ai/internal/agent/model"
	"github.com/reyharighy/cba-agentic-ai/internal/agent/repo"
	"github.com/reyharighy/cba-agentic-ai/internal/sandbox"
	logx "github.com/reyharighy/cba-agentic-ai/pkg/logger"
	pkgredis "github.com/reyharighy/cba-agentic-ai/pkg/redis"
	"github.com/reyharighy/cba-agentic-ai/pkg/sqlite"
)

// AppConfig defines all configurable parameters for the agent, sourced from
// environment variables (loaded from .env for local runs).
type AppConfig struct {
	// Infrastructure
	Redis pkgredis.Config

	// LLM provider
	APIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL string `envconfig:"GEMINI_BASE_URL"`

	// Agent configs
	Oracle    model.OracleModelConfig
	Datastore model.DatastoreConfig
	Memory    model.MemoryConfig
	Sandbox   model.SandboxConfig
	Graph     model.GraphConfig
	Events    model.EventsConfig
}

func main() {
	logx.Init()
	ctx := context.Background()

	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	rdb, err := cfg.Redis.New()
	if err != nil {
		log.Fatalf("Failed to initialise Redis client: %v", err)
	}
	defer rdb.Close()

	memoryDB := (&sqlite.Config{Path: cfg.Memory.DBPath, BusyTimeout: 5}).MustNew()
	defer memoryDB.Close()
	memory := repo.NewSQLiteMemoryRepository(memoryDB)
	if err := memory.Init(ctx); err != nil {
		log.Fatalf("Failed to initialise memory tables: %v", err)
	}

	externalDB := (&sqlite.Config{Path: cfg.Datastore.ExternalDBPath, BusyTimeout: 5}).MustNew()
	defer externalDB.Close()
	store := datastore.New(externalDB, cfg.Datastore.WorkspaceDir)

	runner, err := sandbox.NewDockerRunner(cfg.Sandbox, cfg.Datastore.WorkspaceDir)
	if err != nil {
		log.Fatalf("Failed to initialise sandbox runner: %v", err)
	}

	sink := events.NewRedisSink(rdb, cfg.Events.RedisChannel)

	agent, err := graph.BuildAgentGraph(ctx, graph.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Oracle:  cfg.Oracle,
		Graph:   cfg.Graph,
		Memory:  memory,
		Store:   store,
		Sandbox: runner,
		Sink:    sink,
	})
	if err != nil {
		log.Fatalf("Failed to build agent graph: %v", err)
	}

	queries := []string{
		"What were our total sales last quarter, and how did they trend month over month?",
		"Which product category drove most of that growth?",
	}

	for _, q := range queries {
		fmt.Printf("\nUser: %s\n", q)
		answer, err := agent.Invoke(ctx, q)
		if err != nil {
			log.Fatalf("Turn failed: %v", err)
		}
		fmt.Printf("Agent: %s\n", answer)
	}
}
