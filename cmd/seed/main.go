package main

import (
	"context"
	"flag"
	"log"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"flowstudio/backend/internal/config"
	"flowstudio/backend/internal/logging"
	"flowstudio/backend/internal/migrations"
	"flowstudio/backend/internal/repository"
	"flowstudio/backend/pkg/models"
)

func main() {
	ctx := context.Background()
	logger := logging.NewLogger(slog.LevelInfo)

	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := migrations.Run(cfg.DatabaseURL()); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	pool, err := pgxpool.New(ctx, cfg.ConnString())
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pool.Close()

	store := repository.NewPostgresWorkflowStore(pool)

	// Check for existing workflows to prevent duplicates
	existing, err := store.List(ctx, 0, 500)
	if err != nil {
		log.Fatalf("Failed to list existing workflows: %v", err)
	}
	existingNames := make(map[string]bool)
	for _, wf := range existing {
		existingNames[wf.Name] = true
	}

	seeds := []models.WorkflowContent{
		{
			Name:        "Order Fulfillment",
			Description: "Routes incoming orders through payment, packing and shipping.",
			Nodes: []models.Node{
				{ID: "n1", Type: "trigger", Label: "Order received", PositionX: f(80), PositionY: f(120)},
				{ID: "n2", Type: "task", Label: "Charge payment", PositionX: f(320), PositionY: f(120)},
				{ID: "n3", Type: "task", Label: "Ship order", PositionX: f(560), PositionY: f(120)},
			},
			Edges: []models.Edge{
				{ID: "e1", Source: "n1", Target: "n2"},
				{ID: "e2", Source: "n2", Target: "n3"},
			},
			Metadata: map[string]any{"category": "commerce"},
		},
		{
			Name:        "Customer Onboarding",
			Description: "Welcome email, account provisioning and a follow-up check-in.",
			Nodes: []models.Node{
				{ID: "n1", Type: "trigger", Label: "Signup", PositionX: f(80), PositionY: f(200)},
				{ID: "n2", Type: "task", Label: "Send welcome email", PositionX: f(320), PositionY: f(200)},
			},
			Edges: []models.Edge{
				{ID: "e1", Source: "n1", Target: "n2"},
			},
			Metadata: map[string]any{"category": "crm"},
		},
		{
			Name:        "Nightly Report",
			Description: "Aggregates daily metrics and posts a summary.",
			Metadata:    map[string]any{"category": "analytics", "schedule": "0 2 * * *"},
		},
	}

	for _, content := range seeds {
		if existingNames[content.Name] {
			logger.Info("Skipping existing workflow", "name", content.Name)
			continue
		}
		wf, err := store.Create(ctx, &content, "seed", "seed-script")
		if err != nil {
			log.Printf("Failed to create workflow %s: %v", content.Name, err)
			continue
		}
		logger.Info("Seeded workflow", "name", wf.Name, "id", wf.ID, "version", wf.Version)
	}
	logger.Info("Seeding complete!")
}

func f(v float64) *float64 { return &v }
