package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// HealthHandler exposes liveness (/health) and readiness (/ready)
// probes over the mirror store's three backing stores, grounded on
// worker_health.go's ping-and-report shape.
type HealthHandler struct {
	db    *sqlx.DB
	redis *redis.Client
	mongo *mongo.Client
}

func NewHealthHandler(db *sqlx.DB, redis *redis.Client, mongoClient *mongo.Client) *HealthHandler {
	return &HealthHandler{db: db, redis: redis, mongo: mongoClient}
}

func (h *HealthHandler) Register(app *fiber.App) {
	app.Get("/health", h.Health)
	app.Get("/ready", h.Ready)
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allHealthy := true

	check := func(name string, ping func() error) {
		if ping == nil {
			checks[name] = "not configured"
			return
		}
		if err := ping(); err != nil {
			checks[name] = "unhealthy: " + err.Error()
			allHealthy = false
			return
		}
		checks[name] = "healthy"
	}

	if h.db != nil {
		check("postgres", func() error { return h.db.PingContext(ctx) })
	} else {
		check("postgres", nil)
	}
	if h.redis != nil {
		check("redis", func() error { return h.redis.Ping(ctx).Err() })
	} else {
		check("redis", nil)
	}
	if h.mongo != nil {
		check("mongodb", func() error { return h.mongo.Ping(ctx, nil) })
	} else {
		check("mongodb", nil)
	}

	status := "ready"
	statusCode := fiber.StatusOK
	if !allHealthy {
		status = "not ready"
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
