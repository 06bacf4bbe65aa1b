package bootstrap

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	mirrorhttp "mailmirror/adapter/in/http"
	"mailmirror/infra/middleware"
)

// NewAPI assembles the Fiber application for the api process mode:
// health probes and the OAuth callback route (authenticated by its CSRF
// state value) are unauthenticated, and everything else, account linking
// included, sits behind JWTAuth under /api.
func NewAPI(d *Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(),
	})

	app.Use(middleware.RequestID())
	app.Use(middleware.Recover())
	app.Use(middleware.RequestLogger())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     join(d.Config.AllowedOrigins),
		AllowCredentials: true,
	}))

	healthHandler := mirrorhttp.NewHealthHandler(d.SqlxDB, d.RedisClient, d.MongoClient)
	healthHandler.Register(app)

	accountHandler := mirrorhttp.NewAccountHandler(d.Onboarding, d.Accounting, d.Graph, d.States)
	accountHandler.RegisterPublic(app)

	api := app.Group("/api", middleware.JWTAuth(d.Config.JWTSecret))

	accountHandler.Register(api)

	emailHandler := mirrorhttp.NewEmailHandler(d.Emails)
	emailHandler.Register(api)

	searchHandler := mirrorhttp.NewSearchHandler(d.Searcher)
	searchHandler.Register(api)

	return app
}

func join(values []string) string {
	out := ""
	for i, v := range values {
		if i > 0 {
			out += ","
		}
		out += v
	}
	return out
}
