package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"student-tracker/config"
	"student-tracker/handlers"
	"student-tracker/middleware"
	"student-tracker/services"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found")
	}

	// Initialize structured logger
	logHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(logHandler))

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize MongoDB
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := services.InitMongoDB(ctx, cfg.MongoURI)
	if err != nil {
		slog.Error("Failed to connect to MongoDB", "error", err)
		os.Exit(1)
	}
	defer db.Disconnect(ctx)

	// Initialize services
	services.InitServices(db, cfg.DatabaseName)

	// Bootstrap the first admin account if configured
	if err := services.EnsureAdminUser(ctx, os.Getenv("ADMIN_EMAIL"), os.Getenv("ADMIN_PASSWORD")); err != nil {
		slog.Error("Failed to ensure admin user", "error", err)
		// Continue anyway - existing deployments already have users
	}

	// Construct the record store adapter
	store := services.NewSheetStore(services.GetDatabase(), cfg.SheetCollection, cfg.FieldNames)
	if err := store.CreateSheetIndexes(ctx); err != nil {
		slog.Error("Failed to create sheet indexes", "error", err)
		// Continue anyway - the app can still work without indexes
	}

	// Load the branch directory once per process lifetime
	directory, err := services.LoadDirectory(cfg.BranchDirectoryFile)
	if err != nil {
		slog.Error("Branch directory unavailable, lookups disabled", "error", err)
		directory = services.NewDirectory(nil)
	}

	// Wire handlers to their collaborators
	engine := services.NewEngine(cfg.RequiredFields, cfg.InactiveThresholdDays)
	notifier := services.NewSMTPNotifier(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
	handlers.Configure(store, engine, directory, notifier, cfg)

	// Start session cleanup
	cleanupCtx, cancelCleanup := context.WithCancel(context.Background())
	defer cancelCleanup()
	services.StartSessionCleanup(cleanupCtx)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			slog.Error("Request error", "error", err, "status", code)
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(recover.New())

	// CORS configuration - Allow frontend development server
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:5173, http://localhost:3000",
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With",
		AllowCredentials: true,
		ExposeHeaders:    "Content-Length, Content-Type",
		MaxAge:           86400, // 24 hours
	}))

	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path}\n",
	}))

	auth := app.Group("/auth")
	auth.Post("/login", handlers.Login)
	auth.Post("/logout", handlers.Logout)
	auth.Get("/me", handlers.GetCurrentUser)
	auth.Get("/check", handlers.CheckSession)

	// Admin routes (protected, admin only)
	admin := app.Group("/admin", middleware.RequireAuth, middleware.RequireAdmin)
	admin.Post("/users", handlers.CreateUser)
	admin.Get("/users", handlers.GetUsers)
	admin.Put("/users/:userID/role", handlers.UpdateUserRole)

	// Tracker API endpoints (protected)
	tracker := app.Group("/api/tracker", middleware.RequireAuth)
	tracker.Get("/records", handlers.GetRecords)
	tracker.Get("/suggestions", handlers.GetSuggestions)
	tracker.Post("/updates", handlers.SubmitUpdate)
	tracker.Get("/alerts", handlers.GetAlerts)
	tracker.Post("/alerts/notify", handlers.NotifyInactive)

	// WebSocket endpoint (requires authentication)
	tracker.Get("/ws", handlers.WebSocketUpgrade, websocket.New(handlers.HandleWebSocket))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "student-tracker",
		})
	})

	// Start server
	slog.Info("Server starting", "port", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		slog.Error("Server failed to start", "error", err)
		os.Exit(1)
	}
}
