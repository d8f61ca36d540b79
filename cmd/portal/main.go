package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	portal "github.com/olympiadhub/go-portal"
	"github.com/olympiadhub/go-portal/middleware/sessionguard"
)

func main() {
	cfg, err := portal.LoadConfig("portal.yaml", "config/portal.yaml")
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	creds, err := cfg.NewCredentialStore()
	if err != nil {
		log.Fatalf("credential store: %v", err)
	}

	client := portal.NewClient(cfg.Backend.URL, creds).
		WithHTTPClient(&http.Client{Timeout: cfg.Backend.Timeout}).
		WithDebug(cfg.Debug)

	store := portal.NewSessionStore(client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Validate any stored credential before the first guarded request.
	go store.Bootstrap(ctx)

	app := fiber.New(fiber.Config{
		AppName:      "olympiad-portal",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	})

	authGuard := sessionguard.New(sessionguard.Config{
		Store: store,
		Guard: portal.RequireAuthenticated(),
	})
	adminGuard := sessionguard.New(sessionguard.Config{
		Store: store,
		Guard: portal.RequireRole(portal.RoleAdministrator),
	})

	controller := portal.NewSessionController(store,
		portal.WithControllerDebug(cfg.Debug),
	)
	controller.RegisterRoutes(app, authGuard, adminGuard)

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "session": store.State()})
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Listen); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	if err := app.ShutdownWithTimeout(5 * time.Second); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
