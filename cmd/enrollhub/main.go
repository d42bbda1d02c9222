package main

import (
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/launchpadhq/enrollhub/app/repository"
	"github.com/launchpadhq/enrollhub/internal/pkg/cache"
	"github.com/launchpadhq/enrollhub/internal/pkg/database"
	"github.com/launchpadhq/enrollhub/internal/pkg/env"
	"github.com/launchpadhq/enrollhub/internal/pkg/reconcile"
	"github.com/launchpadhq/enrollhub/internal/pkg/router"
)

func main() {
	app := NewApplication()

	monitor := reconcile.GetMonitor()
	monitor.Start(reconcileInterval())
	defer monitor.Stop()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()
	repository.InitializeFactory(database.GetDB())

	app := fiber.New(fiber.Config{
		BodyLimit: 1 << 20, // webhook payloads are small; 1 MiB is generous
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// ROUTER
	router.InstallRouter(app)

	return app
}

func reconcileInterval() time.Duration {
	minutes, err := strconv.Atoi(env.GetEnv("RECONCILE_INTERVAL_MINUTES", "15"))
	if err != nil || minutes <= 0 {
		minutes = 15
	}
	return time.Duration(minutes) * time.Minute
}
