package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"alfredoptarigan/candidate-screener/internal/handlers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the job runner and the notification consumer",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	c, err := wire(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize", zap.Error(err))
		return err
	}
	defer c.close()

	c.worker.Start(ctx)
	defer c.worker.Stop()

	go func() {
		if err := c.consumeNotifications(ctx); err != nil {
			log.Error("notification consumer stopped", zap.Error(err))
		}
	}()

	dispatcher := handlers.NewAsyncDispatcher(ctx, c.resume, c.submission, log)
	defer dispatcher.Wait()

	app := fiber.New(fiber.Config{
		AppName:      "Candidate Screener API",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute,
		BodyLimit:    int(cfg.Storage.MaxFileSize),
		ErrorHandler: handlers.ErrorHandler,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	if cfg.Server.RequestsPerMinute > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:        cfg.Server.RequestsPerMinute,
			Expiration: time.Minute,
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "too many requests"})
			},
		}))
	}

	handlers.Register(app,
		handlers.NewEventHandler(c.resume, c.submission, c.completion),
		handlers.NewUploadHandler(c.storage, dispatcher, cfg.Storage.ResumeBucket, cfg.Storage.VideoBucket, cfg.Storage.MaxFileSize, log),
		handlers.NewResultHandler(c.analysisRepo, c.index, c.storage, log),
		handlers.NewObjectHandler(c.storage),
	)

	go func() {
		<-ctx.Done()
		log.Info("shutting down server")
		if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Error("server forced to shutdown", zap.Error(err))
		}
	}()

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	log.Info("server starting", zap.String("addr", addr), zap.String("public_url", cfg.BaseURL()))
	if err := app.Listen(addr); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}
