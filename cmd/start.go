package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"catalogue-ingester/core/broker"
	"catalogue-ingester/core/config"
	"catalogue-ingester/core/database"
	"catalogue-ingester/core/delivery"
	"catalogue-ingester/core/ledger"
	"catalogue-ingester/core/loader"
	"catalogue-ingester/core/logger"
	"catalogue-ingester/core/middleware/auth"
	"catalogue-ingester/core/middleware/rayid"
	"catalogue-ingester/core/reconcile"
	"catalogue-ingester/core/storage"
	"catalogue-ingester/feature/status"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start consuming catalogue changes",
	Long: `Connects to the broker and processes change batches until interrupted.
Optionally records failed keys in a database and serves a status API.`,
	RunE: runStart,
}

func init() {
	RootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	// 1. Load Configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// 2. Initialize Logger
	logg, err := logger.New(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logg.Sync()
	zap.ReplaceGlobals(logg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Initialize Storage
	client, err := storage.NewClient(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to create storage client: %w", err)
	}
	if err := storage.EnsureBucket(ctx, client, cfg.Storage.Bucket, cfg.Storage.Region, cfg.Storage.CreateBucket); err != nil {
		return err
	}
	store := storage.NewStore(client)

	// 4. Connect to Broker
	routes, err := cfg.Ingest.Routes()
	if err != nil {
		return err
	}
	topics := make([]string, 0, len(routes))
	for topic := range routes {
		topics = append(topics, topic)
	}
	sort.Strings(topics)

	consumer, publisher, err := broker.New(ctx, cfg.Broker, topics, logg)
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}
	defer publisher.Close()
	defer consumer.Close()

	// 5. Bind Handlers
	reconcilers := make(map[string]delivery.Reconciler, len(routes))
	for _, topic := range topics {
		handler, err := newHandler(routes[topic], logg)
		if err != nil {
			return err
		}
		reconcilers[topic] = reconcile.NewReconciler(handler, store, publisher, reconcile.Options{
			OutputBucket: cfg.Storage.Bucket,
			OutputTopic:  cfg.Broker.OutputTopic,
			Workers:      cfg.Ingest.Workers,
		}, logg.With(zap.String("topic", topic)))
	}

	// 6. Failure Ledger (Optional)
	var recorder delivery.FailureRecorder
	var failures status.FailureSource
	if cfg.Database.Enabled {
		if db, err := database.Connect(cfg.Database); err != nil {
			logg.Warn("Optional database connection failed, failure ledger disabled", zap.Error(err))
		} else {
			l := ledger.New(db)
			if err := l.Migrate(ctx); err != nil {
				return err
			}
			recorder, failures = l, l
			logg.Info("Failure ledger enabled", zap.String("database", cfg.Database.Name))
		}
	}

	// 7. Controller
	ctrl, err := delivery.NewController(consumer, publisher, reconcilers, delivery.Options{
		Policy:       cfg.Ingest.PermanentFailurePolicy,
		FailureTopic: cfg.Broker.FailureTopic,
		Recorder:     recorder,
	}, logg)
	if err != nil {
		return err
	}

	// 8. Status Server (Optional)
	if cfg.Server.Enabled {
		app := newStatusApp(cfg, ctrl.Stats(), failures, topics, logg)
		go func() {
			logg.Info("Starting status server", zap.String("port", cfg.Server.Port))
			if err := app.Listen(cfg.Server.Addr()); err != nil {
				logg.Error("Status server stopped", zap.Error(err))
			}
		}()
		defer app.Shutdown()
	}

	// 9. Consume until interrupted
	if err := ctrl.Run(ctx); err != nil {
		if delivery.IsPermanentFailure(err) {
			logg.Error("Stopping on permanent failure", zap.Error(err))
		}
		return err
	}

	logg.Info("Shutting down")
	return nil
}

// newStatusApp builds the fiber app serving the status feature.
func newStatusApp(cfg *config.Config, stats status.StatsSource, failures status.FailureSource, topics []string, logg *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	// RayID first so every log line below carries it.
	app.Use(rayid.New())

	app.Use(func(c *fiber.Ctx) error {
		l := logger.WithRayID(logg, c)
		l.Debug("Request started",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.String("ip", c.IP()),
		)
		err := c.Next()
		if err != nil {
			l.Error("Request error", zap.Error(err))
		}
		return err
	})

	app.Use(auth.New(auth.Config{ApiKey: cfg.Server.ApiKey, Public: []string{status.HealthPath}}))

	mgr := loader.NewManager()
	mgr.Register(status.NewFeature(stats, failures, topics, cfg.Ingest.PermanentFailurePolicy, logg))

	loaded, err := mgr.LoadAll(app)
	if err != nil {
		logg.Error("Failed to load features", zap.Error(err))
	}
	logg.Debug("Features loaded", zap.Strings("features", loaded))

	return app
}
