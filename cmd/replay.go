package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"catalogue-ingester/core/broker"
	"catalogue-ingester/core/config"
	"catalogue-ingester/core/logger"
	"catalogue-ingester/core/reconcile"
	"catalogue-ingester/core/storage"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Flags for replay command
	replayTopic   string
	replayHandler string
)

// replayCmd runs a saved change batch through a handler.
var replayCmd = &cobra.Command{
	Use:   "replay <file>",
	Short: "Process a saved change batch against live storage",
	Long: `Reads one change batch (the JSON body of a broker message) from a file and
processes it as the consumer would. Storage actions are applied; broker
messages are logged instead of published. The outcome is printed as JSON.

Examples:
  # Use the handler routed to a topic in ingest.topics
  replay batch.json --topic transformed

  # Pick the handler directly
  replay batch.json --handler copy`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().StringVar(&replayTopic, "topic", "", "Topic whose handler processes the batch (default: first routed topic)")
	replayCmd.Flags().StringVar(&replayHandler, "handler", "", "Handler name, overrides --topic")

	RootCmd.AddCommand(replayCmd)
}

// replayResult is the printed outcome of a replay.
type replayResult struct {
	Summary  reconcile.Summary      `json:"summary"`
	Applied  reconcile.KeySets      `json:"applied"`
	Failures []reconcile.FailedKey  `json:"failures"`
	Report   *reconcile.ChangeBatch `json:"failure_report,omitempty"`
}

func runReplay(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	// Load configuration
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	l, err := logger.New(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer l.Sync()

	body, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read batch: %w", err)
	}
	batch, err := reconcile.DecodeChangeBatch(body)
	if err != nil {
		return err
	}

	name, err := resolveHandlerName(cfg, replayTopic, replayHandler)
	if err != nil {
		return err
	}
	handler, err := newHandler(name, l)
	if err != nil {
		return err
	}

	// Connect to storage
	client, err := storage.NewClient(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to connect to storage: %w", err)
	}

	r := reconcile.NewReconciler(handler, storage.NewStore(client), broker.NewLogPublisher(l), reconcile.Options{
		OutputBucket: cfg.Storage.Bucket,
		OutputTopic:  cfg.Broker.OutputTopic,
		Workers:      cfg.Ingest.Workers,
	}, l)

	l.Info("Replaying batch", zap.String("file", args[0]), zap.String("handler", name), zap.Int("keys", batch.Len()))
	outcome, err := r.Reconcile(ctx, batch)
	if err != nil {
		l.Warn("Outbound message not published", zap.Error(err))
	}

	return printReplay(cmd.OutOrStdout(), batch, cfg.Storage.Bucket, outcome)
}

// resolveHandlerName picks the handler from the flags and the configured routes.
func resolveHandlerName(cfg *config.Config, topic, handler string) (string, error) {
	if handler != "" {
		return handler, nil
	}

	routes, err := cfg.Ingest.Routes()
	if err != nil {
		return "", err
	}
	if topic == "" {
		topics := make([]string, 0, len(routes))
		for t := range routes {
			topics = append(topics, t)
		}
		sort.Strings(topics)
		topic = topics[0]
	}

	name, ok := routes[topic]
	if !ok {
		return "", fmt.Errorf("topic %q is not routed in ingest.topics", topic)
	}
	return name, nil
}

func printReplay(w io.Writer, batch *reconcile.ChangeBatch, bucket string, outcome *reconcile.Outcome) error {
	result := replayResult{
		Summary:  outcome.Summary(),
		Applied:  outcome.OutboundBatch(batch, bucket).KeySets,
		Failures: outcome.Failures(),
	}
	if len(result.Failures) > 0 {
		result.Report = outcome.FailureReport(batch)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
