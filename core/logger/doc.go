// Package logger builds the zap logger shared by the consumer, the status
// API and the CLI.
//
// WithBatch tags entries written while a change batch is processed with its
// batch id and topic. WithRayID tags entries of a status API request with
// the ray_id set by the request id middleware.
//
//	log, _ := logger.New(&logger.Config{Level: "info", Format: "console"})
//	l := logger.WithBatch(log, batch.ID, delivery.Topic())
//	l.Info("Batch reconciled")
package logger
