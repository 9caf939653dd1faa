// Package config provides configuration management for the catalogue ingester.
//
// It loads an optional .env file with godotenv and then reads environment
// variables through Viper. Defaults come from the `default` struct tags of
// every section, so each key is registered and can be overridden by its
// environment variable (storage.bucket -> STORAGE_BUCKET).
//
// # Configuration Structure
//
// The Config struct is the central repository for all application settings, divided into subsections:
//   - Log: Logging level and format
//   - Storage: S3/MinIO credentials and the output bucket
//   - Broker: driver (amqp, pubsub), connection and output/failure topics
//   - Ingest: topic to handler routes, worker count, permanent failure policy
//   - Server: status API settings (enabled, port, API key)
//   - Database: MySQL connection details for the failure ledger
//
// # Usage
//
//	cfg, err := config.LoadConfig(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config
