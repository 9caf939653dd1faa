package config

import (
	"fmt"
	"reflect"
	"strings"

	"catalogue-ingester/core/broker"
	"catalogue-ingester/core/database"
	"catalogue-ingester/core/delivery"
	"catalogue-ingester/core/logger"
	"catalogue-ingester/core/server"
	"catalogue-ingester/core/storage"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// It is divided into partial configurations for better modularity.
type Config struct {
	// Log holds configuration for the logger.
	Log logger.Config `mapstructure:"log"`
	// Storage holds configuration for the object storage (e.g., S3, Minio).
	Storage storage.Config `mapstructure:"storage"`
	// Broker holds configuration for the message broker.
	Broker broker.Config `mapstructure:"broker"`
	// Ingest holds configuration for topic routing and batch processing.
	Ingest delivery.Config `mapstructure:"ingest"`
	// Server holds configuration for the HTTP status server.
	Server server.Config `mapstructure:"server"`
	// Database holds configuration for the failure ledger database.
	Database database.Config `mapstructure:"database"`
}

// Validate checks the settings that have a fixed set of valid values.
func (c *Config) Validate() error {
	switch c.Broker.Driver {
	case broker.DriverAMQP:
	case broker.DriverPubSub:
		if c.Broker.ProjectID == "" {
			return fmt.Errorf("broker.project_id is required for the %s driver", broker.DriverPubSub)
		}
	default:
		return fmt.Errorf("unknown broker.driver %q", c.Broker.Driver)
	}

	if _, err := c.Ingest.Routes(); err != nil {
		return fmt.Errorf("ingest.topics: %w", err)
	}
	if !delivery.ValidPolicy(c.Ingest.PermanentFailurePolicy) {
		return fmt.Errorf("unknown ingest.permanent_failure_policy %q", c.Ingest.PermanentFailurePolicy)
	}
	if c.Ingest.PermanentFailurePolicy == delivery.PolicyDeadLetter && c.Broker.FailureTopic == "" {
		return fmt.Errorf("ingest.permanent_failure_policy %s requires broker.failure_topic", delivery.PolicyDeadLetter)
	}
	if c.Ingest.Workers < 1 {
		return fmt.Errorf("ingest.workers must be at least 1")
	}

	if c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required")
	}
	if c.Server.Enabled && !c.Server.IsValidPort() {
		return fmt.Errorf("invalid server.port %q", c.Server.Port)
	}
	return nil
}

// LoadConfig loads configuration from environment variables and .env file.
func LoadConfig(path string) (*Config, error) {
	// 1. Load .env file if it exists
	envPath := path + "/.env"
	if path == "." {
		envPath = ".env"
	}

	// Ignore error if file doesn't exist (e.g. production)
	_ = godotenv.Overload(envPath)

	v := viper.New()

	// Recursively parse struct tags to set default values
	bindValues(v, Config{}, "")

	// Map environment variables to nested keys (e.g. BROKER_OUTPUT_TOPIC -> broker.output_topic)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// bindValues uses reflection to iterate over the struct and set default values in Viper
// based on the 'default' and 'mapstructure' tags.
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)

	// If it's a pointer, get the element
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")

		// Skip if no tag
		if tag == "" {
			continue
		}

		// Build the key
		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		// If it's a nested struct, recurse
		if field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}

		defaultValue := field.Tag.Get("default")
		// Always set default (even if empty) to register the key for AutomaticEnv
		v.SetDefault(key, defaultValue)
	}
}
