package server

import "strconv"

// Config holds configuration for the HTTP status server.
type Config struct {
	// Enabled starts the status server next to the consumer.
	Enabled bool `mapstructure:"enabled" default:"false"`
	// Port is the port where the server will listen.
	Port string `mapstructure:"port" default:"8080"`
	// ApiKey is the secret key required to access the API. Empty disables auth.
	ApiKey string `mapstructure:"api_key" default:""`
}

// IsValidPort checks that Port is a TCP port number.
func (c Config) IsValidPort() bool {
	port, err := strconv.Atoi(c.Port)
	return err == nil && port > 0 && port < 65536
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return ":" + c.Port
}
