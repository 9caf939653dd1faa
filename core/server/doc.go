// Package server holds the HTTP status server configuration.
//
// While the start command handles the server startup, this package defines the
// configuration structure and its validation.
//
// # Configuration
//
// The Config struct defines whether the status server runs, its port and the
// API key protecting it.
//
// # Usage
//
// This package is used by the core/config package to embed server settings and
// by the start command to build the Fiber listen address.
package server
