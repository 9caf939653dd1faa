// Package database handles the MySQL connection used by the failure ledger.
//
// It provides a wrapper around GORM (Go Object Relational Mapping) to properly configure
// MySQL connections based on the application's configuration.
//
// # Connect
//
// Connect builds the DSN with connection, read and write timeouts, sets the
// pool limits and pings the server before returning. The database is optional:
// callers log the error and continue without a ledger.
//
// # Usage
//
//	db, err := database.Connect(cfg.Database)
//	if err != nil {
//	    log.Warn("Failure ledger disabled", zap.Error(err))
//	}
package database
