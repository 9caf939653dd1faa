// Package ledger keeps an audit trail of failed keys in MySQL.
//
// Every key that fails while a batch is reconciled is stored as one
// failed_keys row with its batch id, topic, change type, failure class and
// reason. The ledger is write-only for the consumer; operators read it
// through the status API (GET /status/failures) or directly in the database.
// Ledger errors are logged by the caller and never change how a message is
// acknowledged.
package ledger
