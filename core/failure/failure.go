package failure

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/zeebo/errs"
)

// Class is the retry classification of an error.
type Class string

const (
	// Temporary errors may succeed when the message is redelivered.
	Temporary Class = "temporary"
	// Permanent errors will fail again on redelivery.
	Permanent Class = "permanent"
)

var (
	// InvalidKeyFormat is raised when a key does not start with the batch source.
	InvalidKeyFormat = errs.Class("invalid key format")

	// StorageTransient marks retryable object store failures.
	StorageTransient = errs.Class("storage transient")
	// StoragePermanent marks non-retryable object store failures.
	StoragePermanent = errs.Class("storage permanent")

	// BrokerTransient marks retryable broker failures.
	BrokerTransient = errs.Class("broker transient")
	// BrokerPermanent marks non-retryable broker failures.
	BrokerPermanent = errs.Class("broker permanent")

	// HandlerValidation is raised by handlers when the input is not the expected shape.
	HandlerValidation = errs.Class("handler validation")
	// HandlerTransient is raised by handlers for conditions worth retrying.
	HandlerTransient = errs.Class("handler transient")
	// HandlerUnclassified wraps handler errors and panics that carry no class.
	HandlerUnclassified = errs.Class("handler")
)

// permanentClasses are checked before temporaryClasses so that an error
// tagged both ways fails fast.
var permanentClasses = []*errs.Class{
	&InvalidKeyFormat,
	&StoragePermanent,
	&BrokerPermanent,
	&HandlerValidation,
}

var temporaryClasses = []*errs.Class{
	&StorageTransient,
	&BrokerTransient,
	&HandlerTransient,
}

// Classify maps err to a Class. It is total: untagged and unrecognized
// errors are Permanent.
func Classify(err error) Class {
	if err == nil {
		return Permanent
	}

	for _, class := range permanentClasses {
		if class.Has(err) {
			return Permanent
		}
	}
	for _, class := range temporaryClasses {
		if class.Has(err) {
			return Temporary
		}
	}

	if isTransient(err) {
		return Temporary
	}
	return Permanent
}

// Retryable tags err as a temporary handler failure.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return HandlerTransient.Wrap(err)
}

// Validation returns a permanent handler failure.
func Validation(format string, args ...any) error {
	return HandlerValidation.New(format, args...)
}

// isTransient recognizes untagged errors that are retryable by nature.
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EPIPE) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var tagged interface{ Temporary() bool }
	if errors.As(err, &tagged) && tagged.Temporary() {
		return true
	}

	return false
}
