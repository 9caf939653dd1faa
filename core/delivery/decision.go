package delivery

import (
	"errors"
	"fmt"
)

const (
	// PolicyAbort stops the consumer on a permanent failure.
	PolicyAbort = "abort"
	// PolicyDeadLetter reports permanent failures to the failure topic and
	// moves on.
	PolicyDeadLetter = "dead-letter"
)

// ErrPermanentFailure is returned by Run when a batch contains a permanent
// failure under PolicyAbort.
var ErrPermanentFailure = errors.New("permanent failure in batch")

// ValidPolicy reports whether policy is a known permanent failure policy.
func ValidPolicy(policy string) bool {
	return policy == PolicyAbort || policy == PolicyDeadLetter
}

// Verdict is what to do with a delivery.
type Verdict struct {
	// Ack acknowledges the message; otherwise it is negatively acknowledged.
	Ack bool
	// DeadLetter publishes the failure report before settling.
	DeadLetter bool
	// Abort stops the consumer after settling.
	Abort bool
}

func (v Verdict) String() string {
	action := "nack"
	if v.Ack {
		action = "ack"
	}
	if v.DeadLetter {
		action += "+dead-letter"
	}
	if v.Abort {
		action += "+abort"
	}
	return action
}

// Decide applies the decision rule to the failure classes present in a
// batch.
func Decide(temporary, permanent bool, policy string) Verdict {
	switch {
	case permanent && policy == PolicyDeadLetter:
		return Verdict{Ack: !temporary, DeadLetter: true}
	case permanent:
		return Verdict{Abort: true}
	case temporary:
		return Verdict{}
	default:
		return Verdict{Ack: true}
	}
}

func normalizePolicy(policy string) (string, error) {
	if policy == "" {
		return PolicyAbort, nil
	}
	if !ValidPolicy(policy) {
		return "", fmt.Errorf("unknown permanent failure policy %q", policy)
	}
	return policy, nil
}
