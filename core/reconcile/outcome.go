package reconcile

import (
	"sort"
	"sync"

	"catalogue-ingester/core/failure"
)

// FailedKey is one entry of an Outcome's failure buckets.
type FailedKey struct {
	// Key is the original, untransformed key.
	Key string `json:"key"`

	// ChangeType is the key set the key came from.
	ChangeType ChangeType `json:"change_type"`

	// Class is the failure classification.
	Class failure.Class `json:"class"`

	// Reason is the error message that failed the key.
	Reason string `json:"reason"`
}

// Summary provides aggregate counts for an Outcome.
type Summary struct {
	Added     int `json:"added"`
	Updated   int `json:"updated"`
	Deleted   int `json:"deleted"`
	Skipped   int `json:"skipped"`
	Temporary int `json:"temporary"`
	Permanent int `json:"permanent"`
}

// Outcome records what happened to every key of one batch. It is safe for
// concurrent use; readers should wait until all keys are recorded.
type Outcome struct {
	mu      sync.Mutex
	applied map[ChangeType]map[string]struct{}
	skipped map[ChangeType]map[string]struct{}
	failed  map[failure.Class]map[ChangeType]map[string]string
}

// NewOutcome creates an empty Outcome.
func NewOutcome() *Outcome {
	o := &Outcome{
		applied: make(map[ChangeType]map[string]struct{}),
		skipped: make(map[ChangeType]map[string]struct{}),
		failed: map[failure.Class]map[ChangeType]map[string]string{
			failure.Temporary: {},
			failure.Permanent: {},
		},
	}
	for _, ct := range ChangeTypes {
		o.applied[ct] = make(map[string]struct{})
		o.skipped[ct] = make(map[string]struct{})
		o.failed[failure.Temporary][ct] = make(map[string]string)
		o.failed[failure.Permanent][ct] = make(map[string]string)
	}
	return o
}

// RecordApplied records an output path written or deleted by a successful key.
func (o *Outcome) RecordApplied(changeType ChangeType, key string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.applied[changeType][key] = struct{}{}
}

// RecordSkipped records an original key whose handler asked for no action.
func (o *Outcome) RecordSkipped(changeType ChangeType, key string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.skipped[changeType][key] = struct{}{}
}

// RecordFailure records an original key that failed with class.
func (o *Outcome) RecordFailure(class failure.Class, changeType ChangeType, key, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed[class][changeType][key] = reason
}

// Applied returns the sorted output paths applied for changeType.
func (o *Outcome) Applied(changeType ChangeType) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return sortedKeys(o.applied[changeType])
}

// Skipped returns the sorted original keys skipped for changeType.
func (o *Outcome) Skipped(changeType ChangeType) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return sortedKeys(o.skipped[changeType])
}

// Failed returns the sorted original keys that failed with class for changeType.
func (o *Outcome) Failed(class failure.Class, changeType ChangeType) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return sortedKeys(o.failed[class][changeType])
}

// Failures returns every failed key, permanent first, then by change type
// and key.
func (o *Outcome) Failures() []FailedKey {
	o.mu.Lock()
	defer o.mu.Unlock()

	var out []FailedKey
	for _, class := range []failure.Class{failure.Permanent, failure.Temporary} {
		for _, ct := range ChangeTypes {
			reasons := o.failed[class][ct]
			for _, key := range sortedKeys(reasons) {
				out = append(out, FailedKey{Key: key, ChangeType: ct, Class: class, Reason: reasons[key]})
			}
		}
	}
	return out
}

// HasFailures reports whether any key failed with class.
func (o *Outcome) HasFailures(class failure.Class) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, keys := range o.failed[class] {
		if len(keys) > 0 {
			return true
		}
	}
	return false
}

// HasApplied reports whether any key was applied.
func (o *Outcome) HasApplied() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, keys := range o.applied {
		if len(keys) > 0 {
			return true
		}
	}
	return false
}

// Summary returns aggregate counts.
func (o *Outcome) Summary() Summary {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := Summary{
		Added:   len(o.applied[Added]),
		Updated: len(o.applied[Updated]),
		Deleted: len(o.applied[Deleted]),
	}
	for _, ct := range ChangeTypes {
		s.Skipped += len(o.skipped[ct])
		s.Temporary += len(o.failed[failure.Temporary][ct])
		s.Permanent += len(o.failed[failure.Permanent][ct])
	}
	return s
}

// OutboundBatch builds the change message describing the applied keys.
// The keys now live in bucket.
func (o *Outcome) OutboundBatch(in *ChangeBatch, bucket string) *ChangeBatch {
	out := &ChangeBatch{
		ID:         in.ID,
		Workspace:  in.Workspace,
		BucketName: bucket,
		Source:     in.Source,
		Target:     in.Target,
	}
	for _, ct := range ChangeTypes {
		out.set(ct, o.Applied(ct))
	}
	return out
}

// FailureReport builds the change message describing the failed keys.
// The key sets carry the original keys, so the report keeps the inbound
// bucket.
func (o *Outcome) FailureReport(in *ChangeBatch) *ChangeBatch {
	report := &ChangeBatch{
		ID:          in.ID,
		Workspace:   in.Workspace,
		BucketName:  in.BucketName,
		Source:      in.Source,
		Target:      in.Target,
		FailedFiles: &FailedFiles{},
	}
	for _, ct := range ChangeTypes {
		report.set(ct, []string{})
		report.FailedFiles.Temporary.set(ct, o.Failed(failure.Temporary, ct))
		report.FailedFiles.Permanent.set(ct, o.Failed(failure.Permanent, ct))
	}
	return report
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
