package reconcile

import (
	"encoding/json"
	"fmt"
)

// ChangeType identifies which key set of a ChangeBatch a key came from.
type ChangeType string

const (
	// Added keys are new in the source area.
	Added ChangeType = "added"
	// Updated keys changed in the source area.
	Updated ChangeType = "updated"
	// Deleted keys were removed from the source area.
	Deleted ChangeType = "deleted"
)

// ChangeTypes lists the change types in processing order.
var ChangeTypes = []ChangeType{Added, Updated, Deleted}

// KeySets holds the three key lists of a change message.
type KeySets struct {
	// AddedKeys are keys that were created.
	AddedKeys []string `json:"added_keys"`

	// UpdatedKeys are keys whose content changed.
	UpdatedKeys []string `json:"updated_keys"`

	// DeletedKeys are keys that were removed.
	DeletedKeys []string `json:"deleted_keys"`
}

// Keys returns the key list for changeType.
func (k KeySets) Keys(changeType ChangeType) []string {
	switch changeType {
	case Added:
		return k.AddedKeys
	case Updated:
		return k.UpdatedKeys
	case Deleted:
		return k.DeletedKeys
	default:
		return nil
	}
}

// Len returns the total number of keys.
func (k KeySets) Len() int {
	return len(k.AddedKeys) + len(k.UpdatedKeys) + len(k.DeletedKeys)
}

func (k *KeySets) set(changeType ChangeType, keys []string) {
	switch changeType {
	case Added:
		k.AddedKeys = keys
	case Updated:
		k.UpdatedKeys = keys
	case Deleted:
		k.DeletedKeys = keys
	}
}

// FailedFiles is the failure section of a failure report.
type FailedFiles struct {
	// Temporary holds original keys that may succeed on redelivery.
	Temporary KeySets `json:"temp_failed_keys"`

	// Permanent holds original keys that will fail again.
	Permanent KeySets `json:"perm_failed_keys"`
}

// ChangeBatch is one catalogue change message. The same shape is used for
// inbound messages, outbound messages and failure reports.
type ChangeBatch struct {
	// ID is an optional correlation id set by the producer.
	ID string `json:"id,omitempty"`

	// Workspace is the optional workspace the change belongs to.
	Workspace string `json:"workspace,omitempty"`

	// BucketName is the storage area the keys live in.
	BucketName string `json:"bucket_name"`

	// Source is the path prefix of the producing pipeline stage.
	Source string `json:"source"`

	// Target is the path prefix this stage writes under.
	Target string `json:"target"`

	KeySets

	// FailedFiles is only set on failure reports.
	FailedFiles *FailedFiles `json:"failed_files,omitempty"`
}

// DecodeChangeBatch parses a JSON change message.
func DecodeChangeBatch(data []byte) (*ChangeBatch, error) {
	var batch ChangeBatch
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("failed to decode change batch: %w", err)
	}
	if batch.BucketName == "" {
		return nil, fmt.Errorf("change batch has no bucket_name")
	}
	return &batch, nil
}
