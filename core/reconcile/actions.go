package reconcile

// DefaultContentType is used for writes that name no content type.
const DefaultContentType = "application/json"

// Action is one side effect returned by a Handler. The set of actions is
// closed; only the types in this file implement it.
type Action interface {
	action()
}

// StorageWrite writes Body to Key.
type StorageWrite struct {
	// Bucket defaults to the output bucket when empty.
	Bucket string
	Key    string
	Body   []byte
	// ContentType defaults to DefaultContentType when empty.
	ContentType  string
	CacheControl string
}

// StorageDelete removes Key.
type StorageDelete struct {
	// Bucket defaults to the output bucket when empty.
	Bucket string
	Key    string
}

// ChangeEmit writes Body to Path in the output bucket and announces Path in
// the outbound batch under the key's change type. A nil Body deletes Path
// and announces it as deleted.
type ChangeEmit struct {
	Path string
	Body []byte
	// ContentType defaults to DefaultContentType when empty.
	ContentType string
}

// MessageEmit publishes Body to Topic without touching storage.
type MessageEmit struct {
	Topic string
	Body  []byte
}

// Failure marks the key as failed without an error value. Actions after it
// are not executed.
type Failure struct {
	Key       string
	Permanent bool
	Reason    string
}

func (StorageWrite) action()  {}
func (StorageDelete) action() {}
func (ChangeEmit) action()    {}
func (MessageEmit) action()   {}
func (Failure) action()       {}
