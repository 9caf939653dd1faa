package reconcile

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"catalogue-ingester/core/broker/mocks"
	"catalogue-ingester/core/failure"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type object struct {
	body         []byte
	contentType  string
	cacheControl string
}

// memStore is an in-memory storage.ObjectStore. Errors in fail are returned
// for any operation on that key.
type memStore struct {
	mu      sync.Mutex
	objects map[string]object
	fail    map[string]error
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string]object), fail: make(map[string]error)}
}

func (s *memStore) Fetch(ctx context.Context, bucket, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[key]; err != nil {
		return nil, err
	}
	obj, ok := s.objects[bucket+"/"+key]
	if !ok {
		return nil, failure.StoragePermanent.New("NoSuchKey: %s/%s", bucket, key)
	}
	return obj.body, nil
}

func (s *memStore) Put(ctx context.Context, bucket, key string, body []byte, contentType, cacheControl string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[key]; err != nil {
		return err
	}
	s.objects[bucket+"/"+key] = object{body: body, contentType: contentType, cacheControl: cacheControl}
	return nil
}

func (s *memStore) Delete(ctx context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[key]; err != nil {
		return err
	}
	delete(s.objects, bucket+"/"+key)
	return nil
}

func (s *memStore) get(bucket, key string) (object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[bucket+"/"+key]
	return obj, ok
}

func (s *memStore) snapshot() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.objects))
	for k, v := range s.objects {
		out[k] = string(v.body)
	}
	return out
}

type funcHandler struct {
	update func(body []byte, path string) ([]Action, error)
	del    func(path string) ([]Action, error)
}

func (h *funcHandler) OnUpdate(ctx context.Context, body []byte, path, source, target string) ([]Action, error) {
	return h.update(body, path)
}

func (h *funcHandler) OnDelete(ctx context.Context, path, source, target string) ([]Action, error) {
	if h.del == nil {
		return []Action{ChangeEmit{Path: path}}, nil
	}
	return h.del(path)
}

// copyHandler writes the fetched body to the transformed path.
func copyHandler() *funcHandler {
	return &funcHandler{
		update: func(body []byte, path string) ([]Action, error) {
			return []Action{StorageWrite{Key: path, Body: body}}, nil
		},
	}
}

// recordingPublisher keeps every published message.
type recordingPublisher struct {
	mu       sync.Mutex
	messages map[string][][]byte
}

func (p *recordingPublisher) Publish(ctx context.Context, topic string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.messages == nil {
		p.messages = make(map[string][][]byte)
	}
	p.messages[topic] = append(p.messages[topic], body)
	return nil
}

func (p *recordingPublisher) batches(t *testing.T, topic string) []*ChangeBatch {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*ChangeBatch
	for _, body := range p.messages[topic] {
		b, err := DecodeChangeBatch(body)
		require.NoError(t, err)
		out = append(out, b)
	}
	return out
}

const (
	inBucket  = "catalogue-population"
	outBucket = "catalogue-output"
	outTopic  = "annotations"
)

func newBatch(added, updated, deleted []string) *ChangeBatch {
	return &ChangeBatch{
		ID:         "batch-1",
		BucketName: inBucket,
		Source:     "src",
		Target:     "dst",
		KeySets:    KeySets{AddedKeys: added, UpdatedKeys: updated, DeletedKeys: deleted},
	}
}

func seed(store *memStore, keys ...string) {
	for _, key := range keys {
		store.objects[inBucket+"/"+key] = object{body: []byte(`{"key":"` + key + `"}`)}
	}
}

func newTestReconciler(h Handler, store *memStore, pub Publisher, workers int) *Reconciler {
	return NewReconciler(h, store, pub, Options{
		OutputBucket: outBucket,
		OutputTopic:  outTopic,
		Workers:      workers,
	}, zap.NewNop())
}

func TestReconcile_SingleWrite(t *testing.T) {
	store := newMemStore()
	seed(store, "src/a.json")

	pub := new(mocks.Publisher)
	pub.On("Publish", mock.Anything, outTopic, mock.MatchedBy(func(body []byte) bool {
		b, err := DecodeChangeBatch(body)
		return err == nil &&
			assert.ObjectsAreEqual([]string{"dst/a.json"}, b.AddedKeys) &&
			len(b.UpdatedKeys) == 0 && len(b.DeletedKeys) == 0 &&
			b.BucketName == outBucket && b.ID == "batch-1"
	})).Return(nil).Once()

	r := newTestReconciler(copyHandler(), store, pub, 1)
	outcome, err := r.Reconcile(context.Background(), newBatch([]string{"src/a.json"}, nil, nil))

	require.NoError(t, err)
	assert.Equal(t, []string{"dst/a.json"}, outcome.Applied(Added))
	assert.False(t, outcome.HasFailures(failure.Temporary))
	assert.False(t, outcome.HasFailures(failure.Permanent))

	obj, ok := store.get(outBucket, "dst/a.json")
	require.True(t, ok)
	assert.Equal(t, DefaultContentType, obj.contentType)
	pub.AssertExpectations(t)
}

func TestReconcile_TemporaryHandlerError(t *testing.T) {
	store := newMemStore()
	seed(store, "src/b.json")

	h := &funcHandler{update: func(body []byte, path string) ([]Action, error) {
		return nil, failure.Retryable(errors.New("upstream busy"))
	}}
	pub := new(mocks.Publisher)

	outcome, err := newTestReconciler(h, store, pub, 1).Reconcile(context.Background(), newBatch([]string{"src/b.json"}, nil, nil))

	require.NoError(t, err)
	assert.Equal(t, []string{"src/b.json"}, outcome.Failed(failure.Temporary, Added))
	assert.Empty(t, outcome.Applied(Added))
	assert.False(t, outcome.HasFailures(failure.Permanent))
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcile_UnclassifiedHandlerError(t *testing.T) {
	store := newMemStore()
	seed(store, "src/c.json")

	h := &funcHandler{update: func(body []byte, path string) ([]Action, error) {
		return nil, errors.New("unexpected")
	}}
	pub := new(mocks.Publisher)

	outcome, err := newTestReconciler(h, store, pub, 1).Reconcile(context.Background(), newBatch([]string{"src/c.json"}, nil, nil))

	require.NoError(t, err)
	assert.Equal(t, []string{"src/c.json"}, outcome.Failed(failure.Permanent, Added))
	assert.Empty(t, outcome.Failed(failure.Temporary, Added))
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcile_PartiallyAppliedKeyIsFailed(t *testing.T) {
	store := newMemStore()
	seed(store, "src/1.json", "src/2.json", "src/3.json")
	store.fail["broken/2.json"] = failure.StoragePermanent.New("AccessDenied")

	h := &funcHandler{update: func(body []byte, path string) ([]Action, error) {
		actions := []Action{StorageWrite{Key: path, Body: body}}
		if path == "dst/2.json" {
			actions = append(actions, StorageWrite{Key: "broken/2.json", Body: body})
		}
		return actions, nil
	}}
	pub := &recordingPublisher{}

	outcome, err := newTestReconciler(h, store, pub, 2).Reconcile(context.Background(),
		newBatch([]string{"src/1.json", "src/2.json", "src/3.json"}, nil, nil))

	require.NoError(t, err)
	assert.Equal(t, []string{"dst/1.json", "dst/3.json"}, outcome.Applied(Added))
	assert.Equal(t, []string{"src/2.json"}, outcome.Failed(failure.Permanent, Added))

	// The first write of the failed key is not rolled back.
	_, ok := store.get(outBucket, "dst/2.json")
	assert.True(t, ok)

	batches := pub.batches(t, outTopic)
	require.Len(t, batches, 1)
	assert.Equal(t, []string{"dst/1.json", "dst/3.json"}, batches[0].AddedKeys)
}

func TestReconcile_InvalidKeyIsPermanentFailure(t *testing.T) {
	store := newMemStore()
	seed(store, "src/ok.json")
	pub := &recordingPublisher{}

	outcome, err := newTestReconciler(copyHandler(), store, pub, 1).Reconcile(context.Background(),
		newBatch([]string{"other/x.json", "src/ok.json"}, nil, []string{"srcx.json"}))

	require.NoError(t, err)
	assert.Equal(t, []string{"other/x.json"}, outcome.Failed(failure.Permanent, Added))
	assert.Equal(t, []string{"srcx.json"}, outcome.Failed(failure.Permanent, Deleted))
	assert.Equal(t, []string{"dst/ok.json"}, outcome.Applied(Added))
}

func TestReconcile_Rerun(t *testing.T) {
	store := newMemStore()
	seed(store, "src/a.json", "src/b.json")
	pub := &recordingPublisher{}
	r := newTestReconciler(copyHandler(), store, pub, 4)
	batch := newBatch([]string{"src/a.json"}, []string{"src/b.json"}, []string{"src/gone.json"})

	first, err := r.Reconcile(context.Background(), batch)
	require.NoError(t, err)
	afterFirst := store.snapshot()

	second, err := r.Reconcile(context.Background(), batch)
	require.NoError(t, err)

	for _, ct := range ChangeTypes {
		assert.Equal(t, first.Applied(ct), second.Applied(ct))
	}
	assert.Equal(t, first.Failures(), second.Failures())
	assert.Equal(t, afterFirst, store.snapshot())

	// One outbound message per run, with identical content.
	batches := pub.batches(t, outTopic)
	require.Len(t, batches, 2)
	assert.Equal(t, batches[0], batches[1])
}

func TestReconcile_NoActionIsSkipped(t *testing.T) {
	store := newMemStore()
	seed(store, "src/a.json")
	h := &funcHandler{update: func(body []byte, path string) ([]Action, error) {
		return nil, nil
	}}
	pub := new(mocks.Publisher)

	outcome, err := newTestReconciler(h, store, pub, 1).Reconcile(context.Background(), newBatch([]string{"src/a.json"}, nil, nil))

	require.NoError(t, err)
	assert.Equal(t, []string{"src/a.json"}, outcome.Skipped(Added))
	assert.False(t, outcome.HasApplied())
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestReconcile_ChangeEmitWithoutBodyReportsDeleted(t *testing.T) {
	store := newMemStore()
	seed(store, "src/a.json")
	store.objects[outBucket+"/dst/a.json"] = object{body: []byte("old")}

	h := &funcHandler{update: func(body []byte, path string) ([]Action, error) {
		return []Action{ChangeEmit{Path: path}}, nil
	}}
	pub := &recordingPublisher{}

	outcome, err := newTestReconciler(h, store, pub, 1).Reconcile(context.Background(), newBatch(nil, []string{"src/a.json"}, nil))

	require.NoError(t, err)
	assert.Empty(t, outcome.Applied(Updated))
	assert.Equal(t, []string{"dst/a.json"}, outcome.Applied(Deleted))
	_, ok := store.get(outBucket, "dst/a.json")
	assert.False(t, ok)
}

func TestReconcile_DeletedKeysAreNotFetched(t *testing.T) {
	store := newMemStore()
	// Fetching this key would fail.
	store.fail["src/a.json"] = failure.StoragePermanent.New("NoSuchKey")

	var paths []string
	h := &funcHandler{
		update: func(body []byte, path string) ([]Action, error) {
			t.Fatal("OnUpdate called for a deleted key")
			return nil, nil
		},
		del: func(path string) ([]Action, error) {
			paths = append(paths, path)
			return []Action{StorageDelete{Key: path}}, nil
		},
	}

	outcome, err := newTestReconciler(h, store, &recordingPublisher{}, 1).Reconcile(context.Background(), newBatch(nil, nil, []string{"src/a.json"}))

	require.NoError(t, err)
	assert.Equal(t, []string{"dst/a.json"}, paths)
	assert.Equal(t, []string{"dst/a.json"}, outcome.Applied(Deleted))
}

func TestReconcile_FetchFailure(t *testing.T) {
	store := newMemStore()
	store.fail["src/slow.json"] = failure.StorageTransient.New("SlowDown")

	outcome, err := newTestReconciler(copyHandler(), store, &recordingPublisher{}, 1).Reconcile(context.Background(),
		newBatch([]string{"src/slow.json", "src/missing.json"}, nil, nil))

	require.NoError(t, err)
	assert.Equal(t, []string{"src/slow.json"}, outcome.Failed(failure.Temporary, Added))
	assert.Equal(t, []string{"src/missing.json"}, outcome.Failed(failure.Permanent, Added))
}

func TestReconcile_HandlerPanicIsPermanent(t *testing.T) {
	store := newMemStore()
	seed(store, "src/a.json", "src/b.json")
	h := &funcHandler{update: func(body []byte, path string) ([]Action, error) {
		if path == "dst/a.json" {
			panic("nil map")
		}
		return []Action{StorageWrite{Key: path, Body: body}}, nil
	}}

	outcome, err := newTestReconciler(h, store, &recordingPublisher{}, 2).Reconcile(context.Background(),
		newBatch([]string{"src/a.json", "src/b.json"}, nil, nil))

	require.NoError(t, err)
	assert.Equal(t, []string{"src/a.json"}, outcome.Failed(failure.Permanent, Added))
	assert.Equal(t, []string{"dst/b.json"}, outcome.Applied(Added))

	failures := outcome.Failures()
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0].Reason, "nil map")
}

func TestReconcile_MessageEmit(t *testing.T) {
	store := newMemStore()
	seed(store, "src/a.json", "src/b.json")

	pub := new(mocks.Publisher)
	pub.On("Publish", mock.Anything, "side", []byte("a")).Return(nil).Once()
	pub.On("Publish", mock.Anything, "side", []byte("b")).Return(failure.BrokerTransient.New("channel closed")).Once()
	pub.On("Publish", mock.Anything, outTopic, mock.Anything).Return(nil).Once()

	h := &funcHandler{update: func(body []byte, path string) ([]Action, error) {
		name := path[len("dst/") : len("dst/")+1]
		return []Action{
			MessageEmit{Topic: "side", Body: []byte(name)},
			StorageWrite{Key: path, Body: body},
		}, nil
	}}

	outcome, err := newTestReconciler(h, store, pub, 1).Reconcile(context.Background(),
		newBatch([]string{"src/a.json", "src/b.json"}, nil, nil))

	require.NoError(t, err)
	assert.Equal(t, []string{"dst/a.json"}, outcome.Applied(Added))
	assert.Equal(t, []string{"src/b.json"}, outcome.Failed(failure.Temporary, Added))

	// The write after the failed publish never ran.
	_, ok := store.get(outBucket, "dst/b.json")
	assert.False(t, ok)
	pub.AssertExpectations(t)
}

func TestReconcile_ExplicitFailureAction(t *testing.T) {
	store := newMemStore()
	seed(store, "src/p.json", "src/t.json")
	h := &funcHandler{update: func(body []byte, path string) ([]Action, error) {
		return []Action{Failure{Permanent: path == "dst/p.json", Reason: "rejected"}}, nil
	}}

	outcome, err := newTestReconciler(h, store, &recordingPublisher{}, 1).Reconcile(context.Background(),
		newBatch([]string{"src/p.json", "src/t.json"}, nil, nil))

	require.NoError(t, err)
	assert.Equal(t, []string{"src/p.json"}, outcome.Failed(failure.Permanent, Added))
	assert.Equal(t, []string{"src/t.json"}, outcome.Failed(failure.Temporary, Added))
}

func TestReconcile_OutboundPublishFailure(t *testing.T) {
	store := newMemStore()
	seed(store, "src/a.json")
	pub := new(mocks.Publisher)
	pub.On("Publish", mock.Anything, outTopic, mock.Anything).Return(failure.BrokerTransient.New("connection lost"))

	outcome, err := newTestReconciler(copyHandler(), store, pub, 1).Reconcile(context.Background(), newBatch([]string{"src/a.json"}, nil, nil))

	require.Error(t, err)
	assert.Equal(t, failure.Temporary, failure.Classify(err))
	require.NotNil(t, outcome)
	assert.Equal(t, []string{"dst/a.json"}, outcome.Applied(Added))
}

func TestReconcile_DuplicateKeysProcessedOnce(t *testing.T) {
	store := newMemStore()
	seed(store, "src/a.json")
	var mu sync.Mutex
	calls := 0
	h := &funcHandler{update: func(body []byte, path string) ([]Action, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return []Action{StorageWrite{Key: path, Body: body}}, nil
	}}

	_, err := newTestReconciler(h, store, &recordingPublisher{}, 4).Reconcile(context.Background(),
		newBatch([]string{"src/a.json", "src/a.json"}, nil, nil))

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestReconcile_ChangeEmitReportsEmittedPaths(t *testing.T) {
	store := newMemStore()
	seed(store, "src/a.json")
	store.objects[outBucket+"/dst/a/stale.json"] = object{body: []byte("old")}

	h := &funcHandler{update: func(body []byte, path string) ([]Action, error) {
		return []Action{
			ChangeEmit{Path: "dst/a/derived.json", Body: body},
			ChangeEmit{Path: "dst/a/stale.json"},
		}, nil
	}}
	pub := &recordingPublisher{}

	outcome, err := newTestReconciler(h, store, pub, 1).Reconcile(context.Background(), newBatch([]string{"src/a.json"}, nil, nil))
	require.NoError(t, err)

	assert.Equal(t, []string{"dst/a/derived.json"}, outcome.Applied(Added))
	assert.Equal(t, []string{"dst/a/stale.json"}, outcome.Applied(Deleted))

	_, ok := store.get(outBucket, "dst/a/derived.json")
	assert.True(t, ok)
	_, ok = store.get(outBucket, "dst/a/stale.json")
	assert.False(t, ok)

	batches := pub.batches(t, outTopic)
	require.Len(t, batches, 1)
	assert.Equal(t, []string{"dst/a/derived.json"}, batches[0].AddedKeys)
	assert.Empty(t, batches[0].UpdatedKeys)
	assert.Equal(t, []string{"dst/a/stale.json"}, batches[0].DeletedKeys)
}

// Every inbound key lands in exactly one bucket, whatever the handler does.
func TestReconcile_NoKeyLostOrDuplicated(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		store := newMemStore()
		behaviour := make(map[string]int)
		var sets [3][]string

		n := rng.Intn(30)
		for i := 0; i < n; i++ {
			key := fmt.Sprintf("src/%d/%d.json", round, i)
			if rng.Intn(10) == 0 {
				key = fmt.Sprintf("elsewhere/%d.json", i)
			}
			ct := rng.Intn(3)
			sets[ct] = append(sets[ct], key)
			seed(store, key)
			behaviour[key] = rng.Intn(5)
		}

		decide := func(path string) ([]Action, error) {
			key := "src/" + path[len("dst/"):]
			switch behaviour[key] {
			case 0:
				return []Action{StorageWrite{Key: path, Body: []byte("x")}}, nil
			case 1:
				return nil, failure.Retryable(errors.New("later"))
			case 2:
				return nil, failure.Validation("bad input")
			case 3:
				return nil, nil
			default:
				return []Action{ChangeEmit{Path: path}}, nil
			}
		}
		h := &funcHandler{
			update: func(body []byte, path string) ([]Action, error) { return decide(path) },
			del:    decide,
		}

		batch := newBatch(sets[0], sets[1], sets[2])
		outcome, err := newTestReconciler(h, store, &recordingPublisher{}, 1+rng.Intn(8)).Reconcile(context.Background(), batch)
		require.NoError(t, err)

		seen := make(map[string]int)
		for _, ct := range ChangeTypes {
			for _, path := range outcome.Applied(ct) {
				seen["src/"+path[len("dst/"):]]++
			}
			for _, key := range outcome.Skipped(ct) {
				seen[key]++
			}
			for _, class := range []failure.Class{failure.Temporary, failure.Permanent} {
				for _, key := range outcome.Failed(class, ct) {
					seen[key]++
				}
			}
		}

		require.Len(t, seen, n, "round %d", round)
		for key, count := range seen {
			assert.Equal(t, 1, count, "round %d key %s", round, key)
		}
	}
}
