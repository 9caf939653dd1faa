package reconcile

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"catalogue-ingester/core/failure"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcome_FailureReport(t *testing.T) {
	o := NewOutcome()
	o.RecordApplied(Added, "dst/a.json")
	o.RecordFailure(failure.Temporary, Added, "src/b.json", "slow down")
	o.RecordFailure(failure.Permanent, Deleted, "src/c.json", "access denied")

	in := newBatch([]string{"src/a.json", "src/b.json"}, nil, []string{"src/c.json"})
	body, err := json.Marshal(o.FailureReport(in))
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"id": "batch-1",
		"bucket_name": "catalogue-population",
		"source": "src",
		"target": "dst",
		"added_keys": [],
		"updated_keys": [],
		"deleted_keys": [],
		"failed_files": {
			"temp_failed_keys": {"added_keys": ["src/b.json"], "updated_keys": [], "deleted_keys": []},
			"perm_failed_keys": {"added_keys": [], "updated_keys": [], "deleted_keys": ["src/c.json"]}
		}
	}`, string(body))
}

func TestOutcome_OutboundBatch(t *testing.T) {
	o := NewOutcome()
	o.RecordApplied(Updated, "dst/z.json")
	o.RecordApplied(Updated, "dst/a.json")
	o.RecordSkipped(Added, "src/n.json")

	in := newBatch(nil, []string{"src/a.json", "src/z.json"}, nil)
	in.Workspace = "ws"
	out := o.OutboundBatch(in, outBucket)

	assert.Equal(t, outBucket, out.BucketName)
	assert.Equal(t, "ws", out.Workspace)
	assert.Equal(t, []string{"dst/a.json", "dst/z.json"}, out.UpdatedKeys)
	assert.NotNil(t, out.AddedKeys)
	assert.Empty(t, out.AddedKeys)
	assert.Nil(t, out.FailedFiles)
}

func TestOutcome_Summary(t *testing.T) {
	o := NewOutcome()
	o.RecordApplied(Added, "a")
	o.RecordApplied(Deleted, "b")
	o.RecordSkipped(Updated, "c")
	o.RecordFailure(failure.Temporary, Updated, "d", "")
	o.RecordFailure(failure.Permanent, Added, "e", "")
	o.RecordFailure(failure.Permanent, Deleted, "f", "")

	assert.Equal(t, Summary{Added: 1, Deleted: 1, Skipped: 1, Temporary: 1, Permanent: 2}, o.Summary())
	assert.True(t, o.HasApplied())
	assert.True(t, o.HasFailures(failure.Temporary))

	failures := o.Failures()
	require.Len(t, failures, 3)
	assert.Equal(t, "e", failures[0].Key)
	assert.Equal(t, "f", failures[1].Key)
	assert.Equal(t, failure.Temporary, failures[2].Class)
}

func TestOutcome_ConcurrentRecording(t *testing.T) {
	o := NewOutcome()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.RecordApplied(Added, fmt.Sprintf("dst/%d.json", i%50))
		}()
	}
	wg.Wait()

	assert.Len(t, o.Applied(Added), 50)
}

func TestDecodeChangeBatch(t *testing.T) {
	b, err := DecodeChangeBatch([]byte(`{"id":"1","bucket_name":"in","source":"s","target":"t","added_keys":["s/a"],"deleted_keys":["s/b"]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"s/a"}, b.Keys(Added))
	assert.Empty(t, b.Keys(Updated))
	assert.Equal(t, []string{"s/b"}, b.Keys(Deleted))
	assert.Equal(t, 2, b.Len())

	_, err = DecodeChangeBatch([]byte(`{"source":"s"}`))
	assert.Error(t, err)

	_, err = DecodeChangeBatch([]byte(`not json`))
	assert.Error(t, err)
}
