package delivery

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot is a point-in-time copy of the controller counters.
type Snapshot struct {
	Received      int64     `json:"received"`
	Acked         int64     `json:"acked"`
	Nacked        int64     `json:"nacked"`
	DeadLettered  int64     `json:"dead_lettered"`
	AppliedKeys   int64     `json:"applied_keys"`
	SkippedKeys   int64     `json:"skipped_keys"`
	TemporaryKeys int64     `json:"temporary_keys"`
	PermanentKeys int64     `json:"permanent_keys"`
	LastBatchID   string    `json:"last_batch_id,omitempty"`
	LastTopic     string    `json:"last_topic,omitempty"`
	LastBatchAt   time.Time `json:"last_batch_at,omitempty"`
	LastVerdict   string    `json:"last_verdict,omitempty"`
}

// Stats counts deliveries and key outcomes.
type Stats struct {
	received      atomic.Int64
	acked         atomic.Int64
	nacked        atomic.Int64
	deadLettered  atomic.Int64
	appliedKeys   atomic.Int64
	skippedKeys   atomic.Int64
	temporaryKeys atomic.Int64
	permanentKeys atomic.Int64

	mu          sync.Mutex
	lastBatchID string
	lastTopic   string
	lastBatchAt time.Time
	lastVerdict string
}

func (s *Stats) settled(batchID, topic string, v Verdict) {
	if v.Ack {
		s.acked.Add(1)
	} else {
		s.nacked.Add(1)
	}
	if v.DeadLetter {
		s.deadLettered.Add(1)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastBatchID = batchID
	s.lastTopic = topic
	s.lastBatchAt = time.Now()
	s.lastVerdict = v.String()
}

// Snapshot returns the current counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Received:      s.received.Load(),
		Acked:         s.acked.Load(),
		Nacked:        s.nacked.Load(),
		DeadLettered:  s.deadLettered.Load(),
		AppliedKeys:   s.appliedKeys.Load(),
		SkippedKeys:   s.skippedKeys.Load(),
		TemporaryKeys: s.temporaryKeys.Load(),
		PermanentKeys: s.permanentKeys.Load(),
		LastBatchID:   s.lastBatchID,
		LastTopic:     s.lastTopic,
		LastBatchAt:   s.lastBatchAt,
		LastVerdict:   s.lastVerdict,
	}
}
