package fanout

import (
	"encoding/json"
	"sync"
	"time"
)

// DefaultRingSize is the number of records retained for flushing.
const DefaultRingSize = 1024

// Record is one fanned-out event as it is broadcast and audited.
type Record struct {
	Seq        uint64          `json:"seq"`
	TenantID   string          `json:"tenantId"`
	Name       string          `json:"event"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurredAt"`
}

// Ring is a fixed-size circular buffer of records with sequence tracking.
// Sequences start at 1 and increase by one per append; when full, the
// oldest record is overwritten.
//
// All methods are safe for concurrent use.
type Ring struct {
	mu       sync.Mutex
	data     []Record
	capacity int
	// last is the sequence of the newest record, 0 before the first append.
	last uint64
}

func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = DefaultRingSize
	}
	return &Ring{data: make([]Record, capacity), capacity: capacity}
}

// Append stores rec under the next sequence and returns the stored record.
func (r *Ring) Append(rec Record) Record {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.last++
	rec.Seq = r.last
	r.data[int((r.last-1)%uint64(r.capacity))] = rec
	return rec
}

// ReadAfter returns up to limit records with a sequence greater than seq, in
// order. dropped counts records after seq that were already overwritten.
func (r *Ring) ReadAfter(seq uint64, limit int) (records []Record, dropped uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if seq >= r.last {
		return nil, 0
	}

	oldest := uint64(1)
	if r.last > uint64(r.capacity) {
		oldest = r.last - uint64(r.capacity) + 1
	}
	next := seq + 1
	if next < oldest {
		dropped = oldest - next
		next = oldest
	}

	n := int(r.last - next + 1)
	if limit > 0 && n > limit {
		n = limit
	}
	records = make([]Record, n)
	for i := range records {
		records[i] = r.data[int((next+uint64(i)-1)%uint64(r.capacity))]
	}
	return records, dropped
}

// Last returns the sequence of the newest record.
func (r *Ring) Last() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
