package model

import (
	"time"

	"libweave/value"
)

const stateChangeQueueCap = 100

// StateChangeRecord is one merged-state-property notification, per §3's
// state-change record shape.
type StateChangeRecord struct {
	Timestamp         time.Time
	ComponentPath     string
	ChangedProperties map[string]value.Value
}

// stateChangeQueue is a per-component bounded FIFO (4.A). It is not
// safe for concurrent use; callers are serialized on the task runner.
type stateChangeQueue struct {
	records []StateChangeRecord
}

// notifyPropertiesUpdated appends a record, dropping the oldest on overflow.
func (q *stateChangeQueue) notifyPropertiesUpdated(rec StateChangeRecord) {
	if len(q.records) >= stateChangeQueueCap {
		q.records = q.records[1:]
	}
	q.records = append(q.records, rec)
}

// drain returns every recorded entry and empties the queue.
func (q *stateChangeQueue) drain() []StateChangeRecord {
	if len(q.records) == 0 {
		return nil
	}
	out := q.records
	q.records = nil
	return out
}
