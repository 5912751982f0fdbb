package domain

// BulkTask is one document queued for the bulk write path.
// A nil *BulkTask is the shutdown sentinel.
type BulkTask struct {
	Index   string
	DocType string
	ID      string
	Body    *CrashDocument
}

// Action converts the task to the store's bulk action form.
func (t *BulkTask) Action() BulkAction {
	return BulkAction{
		Index:   t.Index,
		DocType: t.DocType,
		ID:      t.ID,
		Source:  t.Body,
	}
}

// BulkAction is a single write inside a bulk submission.
// An empty ID lets the store assign one.
type BulkAction struct {
	Index   string `json:"_index"`
	DocType string `json:"_type"`
	ID      string `json:"_id,omitempty"`
	Source  any    `json:"_source"`
}

// BulkStats reports the bulk write path's counters.
type BulkStats struct {
	// Enqueued is the number of tasks accepted by Save.
	Enqueued int64

	// Submitted is the number of actions the store accepted.
	Submitted int64

	// Failed is the number of actions lost to failed submissions.
	Failed int64

	// FailedBatches is the number of failed bulk submissions.
	FailedBatches int64
}

// FailedBatch describes a bulk submission the store rejected.
// The actions are not retried by the bulk path.
type FailedBatch struct {
	Actions []BulkAction `json:"actions"`
	Error   string       `json:"error"`
}
