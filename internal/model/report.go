package model

import "fmt"

// RecordStatus is the outcome of writing one record or chunk
type RecordStatus string

const (
	StatusInserted RecordStatus = "inserted"
	StatusSkipped  RecordStatus = "skipped"
	StatusFailed   RecordStatus = "failed"
)

// RecordResult is the per-record outcome of an ingestion batch
type RecordResult struct {
	DocID  string       `json:"doc_id"`
	Chunks int          `json:"chunks"`
	Status RecordStatus `json:"status"`
	Reason string       `json:"reason,omitempty"`
}

// BatchReport aggregates the outcome of a batch write or ingestion run
type BatchReport struct {
	Succeeded int            `json:"succeeded"`
	Skipped   int            `json:"skipped"`
	Failed    int            `json:"failed"`
	Records   []RecordResult `json:"records,omitempty"`
}

// Add records one result and bumps the matching counter
func (r *BatchReport) Add(res RecordResult) {
	switch res.Status {
	case StatusInserted:
		r.Succeeded++
	case StatusSkipped:
		r.Skipped++
	default:
		r.Failed++
	}
	r.Records = append(r.Records, res)
}

// Merge folds counters of other into r (records are appended)
func (r *BatchReport) Merge(other BatchReport) {
	r.Succeeded += other.Succeeded
	r.Skipped += other.Skipped
	r.Failed += other.Failed
	r.Records = append(r.Records, other.Records...)
}

// Total is the number of items the report accounts for
func (r BatchReport) Total() int {
	return r.Succeeded + r.Skipped + r.Failed
}

func (r BatchReport) String() string {
	return fmt.Sprintf("succeeded=%d skipped=%d failed=%d", r.Succeeded, r.Skipped, r.Failed)
}
