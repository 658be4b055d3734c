package models

import "time"

// ImportRecord links a job to one row it created, enabling rollback. The
// referenced entity may be deleted independently afterwards; rollback
// tolerates dangling references.
type ImportRecord struct {
	ID         string     `db:"id" json:"id"`
	JobID      string     `db:"job_id" json:"job_id"`
	RecordID   string     `db:"record_id" json:"record_id"`
	RecordKind ImportKind `db:"record_kind" json:"record_kind"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}
