package store

import "time"

// Draft is the persisted, in-progress review comment for one record.
type Draft struct {
	RecordID  string    `json:"record_id"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}
