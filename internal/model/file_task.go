package model

import "time"

// File task statuses. completed is absorbing; every in_progress task is
// re-adopted exactly once at process start.
const (
	TaskStatusInProgress = "in_progress"
	TaskStatusCompleted  = "completed"
)

// FileTask is the durable record of one CSV import run. successful_rows +
// failed_rows is the resume offset.
type FileTask struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"user_id"`
	FilePath       string    `json:"file_path"`
	TotalRows      int       `json:"total_rows"`
	SuccessfulRows int       `json:"successful_rows"`
	FailedRows     int       `json:"failed_rows"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
