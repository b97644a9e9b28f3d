package common

import (
	"github.com/google/uuid"
)

// NewItemID generates a unique item ID with the "item_" prefix
func NewItemID() string {
	return "item_" + uuid.New().String()
}

// NewJobID generates a unique job ID with the "job_" prefix
func NewJobID() string {
	return "job_" + uuid.New().String()
}

// NewScheduleID generates a unique schedule ID with the "sched_" prefix
func NewScheduleID() string {
	return "sched_" + uuid.New().String()
}
