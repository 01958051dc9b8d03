package domain

import "time"

// TaskStatus is the lifecycle state of a PlaceExtractionTask.
type TaskStatus string

const (
	TaskPending    TaskStatus = "PENDING"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskCompleted  TaskStatus = "COMPLETED"
	TaskFailed     TaskStatus = "FAILED"
	TaskSkipped    TaskStatus = "SKIPPED"
)

// PlaceExtractionTask is one unit of extraction for one city under one
// campaign. It is a child of Campaign: all mutation flows through the
// Campaign aggregate boundary (the orchestrator), never directly.
type PlaceExtractionTask struct {
	ID           ID
	CampaignID   ID
	GeonameID    int64
	GeonameName  string
	SearchSeed   string
	Status       TaskStatus
	Attempts     int
	LastError    string
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// CanTransitionToInProgress reports whether t may (re-)enter IN_PROGRESS:
// a fresh start from PENDING, a same-run retry continuing from
// IN_PROGRESS, or a resume from FAILED. Only a task that has already
// reached COMPLETED or SKIPPED is rejected.
func (t PlaceExtractionTask) CanTransitionToInProgress() bool {
	return t.Status != TaskCompleted && t.Status != TaskSkipped
}

// WithStatus returns a copy of t with Status replaced.
func (t PlaceExtractionTask) WithStatus(s TaskStatus) PlaceExtractionTask {
	t.Status = s
	return t
}

// Terminal reports whether the task has reached a status that no longer
// participates in the active queue.
func (t PlaceExtractionTask) Terminal() bool {
	switch t.Status {
	case TaskCompleted, TaskFailed, TaskSkipped:
		return true
	default:
		return false
	}
}
