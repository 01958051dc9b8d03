package eventbus

import "github.com/placescout/scoutengine/internal/domain"

// BotInitializedPayload fires once a pool session finishes opening.
type BotInitializedPayload struct {
	BotIndex int
}

// BotTaskAssignedPayload fires once, at the start of a task's execution.
type BotTaskAssignedPayload struct {
	BotIndex int
	TaskID   domain.ID
}

// BotSnapshotCapturedPayload fires periodically while a task runs.
type BotSnapshotCapturedPayload struct {
	BotIndex  int
	TaskID    domain.ID
	ImagePNG  []byte
	CurrentURL string
}

// BotTaskCompletedPayload fires when a bot finishes working a task,
// independent of whether the task itself ultimately succeeds or fails.
type BotTaskCompletedPayload struct {
	BotIndex int
	TaskID   domain.ID
}

// BotErrorPayload fires when a driver capability call fails.
type BotErrorPayload struct {
	BotIndex int
	TaskID   domain.ID
	Message  string
}

// BotClosedPayload fires once per session during pool drain.
type BotClosedPayload struct {
	BotIndex int
}

// TaskStartedPayload fires when a task transitions to IN_PROGRESS.
type TaskStartedPayload struct {
	Task domain.PlaceExtractionTask
}

// PlaceExtractedPayload fires once per unique place persisted for a task.
type PlaceExtractedPayload struct {
	Place domain.ExtractedPlace
}

// TaskCompletedPayload fires when a task transitions to COMPLETED.
type TaskCompletedPayload struct {
	Task       domain.PlaceExtractionTask
	PlaceCount int
}

// TaskFailedPayload fires when a task transitions to FAILED.
type TaskFailedPayload struct {
	Task domain.PlaceExtractionTask
}
