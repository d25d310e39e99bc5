package models

import "time"

// TaskStatus is the lifecycle state of a post-turn observer task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// PostTurnTask is one unit of work for the post-turn observer (C6),
// queued after every turn completes.
type PostTurnTask struct {
	TaskID       string     `json:"task_id"`
	SessionID    string     `json:"session_id"`
	Trigger      string     `json:"trigger"`
	MessageCount int        `json:"message_count"`
	QueuedAt     time.Time  `json:"queued_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Status       TaskStatus `json:"status"`
	Result       string     `json:"result,omitempty"`
	Error        string     `json:"error,omitempty"`

	// Inputs captured at enqueue time so the worker needs no extra lookup.
	UserMessage      string `json:"-"`
	AssistantReply   string `json:"-"`
	ToolCallSummary  string `json:"-"`
}
