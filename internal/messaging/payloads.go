package messaging

import (
	"time"

	"github.com/safa0/google-rangerz/internal/domain"
)

// Очереди и DLX по умолчанию.
const (
	DefaultTaskQueue  = "story_generation_tasks"
	DefaultEventQueue = "story_events"

	taskDLX         = "story_generation_tasks_dlx"
	taskDLQ         = "story_generation_tasks_dlq"
	dlqRoutingKey   = "dlq"
	appID           = "storygen"
	contentTypeJSON = "application/json"
)

// EventType тип события жизненного цикла истории.
type EventType string

const (
	EventStoryCreated     EventType = "story.created"
	EventChapterPersisted EventType = "chapter.persisted"
	EventStoryCompleted   EventType = "story.completed"
	EventStoryFailed      EventType = "story.failed"
)

// StoryTaskPayload задача на генерацию истории целиком.
type StoryTaskPayload struct {
	TaskID     string                `json:"task_id"`
	UserID     string                `json:"user_id"`
	Profile    domain.LearnerProfile `json:"profile"`
	TotalSteps int                   `json:"total_steps,omitempty"`
}

// StoryEventPayload событие для подписчиков (клиентское приложение, аналитика).
type StoryEventPayload struct {
	EventID       string             `json:"event_id"`
	Type          EventType          `json:"type"`
	StoryID       int64              `json:"story_id"`
	UserID        string             `json:"user_id"`
	ChapterNumber int                `json:"chapter_number,omitempty"`
	Status        domain.StoryStatus `json:"status"`
	Error         string             `json:"error,omitempty"`
	OccurredAt    time.Time          `json:"occurred_at"`
}
