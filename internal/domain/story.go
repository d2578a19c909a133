package domain

import (
	"encoding/json"
	"time"
)

// StoryStatus статус истории в хранилище.
type StoryStatus string

const (
	StatusOngoing   StoryStatus = "ongoing"
	StatusCompleted StoryStatus = "completed"
	StatusFailed    StoryStatus = "failed"
)

// SessionState состояние конечного автомата сессии генерации.
type SessionState string

const (
	StateInitializing SessionState = "initializing"
	StateRunning      SessionState = "running"
	StateCompleted    SessionState = "completed"
	StateFailed       SessionState = "failed"
)

// IsTerminal сообщает, что из состояния больше нет переходов.
func (s SessionState) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// ExerciseType тип упражнения, запрашиваемого у сервиса генерации на ход.
type ExerciseType string

const (
	ExerciseFillInBlank       ExerciseType = "fill_in_blank"
	ExerciseComprehensionText ExerciseType = "comprehension_text"
	ExerciseMultipleChoice    ExerciseType = "multiple_choice"
	ExerciseMatching          ExerciseType = "matching"
)

// Story запись истории в хранилище.
type Story struct {
	ID           int64       `db:"id" json:"id"`
	UserID       string      `db:"user_id" json:"user_id"`
	Title        string      `db:"title" json:"title"`
	Status       StoryStatus `db:"status" json:"status"`
	Thumbnail    *string     `db:"thumbnail" json:"thumbnail,omitempty"`
	Premise      string      `db:"story_info" json:"story_info"`
	TotalSteps   int         `db:"total_steps" json:"total_steps"`
	ErrorDetails *string     `db:"error_details" json:"error_details,omitempty"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updated_at"`
}

// Chapter неизменяемая запись одного завершенного хода.
type Chapter struct {
	ID             int64           `db:"id" json:"id"`
	StoryID        int64           `db:"story_id" json:"story_id"`
	Number         int             `db:"chapter_number" json:"chapter_number"`
	Metadata       json.RawMessage `db:"metadata" json:"metadata"`
	RawText        string          `db:"raw_text" json:"raw_text"`
	ImageRef       string          `db:"image" json:"image"`
	ExerciseResult string          `db:"exe_result" json:"exe_result"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// StorySession изменяемое состояние, которое контроллер проносит через ходы.
// Progression никогда не превышает TotalSteps.
type StorySession struct {
	StoryID           int64
	UserID            string
	Title             string
	Status            StoryStatus
	State             SessionState
	Thumbnail         string
	Premise           string
	Summary           string
	LastChoice        string
	Progression       int
	TotalSteps        int
	ChaptersPersisted int
}

// IsFinalStep - текущий ход последний в истории.
func (s *StorySession) IsFinalStep() bool {
	return s.Progression >= s.TotalSteps
}

// Snapshot возвращает копию сессии для передачи в движок хода.
func (s *StorySession) Snapshot() StorySession {
	return *s
}

// StoryOutcome итог сессии, видимый вызывающему.
type StoryOutcome struct {
	StoryID           int64       `json:"story_id"`
	Status            StoryStatus `json:"status"`
	ChaptersPersisted int         `json:"chapters_persisted"`
	Err               error       `json:"-"`
}
