package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/safa0/google-rangerz/internal/domain"
	"github.com/safa0/google-rangerz/internal/messaging"
	"github.com/safa0/google-rangerz/internal/repository"
)

// APIError стандартный ответ об ошибке.
type APIError struct {
	Message string `json:"message"`
}

// StoryResponse история и число записанных глав.
type StoryResponse struct {
	ID           int64              `json:"id"`
	UserID       string             `json:"user_id"`
	Title        string             `json:"title"`
	Status       domain.StoryStatus `json:"status"`
	Thumbnail    *string            `json:"thumbnail,omitempty"`
	Premise      string             `json:"story_info"`
	TotalSteps   int                `json:"total_steps"`
	Chapters     int                `json:"chapters"`
	ErrorDetails *string            `json:"error_details,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

// ChapterResponse глава; raw_text содержит разметку <img>/<txt>/<opt>/<exe> для отрисовки.
type ChapterResponse struct {
	Number         int             `json:"chapter_number"`
	Metadata       json.RawMessage `json:"metadata"`
	RawText        string          `json:"raw_text"`
	Image          string          `json:"image"`
	ExerciseResult string          `json:"exe_result"`
	CreatedAt      time.Time       `json:"created_at"`
}

// SubmitStoryRequest тело POST /stories.
type SubmitStoryRequest struct {
	UserID     string                `json:"user_id" binding:"required"`
	Profile    domain.LearnerProfile `json:"profile"`
	TotalSteps int                   `json:"total_steps"`
}

// StoryHandler обрабатывает HTTP запросы к историям.
type StoryHandler struct {
	stories    repository.StoryRepository
	cancels    StoryCanceller
	tasks      messaging.TaskPublisher
	totalSteps int
	logger     *zap.Logger
}

func NewStoryHandler(deps Deps, logger *zap.Logger) *StoryHandler {
	return &StoryHandler{
		stories:    deps.Stories,
		cancels:    deps.Cancels,
		tasks:      deps.Tasks,
		totalSteps: deps.DefaultTotalSteps,
		logger:     logger.Named("StoryHandler"),
	}
}

func (h *StoryHandler) RegisterRoutes(r gin.IRouter) {
	stories := r.Group("/stories")
	{
		stories.POST("", h.submitStory)
		stories.GET("/:id", h.getStory)
		stories.GET("/:id/chapters", h.listChapters)
		stories.GET("/:id/chapters/:number", h.getChapter)
		stories.POST("/:id/cancel", h.cancelStory)
	}
}

func (h *StoryHandler) submitStory(c *gin.Context) {
	if h.tasks == nil {
		c.JSON(http.StatusServiceUnavailable, APIError{Message: "task queue is not configured"})
		return
	}
	var req SubmitStoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: "invalid request body: " + err.Error()})
		return
	}
	profile, err := req.Profile.Normalize()
	if err != nil {
		c.JSON(http.StatusBadRequest, APIError{Message: err.Error()})
		return
	}
	if req.TotalSteps < 0 {
		c.JSON(http.StatusBadRequest, APIError{Message: "total_steps must not be negative"})
		return
	}
	if req.TotalSteps == 0 {
		req.TotalSteps = h.totalSteps
	}

	task := messaging.StoryTaskPayload{
		TaskID:     uuid.NewString(),
		UserID:     req.UserID,
		Profile:    profile,
		TotalSteps: req.TotalSteps,
	}
	if err := h.tasks.PublishTask(c.Request.Context(), task); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, APIError{Message: "failed to enqueue story task"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": task.TaskID})
}

func (h *StoryHandler) getStory(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	story, err := h.stories.GetStory(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	count, err := h.stories.CountChapters(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, StoryResponse{
		ID:           story.ID,
		UserID:       story.UserID,
		Title:        story.Title,
		Status:       story.Status,
		Thumbnail:    story.Thumbnail,
		Premise:      story.Premise,
		TotalSteps:   story.TotalSteps,
		Chapters:     count,
		ErrorDetails: story.ErrorDetails,
		CreatedAt:    story.CreatedAt,
		UpdatedAt:    story.UpdatedAt,
	})
}

func (h *StoryHandler) listChapters(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if _, err := h.stories.GetStory(c.Request.Context(), id); err != nil {
		h.handleError(c, err)
		return
	}
	chapters, err := h.stories.ListChapters(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	out := make([]ChapterResponse, 0, len(chapters))
	for i := range chapters {
		out = append(out, toChapterResponse(&chapters[i]))
	}
	c.JSON(http.StatusOK, out)
}

func (h *StoryHandler) getChapter(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil || number < 1 {
		c.JSON(http.StatusBadRequest, APIError{Message: "chapter number must be a positive integer"})
		return
	}
	ch, err := h.stories.GetChapter(c.Request.Context(), id, number)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, toChapterResponse(ch))
}

func (h *StoryHandler) cancelStory(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.cancels.Cancel(c.Request.Context(), id); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (h *StoryHandler) handleError(c *gin.Context, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		c.JSON(http.StatusNotFound, APIError{Message: "story not found"})
		return
	}
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, APIError{Message: "internal server error"})
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, APIError{Message: "story id must be a positive integer"})
		return 0, false
	}
	return id, true
}

func toChapterResponse(ch *domain.Chapter) ChapterResponse {
	return ChapterResponse{
		Number:         ch.Number,
		Metadata:       ch.Metadata,
		RawText:        ch.RawText,
		Image:          ch.ImageRef,
		ExerciseResult: ch.ExerciseResult,
		CreatedAt:      ch.CreatedAt,
	}
}
