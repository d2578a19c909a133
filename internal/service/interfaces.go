package service

import (
	"context"

	"github.com/safa0/google-rangerz/internal/domain"
)

// TextGenerator сервис генерации текста истории.
// Реализации: client.TextServiceClient, ai.OpenAITextGenerator, ai.OllamaTextGenerator.
type TextGenerator interface {
	// InitializeStory возвращает название и общий замысел новой истории.
	InitializeStory(ctx context.Context, req domain.StoryInitRequest) (domain.StoryInit, error)
	// ContinueStory возвращает сырой ответ с разметкой <img>/<txt>/<opt>/<exe>.
	ContinueStory(ctx context.Context, req domain.GenerationRequest) (string, error)
}

// ImageGenerator сервис генерации картинок. Возвращает картинку в base64 как есть.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, description string) (string, error)
}

// ChoiceSelector выбирает вариант продолжения истории из предложенных.
type ChoiceSelector interface {
	Select(ctx context.Context, options []string) (string, error)
}

// ExercisePicker выбирает тип упражнения для хода.
type ExercisePicker interface {
	Pick(progression int) domain.ExerciseType
}
