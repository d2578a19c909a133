package domain

import (
	"errors"
	"fmt"
)

// Ошибки генерации историй.
var (
	// Внешние сервисы (повторяемые)
	ErrTextService  = errors.New("text generation service error")
	ErrImageService = errors.New("image generation service error")

	// Нарушение контракта содержимого (не повторяются)
	ErrMalformedResponse  = errors.New("malformed generation response")
	ErrImageDecode        = errors.New("image decode error")
	ErrNoOptionsAvailable = errors.New("no options available")

	// Нарушение порядка глав (фатально для сессии)
	ErrChapterOrder = errors.New("chapter order violation")

	ErrNotFound       = errors.New("resource not found")
	ErrStoryCancelled = errors.New("story generation cancelled")
)

// TextServiceError сбой вызова сервиса генерации текста.
type TextServiceError struct {
	Op  string
	Err error
}

func (e *TextServiceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrTextService, e.Op, e.Err)
}

func (e *TextServiceError) Unwrap() []error { return []error{ErrTextService, e.Err} }

// ImageServiceError сбой вызова сервиса генерации картинок.
type ImageServiceError struct {
	Err error
}

func (e *ImageServiceError) Error() string {
	return fmt.Sprintf("%s: %v", ErrImageService, e.Err)
}

func (e *ImageServiceError) Unwrap() []error { return []error{ErrImageService, e.Err} }

// MalformedResponseError ответ сервиса не соответствует разметке <img>/<txt>/<opt>/<exe>.
type MalformedResponseError struct {
	Tag    string
	Reason string
}

func (e *MalformedResponseError) Error() string {
	if e.Tag == "" {
		return fmt.Sprintf("%s: %s", ErrMalformedResponse, e.Reason)
	}
	return fmt.Sprintf("%s: <%s>: %s", ErrMalformedResponse, e.Tag, e.Reason)
}

func (e *MalformedResponseError) Unwrap() error { return ErrMalformedResponse }

// ImageDecodeError полезная нагрузка не base64 или не картинка.
type ImageDecodeError struct {
	Reason string
	Err    error
}

func (e *ImageDecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrImageDecode, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrImageDecode, e.Reason)
}

func (e *ImageDecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrImageDecode}
	}
	return []error{ErrImageDecode, e.Err}
}

// ChapterOrderError попытка записать главу не со следующим номером.
type ChapterOrderError struct {
	StoryID  int64
	Expected int
	Got      int
}

func (e *ChapterOrderError) Error() string {
	return fmt.Sprintf("%s: story %d expects chapter %d, got %d", ErrChapterOrder, e.StoryID, e.Expected, e.Got)
}

func (e *ChapterOrderError) Unwrap() error { return ErrChapterOrder }

// IsRetryable - ошибку внешнего сервиса можно повторить.
// Ошибки разбора, декодирования и порядка глав не повторяются никогда.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrMalformedResponse) || errors.Is(err, ErrImageDecode) ||
		errors.Is(err, ErrChapterOrder) || errors.Is(err, ErrNoOptionsAvailable) {
		return false
	}
	return errors.Is(err, ErrTextService) || errors.Is(err, ErrImageService)
}

// FailureReason короткая метка ошибки для метрик и событий.
func FailureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrStoryCancelled):
		return "cancelled"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, ErrNoOptionsAvailable):
		return "no_options"
	case errors.Is(err, ErrImageDecode):
		return "image_decode"
	case errors.Is(err, ErrChapterOrder):
		return "chapter_order"
	case errors.Is(err, ErrTextService):
		return "text_service"
	case errors.Is(err, ErrImageService):
		return "image_service"
	default:
		return "internal"
	}
}
