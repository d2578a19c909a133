package assets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gosimple/slug"
)

// ErrInvalidKey ключ пустой или выходит за пределы хранилища.
var ErrInvalidKey = errors.New("invalid asset key")

// Store хранилище картинок глав и обложек историй.
type Store interface {
	// Put сохраняет данные под ключом и возвращает ссылку для клиента.
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// Delete удаляет объект. Отсутствие объекта не ошибка.
	Delete(ctx context.Context, key string) error
}

// ChapterKey ключ картинки главы: stories/{id}/chapter_{n}.{ext}
func ChapterKey(storyID int64, number int, ext string) string {
	return fmt.Sprintf("stories/%d/chapter_%d.%s", storyID, number, strings.TrimPrefix(ext, "."))
}

// ThumbnailKey ключ обложки истории, человекочитаемый по названию.
func ThumbnailKey(storyID int64, title string) string {
	s := slug.Make(title)
	if s == "" {
		s = "story"
	}
	return fmt.Sprintf("stories/%d/thumbnail-%s.jpg", storyID, s)
}

func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return fmt.Errorf("%w: '%s'", ErrInvalidKey, key)
	}
	return nil
}

func joinURL(base, key string) string {
	if base == "" {
		return key
	}
	return strings.TrimSuffix(base, "/") + "/" + key
}
