package assets_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/safa0/google-rangerz/internal/assets"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: 200, G: 100, B: 50, A: 255})
	}
	buf := new(bytes.Buffer)
	require.NoError(t, png.Encode(buf, img))
	return buf.Bytes()
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "stories/7/chapter_3.png", assets.ChapterKey(7, 3, "png"))
	assert.Equal(t, "stories/7/chapter_3.jpg", assets.ChapterKey(7, 3, ".jpg"))
	assert.Equal(t, "stories/7/thumbnail-alex-och-raketen.jpg", assets.ThumbnailKey(7, "Alex och raketen!"))
	assert.Equal(t, "stories/7/thumbnail-story.jpg", assets.ThumbnailKey(7, "  "))
}

func TestLocalStore_PutDelete(t *testing.T) {
	root := t.TempDir()
	store, err := assets.NewLocalStore(root, "/images/", zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	ref, err := store.Put(ctx, "stories/1/chapter_1.png", []byte("data"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "/images/stories/1/chapter_1.png", ref)

	got, err := os.ReadFile(filepath.Join(root, "stories", "1", "chapter_1.png"))
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), got)

	require.NoError(t, store.Delete(ctx, "stories/1/chapter_1.png"))
	_, err = os.Stat(filepath.Join(root, "stories", "1", "chapter_1.png"))
	assert.True(t, os.IsNotExist(err))

	// повторное удаление не ошибка
	assert.NoError(t, store.Delete(ctx, "stories/1/chapter_1.png"))
}

func TestLocalStore_RejectsEscapingKeys(t *testing.T) {
	store, err := assets.NewLocalStore(t.TempDir(), "", zap.NewNop())
	require.NoError(t, err)

	for _, key := range []string{"", "/etc/passwd", "../x.png", "stories/../../x"} {
		_, err := store.Put(context.Background(), key, []byte("x"), "")
		assert.ErrorIs(t, err, assets.ErrInvalidKey, key)
	}
}

func TestMakeThumbnail(t *testing.T) {
	thumb, err := assets.MakeThumbnail(pngBytes(t, 640, 480), 320)
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(thumb))
	require.NoError(t, err)
	assert.Equal(t, 320, img.Bounds().Dx())
	assert.Equal(t, 240, img.Bounds().Dy())
}

func TestMakeThumbnail_SmallImageNotUpscaled(t *testing.T) {
	thumb, err := assets.MakeThumbnail(pngBytes(t, 100, 50), 320)
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(thumb))
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())
}

func TestMakeThumbnail_Errors(t *testing.T) {
	_, err := assets.MakeThumbnail([]byte("not an image"), 320)
	assert.Error(t, err)

	_, err = assets.MakeThumbnail(pngBytes(t, 10, 10), 0)
	assert.Error(t, err)
}
