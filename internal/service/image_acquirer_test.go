package service_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/jpeg"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/safa0/google-rangerz/internal/domain"
	"github.com/safa0/google-rangerz/internal/mocks"
	"github.com/safa0/google-rangerz/internal/service"
)

func TestDecodeImage(t *testing.T) {
	raw := pngBytes(t, 8, 8)
	std := base64.StdEncoding.EncodeToString(raw)

	var jpg bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpg, image.NewGray(image.Rect(0, 0, 8, 8)), nil))

	tests := []struct {
		name       string
		payload    string
		wantFormat string
		wantMIME   string
	}{
		{name: "png", payload: std, wantFormat: "png", wantMIME: "image/png"},
		{name: "unpadded", payload: base64.RawStdEncoding.EncodeToString(raw), wantFormat: "png", wantMIME: "image/png"},
		{name: "data url", payload: "data:image/png;base64," + std, wantFormat: "png", wantMIME: "image/png"},
		{name: "jpeg", payload: base64.StdEncoding.EncodeToString(jpg.Bytes()), wantFormat: "jpg", wantMIME: "image/jpeg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := service.DecodeImage(tt.payload)
			require.NoError(t, err)
			assert.Equal(t, tt.wantFormat, img.Format)
			assert.Equal(t, tt.wantMIME, img.MIMEType)
			assert.NotEmpty(t, img.Data)
		})
	}
}

func TestDecodeImage_Rejects(t *testing.T) {
	for name, payload := range map[string]string{
		"empty":        "",
		"not base64":   "this is not base64 at all!",
		"not an image": base64.StdEncoding.EncodeToString([]byte("plain text, definitely not a picture")),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := service.DecodeImage(payload)
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrImageDecode)
			assert.False(t, domain.IsRetryable(err))
		})
	}
}

func TestImageAcquirer_AppendsStyleSuffix(t *testing.T) {
	gen := mocks.NewMockImageGenerator(t)
	gen.On("GenerateImage", mock.Anything, "A fox, watercolor").Return(pngBase64(t), nil).Once()

	a := service.NewImageAcquirer(gen, ", watercolor", time.Second, nil, testLogger())
	img, err := a.Acquire(context.Background(), "  A fox ")
	require.NoError(t, err)
	assert.Equal(t, "png", img.Format)
}

func TestImageAcquirer_WrapsServiceErrors(t *testing.T) {
	gen := mocks.NewMockImageGenerator(t)
	gen.On("GenerateImage", mock.Anything, mock.Anything).Return("", errors.New("connection reset")).Once()

	a := service.NewImageAcquirer(gen, "", 0, nil, testLogger())
	_, err := a.Acquire(context.Background(), "A fox")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrImageService)
	assert.True(t, domain.IsRetryable(err))
}

func TestImageAcquirer_Timeout(t *testing.T) {
	gen := mocks.NewMockImageGenerator(t)
	gen.On("GenerateImage", mock.Anything, mock.Anything).
		Return("", func(ctx context.Context, _ string) error {
			<-ctx.Done()
			return ctx.Err()
		}).Once()

	a := service.NewImageAcquirer(gen, "", 20*time.Millisecond, nil, testLogger())
	_, err := a.Acquire(context.Background(), "A fox")
	assert.ErrorIs(t, err, domain.ErrImageService)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
