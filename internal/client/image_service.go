package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/safa0/google-rangerz/internal/domain"
)

const endpointGenerateImage = "/generate_image"

type generateImageRequest struct {
	Description string `json:"description"`
}

type generateImageResponse struct {
	envelope
	ImageBase64 string `json:"image_base64"`
}

// ImageServiceClient клиент сервиса генерации картинок.
type ImageServiceClient struct {
	envelopeClient
}

// NewImageServiceClient создает клиента. timeout - таймаут одного вызова.
func NewImageServiceClient(baseURL string, timeout time.Duration, logger *zap.Logger) *ImageServiceClient {
	return &ImageServiceClient{
		envelopeClient: newEnvelopeClient(baseURL, timeout, logger.Named("ImageServiceClient")),
	}
}

// GenerateImage возвращает картинку в base64 как есть; декодирование - забота вызывающего.
func (c *ImageServiceClient) GenerateImage(ctx context.Context, description string) (string, error) {
	var resp generateImageResponse
	if err := c.post(ctx, endpointGenerateImage, generateImageRequest{Description: description}, &resp); err != nil {
		return "", &domain.ImageServiceError{Err: err}
	}
	if strings.TrimSpace(resp.ImageBase64) == "" {
		c.logger.Warn("Image service returned success without image")
		return "", &domain.ImageServiceError{Err: fmt.Errorf("%w: empty image_base64", ErrBadEnvelope)}
	}
	return resp.ImageBase64, nil
}
