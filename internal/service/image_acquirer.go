package service

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/h2non/filetype"
	"go.uber.org/zap"

	"github.com/safa0/google-rangerz/internal/domain"
	"github.com/safa0/google-rangerz/internal/metrics"
)

// ImageAcquirer получает картинку по описанию и декодирует ее.
type ImageAcquirer struct {
	generator   ImageGenerator
	styleSuffix string
	timeout     time.Duration
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewImageAcquirer styleSuffix дописывается к каждому описанию; timeout 0 - без своего таймаута.
func NewImageAcquirer(generator ImageGenerator, styleSuffix string, timeout time.Duration, m *metrics.Metrics, logger *zap.Logger) *ImageAcquirer {
	return &ImageAcquirer{
		generator:   generator,
		styleSuffix: styleSuffix,
		timeout:     timeout,
		metrics:     m,
		logger:      logger.Named("ImageAcquirer"),
	}
}

// Acquire ошибки вызова сервиса - *domain.ImageServiceError (повторяемые),
// не base64 или не картинка - *domain.ImageDecodeError.
func (a *ImageAcquirer) Acquire(ctx context.Context, prompt string) (*domain.GeneratedImage, error) {
	description := strings.TrimSpace(prompt) + a.styleSuffix
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	start := time.Now()
	payload, err := a.generator.GenerateImage(ctx, description)
	a.metrics.ServiceCall("image", err, time.Since(start))
	if err != nil {
		var svcErr *domain.ImageServiceError
		if errors.As(err, &svcErr) {
			return nil, err
		}
		return nil, &domain.ImageServiceError{Err: err}
	}

	img, err := DecodeImage(payload)
	if err != nil {
		a.logger.Warn("Image payload rejected", zap.Int("payload_len", len(payload)), zap.Error(err))
		return nil, err
	}
	a.logger.Debug("Image acquired", zap.String("format", img.Format), zap.Int("size_bytes", len(img.Data)))
	return img, nil
}

// DecodeImage разбирает base64 (с data: префиксом или без, с паддингом или без)
// и проверяет, что внутри известный формат картинки.
func DecodeImage(payload string) (*domain.GeneratedImage, error) {
	payload = strings.TrimSpace(payload)
	if strings.HasPrefix(payload, "data:") {
		if i := strings.Index(payload, ","); i >= 0 {
			payload = payload[i+1:]
		}
	}
	if payload == "" {
		return nil, &domain.ImageDecodeError{Reason: "empty payload"}
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		var rawErr error
		data, rawErr = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if rawErr != nil {
			return nil, &domain.ImageDecodeError{Reason: "payload is not valid base64", Err: err}
		}
	}

	kind, err := filetype.Match(data)
	if err != nil {
		return nil, &domain.ImageDecodeError{Reason: "failed to detect file type", Err: err}
	}
	if kind == filetype.Unknown || !filetype.IsImage(data) {
		return nil, &domain.ImageDecodeError{Reason: "decoded bytes are not a known image format"}
	}
	return &domain.GeneratedImage{Data: data, Format: kind.Extension, MIMEType: kind.MIME.Value}, nil
}
