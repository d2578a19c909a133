package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const statusSuccess = "success"

// maxResponseBytes ограничение на тело ответа (картинки в base64 бывают крупными).
const maxResponseBytes = 32 << 20

var (
	// ErrUnsuccessfulStatus сервис ответил конвертом со статусом, отличным от success.
	ErrUnsuccessfulStatus = errors.New("service returned unsuccessful status")
	// ErrBadEnvelope тело ответа не разбирается как JSON конверт.
	ErrBadEnvelope = errors.New("malformed response envelope")
)

// envelope общий конверт ответов сервисов генерации.
type envelope struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func (e envelope) status() envelope { return e }

// envelopeClient выполняет POST запросы с JSON телом и разбирает конверт.
type envelopeClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func newEnvelopeClient(baseURL string, timeout time.Duration, logger *zap.Logger) envelopeClient {
	return envelopeClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// post отправляет payload на endpoint и декодирует ответ в out.
// out должен встраивать envelope.
func (c envelopeClient) post(ctx context.Context, endpoint string, payload any, out interface{ status() envelope }) error {
	log := c.logger.With(zap.String("endpoint", endpoint))

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request payload: %w", err)
	}

	url := c.baseURL + endpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error("Failed to execute request", zap.Duration("duration", time.Since(start)), zap.Error(err))
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if resp.StatusCode != http.StatusOK {
		log.Error("Service returned non-OK status",
			zap.Int("status_code", resp.StatusCode),
			zap.ByteString("response_body", truncate(respBody, 512)),
		)
		return fmt.Errorf("service returned status %d: %s", resp.StatusCode, truncate(respBody, 256))
	}
	if readErr != nil {
		log.Error("Failed to read response body", zap.Error(readErr))
		return fmt.Errorf("failed to read response body: %w", readErr)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		log.Error("Failed to decode response envelope", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	if env := out.status(); env.Status != statusSuccess {
		log.Warn("Service returned unsuccessful status", zap.String("status", env.Status), zap.String("message", env.Message))
		return fmt.Errorf("%w: status '%s': %s", ErrUnsuccessfulStatus, env.Status, env.Message)
	}
	log.Debug("Service responded", zap.Duration("duration", time.Since(start)), zap.Int("size_bytes", len(respBody)))
	return nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
