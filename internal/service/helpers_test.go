package service_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/safa0/google-rangerz/internal/service"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: 200, G: 80, B: 20, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func pngBase64(t *testing.T) string {
	return base64.StdEncoding.EncodeToString(pngBytes(t, 64, 48))
}

// narrative собирает ответ сервиса генерации с вариантами opts.
func narrative(text string, opts ...string) string {
	var sb strings.Builder
	sb.WriteString("<img>A fox in a snowy forest</img>\n")
	fmt.Fprintf(&sb, "<txt>%s</txt>\n", text)
	sb.WriteString("<opt>What next?")
	for _, o := range opts {
		fmt.Fprintf(&sb, " [%s]", o)
	}
	sb.WriteString("</opt>\n")
	sb.WriteString("<exe>Fill in: the fox is ___ [fast] [slow]</exe>")
	return sb.String()
}

// noSleep пауза без ожидания, считает вызовы.
type noSleep struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *noSleep) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *noSleep) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.waits)
}

func fastRetry(attempts int, s *noSleep) service.RetryPolicy {
	return service.WithSleep(service.RetryPolicy{MaxAttempts: attempts, BaseDelay: time.Second, MaxDelay: 10 * time.Second}, s.sleep)
}

func testLogger() *zap.Logger { return zap.NewNop() }
