package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"
)

const jobName = "storygen_worker"

// Metrics метрики генератора историй в собственном реестре.
// Все методы безопасны для nil получателя, чтобы метрики можно было не подключать в тестах.
type Metrics struct {
	registry *prometheus.Registry

	sessionsStarted  prometheus.Counter
	sessionsFinished *prometheus.CounterVec
	turns            *prometheus.CounterVec
	turnDuration     prometheus.Histogram
	retries          *prometheus.CounterVec
	serviceCalls     *prometheus.CounterVec
	serviceDuration  *prometheus.HistogramVec
	chapters         prometheus.Counter
	tokensUsed       *prometheus.CounterVec

	mu     sync.Mutex
	pusher *push.Pusher
	logger *zap.Logger
}

// New создает реестр и регистрирует в нем метрики.
func New(logger *zap.Logger) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(registry)

	return &Metrics{
		registry: registry,
		logger:   logger.Named("Metrics"),
		sessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "storygen_sessions_started_total",
			Help: "Total number of story sessions that entered the running state.",
		}),
		sessionsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "storygen_sessions_finished_total",
			Help: "Total number of finished story sessions, partitioned by status and failure reason.",
		}, []string{"status", "reason"}),
		turns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "storygen_turns_total",
			Help: "Total number of narrative turns, partitioned by result.",
		}, []string{"result"}),
		turnDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "storygen_turn_duration_seconds",
			Help:    "Duration of a single narrative turn including retries.",
			Buckets: []float64{1, 2.5, 5, 10, 20, 40, 80, 160},
		}),
		retries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "storygen_retries_total",
			Help: "Total number of retried turns, partitioned by failure reason.",
		}, []string{"reason"}),
		serviceCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "storygen_service_calls_total",
			Help: "Total number of generation service calls, partitioned by service and status.",
		}, []string{"service", "status"}),
		serviceDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storygen_service_call_duration_seconds",
			Help:    "Duration of generation service calls.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"service"}),
		chapters: f.NewCounter(prometheus.CounterOpts{
			Name: "storygen_chapters_persisted_total",
			Help: "Total number of persisted chapters.",
		}),
		tokensUsed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "storygen_ai_tokens_used_total",
			Help: "Total number of AI tokens used, partitioned by model and kind.",
		}, []string{"model", "kind"}),
	}
}

// Registry нужен для тестов и для /metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler отдает метрики реестра в формате Prometheus.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.sessionsStarted.Inc()
}

// SessionFinished reason пустой для успешных сессий.
func (m *Metrics) SessionFinished(status, reason string) {
	if m == nil {
		return
	}
	m.sessionsFinished.WithLabelValues(status, reason).Inc()
}

func (m *Metrics) TurnCompleted(d time.Duration) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues("success").Inc()
	m.turnDuration.Observe(d.Seconds())
}

func (m *Metrics) TurnFailed(reason string) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(reason).Inc()
}

func (m *Metrics) TurnRetried(reason string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(reason).Inc()
}

// ServiceCall service: text | image.
func (m *Metrics) ServiceCall(service string, err error, d time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.serviceCalls.WithLabelValues(service, status).Inc()
	m.serviceDuration.WithLabelValues(service).Observe(d.Seconds())
}

func (m *Metrics) ChapterPersisted() {
	if m == nil {
		return
	}
	m.chapters.Inc()
}

// TokensUsed учитывает токены запроса и ответа модели.
func (m *Metrics) TokensUsed(model string, prompt, completion int) {
	if m == nil {
		return
	}
	m.tokensUsed.WithLabelValues(model, "prompt").Add(float64(prompt))
	m.tokensUsed.WithLabelValues(model, "completion").Add(float64(completion))
}

// InitPusher настраивает отправку метрик в Pushgateway и делает пробный push.
func (m *Metrics) InitPusher(pushgatewayURL string) error {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
		m.logger.Warn("Could not get hostname", zap.Error(err))
	}
	instanceID := fmt.Sprintf("%s-%d", hostname, os.Getpid())

	m.logger.Info("Initializing Pushgateway pusher",
		zap.String("job", jobName), zap.String("instance", instanceID), zap.String("url", pushgatewayURL))

	p := push.New(pushgatewayURL, jobName).Gatherer(m.registry).Grouping("instance", instanceID)
	if err := p.Push(); err != nil {
		return fmt.Errorf("could not push initial metrics to Pushgateway: %w", err)
	}
	m.mu.Lock()
	m.pusher = p
	m.mu.Unlock()
	return nil
}

// StartPusher периодически отправляет метрики, пока не закроется done.
func (m *Metrics) StartPusher(interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = m.Push()
			case <-done:
				return
			}
		}
	}()
	m.logger.Info("Started periodic pusher", zap.Duration("interval", interval))
}

// Push отправляет текущие значения в Pushgateway.
func (m *Metrics) Push() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	p := m.pusher
	m.mu.Unlock()
	if p == nil {
		return errors.New("pusher not initialized")
	}
	if err := p.Push(); err != nil {
		m.logger.Error("Error pushing metrics to Pushgateway", zap.Error(err))
		return err
	}
	return nil
}

// Cleanup удаляет метрики инстанса из Pushgateway.
func (m *Metrics) Cleanup() {
	if m == nil {
		return
	}
	m.mu.Lock()
	p := m.pusher
	m.mu.Unlock()
	if p == nil {
		return
	}
	if err := p.Delete(); err != nil {
		m.logger.Error("Error deleting metrics from Pushgateway", zap.Error(err))
		return
	}
	m.logger.Info("Deleted metrics from Pushgateway")
}
