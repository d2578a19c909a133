package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/safa0/google-rangerz/internal/domain"
)

// Config содержит конфигурацию генератора историй.
type Config struct {
	Env        string `envconfig:"ENV" default:"development"`
	SecretsDir string `envconfig:"SECRETS_DIR" default:"/run/secrets"`

	// Группы читаются отдельно, чтобы ключи не получали префикс имени поля.
	Log        LogConfig          `ignored:"true"`
	Generation GenerationConfig   `ignored:"true"`
	Text       TextServiceConfig  `ignored:"true"`
	Image      ImageServiceConfig `ignored:"true"`
	DB         DBConfig           `ignored:"true"`
	Redis      RedisConfig        `ignored:"true"`
	RabbitMQ   RabbitMQConfig     `ignored:"true"`
	Assets     AssetsConfig       `ignored:"true"`
	Metrics    MetricsConfig      `ignored:"true"`
	HTTP       HTTPConfig         `ignored:"true"`
	Worker     WorkerConfig       `ignored:"true"`
}

// LogConfig настройки zap логгера.
type LogConfig struct {
	Level      string `envconfig:"LOG_LEVEL" default:"info"`
	Encoding   string `envconfig:"LOG_ENCODING" default:"json"`
	OutputPath string `envconfig:"LOG_OUTPUT" default:""`
	Service    string `envconfig:"LOG_SERVICE_NAME" default:"storygen"`
}

// GenerationConfig параметры сессии генерации и политики повторов.
type GenerationConfig struct {
	TotalSteps     int           `envconfig:"STORY_TOTAL_STEPS" default:"5"`
	ExerciseTypes  []string      `envconfig:"STORY_EXERCISE_TYPES" default:"fill_in_blank,comprehension_text,multiple_choice,matching"`
	ChoicePolicy   string        `envconfig:"STORY_CHOICE_POLICY" default:"random"`
	MaxAttempts    int           `envconfig:"GEN_MAX_ATTEMPTS" default:"3"`
	BaseRetryDelay time.Duration `envconfig:"GEN_BASE_RETRY_DELAY" default:"1s"`
	MaxRetryDelay  time.Duration `envconfig:"GEN_MAX_RETRY_DELAY" default:"30s"`
	Thumbnails     bool          `envconfig:"STORY_THUMBNAILS" default:"true"`
	ThumbnailWidth int           `envconfig:"STORY_THUMBNAIL_WIDTH" default:"320"`
}

// TextServiceConfig сервис генерации текста: http (свой сервис), openai или ollama.
type TextServiceConfig struct {
	Backend     string        `envconfig:"TEXT_BACKEND" default:"http"`
	BaseURL     string        `envconfig:"TEXT_BASE_URL" default:"http://localhost:8000"`
	Model       string        `envconfig:"TEXT_MODEL" default:"gemini-2.0-flash-lite-001"`
	Timeout     time.Duration `envconfig:"TEXT_TIMEOUT" default:"120s"`
	Temperature float32       `envconfig:"TEXT_TEMPERATURE" default:"0.8"`
	MaxTokens   int           `envconfig:"TEXT_MAX_TOKENS" default:"1500"`
	// Секрет, без envconfig тега
	APIKey string `ignored:"true"`
}

// ImageServiceConfig сервис генерации картинок: http или openai.
type ImageServiceConfig struct {
	Backend     string        `envconfig:"IMAGE_BACKEND" default:"http"`
	BaseURL     string        `envconfig:"IMAGE_BASE_URL" default:"http://localhost:8000"`
	Model       string        `envconfig:"IMAGE_MODEL" default:""`
	Size        string        `envconfig:"IMAGE_SIZE" default:"1024x1024"`
	StyleSuffix string        `envconfig:"IMAGE_STYLE_SUFFIX" default:", children's book illustration, soft colors"`
	Timeout     time.Duration `envconfig:"IMAGE_TIMEOUT" default:"90s"`
	APIKey      string        `ignored:"true"`
}

// DBConfig настройки PostgreSQL. Пустой DB_HOST - хранилище в памяти.
type DBConfig struct {
	Host        string        `envconfig:"DB_HOST" default:""`
	Port        string        `envconfig:"DB_PORT" default:"5432"`
	User        string        `envconfig:"DB_USER" default:"postgres"`
	Name        string        `envconfig:"DB_NAME" default:"rangerz"`
	SSLMode     string        `envconfig:"DB_SSL_MODE" default:"disable"`
	MaxConns    int           `envconfig:"DB_MAX_CONNECTIONS" default:"10"`
	IdleTimeout time.Duration `envconfig:"DB_MAX_IDLE" default:"5m"`
	Migrate     bool          `envconfig:"DB_MIGRATE" default:"true"`
	Password    string        `ignored:"true"`
}

// RedisConfig реестр отмены. Пустой адрес - реестр в памяти.
type RedisConfig struct {
	Addr      string        `envconfig:"REDIS_ADDR" default:""`
	DB        int           `envconfig:"REDIS_DB" default:"0"`
	CancelTTL time.Duration `envconfig:"REDIS_CANCEL_TTL" default:"24h"`
	Password  string        `ignored:"true"`
}

// RabbitMQConfig очереди задач и событий. Пустой URL - брокер не используется.
type RabbitMQConfig struct {
	URL        string `envconfig:"RABBITMQ_URL" default:""`
	TaskQueue  string `envconfig:"RABBITMQ_TASK_QUEUE" default:"story_generation_tasks"`
	EventQueue string `envconfig:"RABBITMQ_EVENT_QUEUE" default:"story_events"`
	Prefetch   int    `envconfig:"RABBITMQ_PREFETCH" default:"2"`
}

// AssetsConfig хранилище картинок глав: local или gcs.
type AssetsConfig struct {
	Backend         string `envconfig:"ASSETS_BACKEND" default:"local"`
	LocalDir        string `envconfig:"ASSETS_LOCAL_DIR" default:"./data/images"`
	PublicBaseURL   string `envconfig:"ASSETS_PUBLIC_BASE_URL" default:"/images"`
	GCSBucket       string `envconfig:"ASSETS_GCS_BUCKET" default:""`
	CredentialsFile string `envconfig:"ASSETS_GCS_CREDENTIALS_FILE" default:""`
}

// MetricsConfig Pushgateway для пакетных запусков.
type MetricsConfig struct {
	PushgatewayURL string        `envconfig:"PUSHGATEWAY_URL" default:""`
	PushInterval   time.Duration `envconfig:"PUSH_INTERVAL" default:"15s"`
}

// HTTPConfig служебный HTTP сервер (health, metrics, статус историй).
type HTTPConfig struct {
	Port           string   `envconfig:"HTTP_PORT" default:"8085"`
	AllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// WorkerConfig параллелизм независимых сессий.
type WorkerConfig struct {
	Concurrency int `envconfig:"WORKER_CONCURRENCY" default:"2"`
}

// Load загружает .env (если есть), переменные окружения и секреты.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("ошибка загрузки .env: %w", err)
	}

	var cfg Config
	groups := []interface{}{
		&cfg, &cfg.Log, &cfg.Generation, &cfg.Text, &cfg.Image, &cfg.DB,
		&cfg.Redis, &cfg.RabbitMQ, &cfg.Assets, &cfg.Metrics, &cfg.HTTP, &cfg.Worker,
	}
	for _, group := range groups {
		if err := envconfig.Process("", group); err != nil {
			return nil, fmt.Errorf("ошибка загрузки конфигурации: %w", err)
		}
	}

	secrets := NewSecretReader(cfg.SecretsDir)
	cfg.Text.APIKey = secrets.Optional("text_api_key", "TEXT_API_KEY")
	cfg.Image.APIKey = secrets.Optional("image_api_key", "IMAGE_API_KEY")
	cfg.DB.Password = secrets.Optional("db_password", "DB_PASSWORD")
	cfg.Redis.Password = secrets.Optional("redis_password", "REDIS_PASSWORD")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет согласованность настроек.
func (c *Config) Validate() error {
	if c.Generation.TotalSteps <= 0 {
		return fmt.Errorf("STORY_TOTAL_STEPS must be positive, got %d", c.Generation.TotalSteps)
	}
	if c.Generation.MaxAttempts <= 0 {
		return fmt.Errorf("GEN_MAX_ATTEMPTS must be positive, got %d", c.Generation.MaxAttempts)
	}
	if _, err := c.ExerciseTypes(); err != nil {
		return err
	}
	switch c.Text.Backend {
	case "http", "ollama":
	case "openai":
		if c.Text.APIKey == "" {
			return errors.New("TEXT_API_KEY is required for the openai text backend")
		}
	default:
		return fmt.Errorf("unknown TEXT_BACKEND '%s'", c.Text.Backend)
	}
	switch c.Image.Backend {
	case "http":
	case "openai":
		if c.Image.APIKey == "" {
			return errors.New("IMAGE_API_KEY is required for the openai image backend")
		}
	default:
		return fmt.Errorf("unknown IMAGE_BACKEND '%s'", c.Image.Backend)
	}
	switch c.Assets.Backend {
	case "local":
	case "gcs":
		if c.Assets.GCSBucket == "" {
			return errors.New("ASSETS_GCS_BUCKET is required for the gcs assets backend")
		}
	default:
		return fmt.Errorf("unknown ASSETS_BACKEND '%s'", c.Assets.Backend)
	}
	return nil
}

// ExerciseTypes возвращает типы упражнений в порядке ротации.
func (c *Config) ExerciseTypes() ([]domain.ExerciseType, error) {
	out := make([]domain.ExerciseType, 0, len(c.Generation.ExerciseTypes))
	for _, raw := range c.Generation.ExerciseTypes {
		switch t := domain.ExerciseType(strings.TrimSpace(raw)); t {
		case domain.ExerciseFillInBlank, domain.ExerciseComprehensionText, domain.ExerciseMultipleChoice, domain.ExerciseMatching:
			out = append(out, t)
		case "":
		default:
			return nil, fmt.Errorf("unknown exercise type '%s'", raw)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("STORY_EXERCISE_TYPES must contain at least one exercise type")
	}
	return out, nil
}

// UsePostgres - задан ли PostgreSQL.
func (c *Config) UsePostgres() bool { return c.DB.Host != "" }

// GetDSN возвращает строку подключения (DSN) для PostgreSQL.
func (c *Config) GetDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name, c.DB.SSLMode)
}

// MaskedDSN возвращает DSN с замаскированным паролем для логирования.
func (c *Config) MaskedDSN() string {
	dsn := c.GetDSN()
	parts := strings.Split(dsn, "@")
	if len(parts) != 2 {
		return "[invalid dsn format]"
	}
	userInfo := strings.Split(parts[0], ":")
	if len(userInfo) >= 3 {
		userInfo[len(userInfo)-1] = "********"
	}
	return strings.Join(userInfo, ":") + "@" + parts[1]
}
