package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config настройки логгера генератора.
type Config struct {
	Level      string // debug, info, warn, error
	Encoding   string // json или console
	OutputPath string // пусто - stdout
	Service    string // поле service в каждой записи
	Env        string // development включает caller и stacktrace
	Fields     map[string]string
}

func (c Config) development() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev" || env == "local"
}

// New создает zap.Logger. Неизвестный уровень заменяется на info, неизвестная кодировка на json.
func New(cfg Config) (*zap.Logger, error) {
	zapConfig := zap.Config{
		Level:             parseLevel(cfg.Level),
		Development:       cfg.development(),
		DisableCaller:     !cfg.development(),
		DisableStacktrace: !cfg.development(),
		Encoding:          parseEncoding(cfg.Encoding),
		EncoderConfig:     encoderConfig(),
		OutputPaths:       []string{outputPath(cfg.OutputPath)},
		ErrorOutputPaths:  []string{"stderr"},
		InitialFields:     initialFields(cfg),
	}
	if !zapConfig.Development {
		zapConfig.Sampling = &zap.SamplingConfig{Initial: 100, Thereafter: 100}
	}

	log, err := zapConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return log, nil
}

func parseLevel(raw string) zap.AtomicLevel {
	level := zap.NewAtomicLevel()
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "" {
		return level
	}
	if err := level.UnmarshalText([]byte(name)); err != nil {
		// логгера еще нет
		fmt.Fprintf(os.Stderr, "Invalid log level '%s', using 'info'. Error: %v\n", raw, err)
		level.SetLevel(zap.InfoLevel)
	}
	return level
}

func parseEncoding(raw string) string {
	if enc := strings.ToLower(raw); enc == "console" {
		return enc
	}
	return "json"
}

func encoderConfig() zapcore.EncoderConfig {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	enc.EncodeLevel = zapcore.CapitalLevelEncoder
	return enc
}

func outputPath(path string) string {
	if path == "" {
		return "stdout"
	}
	return path
}

func initialFields(cfg Config) map[string]interface{} {
	fields := make(map[string]interface{}, len(cfg.Fields)+2)
	for k, v := range cfg.Fields {
		fields[k] = v
	}
	service := cfg.Service
	if service == "" {
		service = "storygen"
	}
	fields["service"] = service
	if cfg.Env != "" {
		fields["env"] = cfg.Env
	}
	return fields
}

// ForStory добавляет к логгеру поля истории.
func ForStory(l *zap.Logger, storyID int64, userID string) *zap.Logger {
	return l.With(zap.Int64("story_id", storyID), zap.String("user_id", userID))
}

// ForTask добавляет к логгеру поля задания из очереди.
func ForTask(l *zap.Logger, taskID, userID string) *zap.Logger {
	return l.With(zap.String("task_id", taskID), zap.String("user_id", userID))
}
