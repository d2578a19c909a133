package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SecretReader читает секреты из файлов Docker Secrets.
type SecretReader struct {
	dir string
}

func NewSecretReader(dir string) SecretReader {
	return SecretReader{dir: dir}
}

// Read читает обязательный секрет. Пустой файл - ошибка.
func (r SecretReader) Read(name string) (string, error) {
	filePath := filepath.Join(r.dir, name)
	secretBytes, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file %s: %w", filePath, err)
	}
	secret := strings.TrimSpace(string(secretBytes))
	if secret == "" {
		return "", fmt.Errorf("secret file %s is empty", filePath)
	}
	return secret, nil
}

// Optional читает секрет из файла, иначе из переменной окружения envKey.
func (r SecretReader) Optional(name, envKey string) string {
	if secret, err := r.Read(name); err == nil {
		return secret
	}
	return strings.TrimSpace(os.Getenv(envKey))
}
