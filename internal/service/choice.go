package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/safa0/google-rangerz/internal/domain"
)

// RandomChoice выбирает вариант равновероятно.
type RandomChoice struct{}

func (RandomChoice) Select(_ context.Context, options []string) (string, error) {
	if len(options) == 0 {
		return "", domain.ErrNoOptionsAvailable
	}
	return options[rand.IntN(len(options))], nil
}

// FirstChoice всегда выбирает первый вариант. Удобен для воспроизводимых прогонов.
type FirstChoice struct{}

func (FirstChoice) Select(_ context.Context, options []string) (string, error) {
	if len(options) == 0 {
		return "", domain.ErrNoOptionsAvailable
	}
	return options[0], nil
}

// ChoiceFunc адаптер для произвольной политики, например выбора настоящего ученика.
type ChoiceFunc func(ctx context.Context, options []string) (string, error)

func (f ChoiceFunc) Select(ctx context.Context, options []string) (string, error) {
	if len(options) == 0 {
		return "", domain.ErrNoOptionsAvailable
	}
	return f(ctx, options)
}

var (
	_ ChoiceSelector = RandomChoice{}
	_ ChoiceSelector = FirstChoice{}
	_ ChoiceSelector = ChoiceFunc(nil)
)

// NewChoiceSelector политика по имени из конфигурации: random или first.
func NewChoiceSelector(policy string) (ChoiceSelector, error) {
	switch strings.ToLower(strings.TrimSpace(policy)) {
	case "", "random":
		return RandomChoice{}, nil
	case "first":
		return FirstChoice{}, nil
	default:
		return nil, fmt.Errorf("unknown choice policy '%s'", policy)
	}
}
