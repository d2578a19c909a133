package domain

import (
	"errors"
	"fmt"
	"strings"
)

// SkillLevel уровень владения языком ученика.
type SkillLevel string

const (
	SkillBeginner     SkillLevel = "beginner"
	SkillIntermediate SkillLevel = "intermediate"
	SkillAdvanced     SkillLevel = "advanced"
)

// ParseSkillLevel приводит строку к SkillLevel (регистр не важен).
func ParseSkillLevel(s string) (SkillLevel, error) {
	switch lvl := SkillLevel(strings.ToLower(strings.TrimSpace(s))); lvl {
	case SkillBeginner, SkillIntermediate, SkillAdvanced:
		return lvl, nil
	default:
		return "", fmt.Errorf("%w: unknown skill level '%s'", ErrInvalidProfile, s)
	}
}

// ErrInvalidProfile - профиль ученика не прошел валидацию.
var ErrInvalidProfile = errors.New("invalid learner profile")

// LearnerProfile неизменяемые входные данные сессии.
type LearnerProfile struct {
	Name             string     `json:"name"`
	Age              int        `json:"age"`
	SkillLevel       SkillLevel `json:"skill_level"`
	Interests        []string   `json:"interests"`
	ComfortableWords []string   `json:"comfortable_words"`
	StrugglingWords  []string   `json:"struggling_words"`
}

// Validate проверяет обязательные поля профиля. Уровень должен быть в каноническом виде.
func (p LearnerProfile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProfile)
	}
	if p.Age <= 0 {
		return fmt.Errorf("%w: age must be positive, got %d", ErrInvalidProfile, p.Age)
	}
	lvl, err := ParseSkillLevel(string(p.SkillLevel))
	if err != nil {
		return err
	}
	if lvl != p.SkillLevel {
		return fmt.Errorf("%w: skill level '%s' is not canonical, use '%s'", ErrInvalidProfile, p.SkillLevel, lvl)
	}
	return nil
}

// Normalize возвращает копию профиля с каноническим уровнем и очищенными полями, затем проверяет ее.
func (p LearnerProfile) Normalize() (LearnerProfile, error) {
	out := p
	out.Name = strings.TrimSpace(p.Name)
	if lvl, err := ParseSkillLevel(string(p.SkillLevel)); err == nil {
		out.SkillLevel = lvl
	}
	out.Interests = compactWords(p.Interests)
	out.ComfortableWords = compactWords(p.ComfortableWords)
	out.StrugglingWords = compactWords(p.StrugglingWords)
	if err := out.Validate(); err != nil {
		return LearnerProfile{}, err
	}
	return out, nil
}

func compactWords(words []string) []string {
	if words == nil {
		return nil
	}
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.TrimSpace(w); w != "" {
			out = append(out, w)
		}
	}
	return out
}

// InterestsString склеивает интересы так, как их ожидает сервис генерации.
func (p LearnerProfile) InterestsString() string {
	return strings.Join(p.Interests, ", ")
}
