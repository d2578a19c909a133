package domain

import "strings"

// DefaultModel модель, которую запрашиваем у сервиса генерации, если не задана другая.
const DefaultModel = "gemini-2.0-flash-lite-001"

// NarrativeResponse разобранный ответ сервиса генерации текста.
type NarrativeResponse struct {
	ImagePrompt  string
	Text         string
	OptionPrompt string
	Options      []string
	Exercise     string
}

// Exercise разобранный блок упражнения.
// Answer - первый вариант в скобках, так его трактует клиентское приложение.
type Exercise struct {
	Prompt  string   `json:"txt"`
	Options []string `json:"options"`
	Answer  string   `json:"correct_answer"`
}

// Summary короткая строка для поля exe_result главы.
func (e Exercise) Summary(kind ExerciseType) string {
	var sb strings.Builder
	sb.WriteString(string(kind))
	if e.Answer != "" {
		sb.WriteString(": expected answer '")
		sb.WriteString(e.Answer)
		sb.WriteString("'")
	}
	if len(e.Options) > 0 {
		sb.WriteString(" (")
		sb.WriteString(strings.Join(e.Options, " | "))
		sb.WriteString(")")
	}
	return sb.String()
}

// GeneratedImage декодированные байты картинки и ее формат.
type GeneratedImage struct {
	Data     []byte
	Format   string // расширение: png, jpg, webp
	MIMEType string
}

// GenerationRequest запрос на продолжение истории. Снимок сохраняется в metadata главы.
type GenerationRequest struct {
	Name             string       `json:"name"`
	Age              int          `json:"age"`
	SkillLevel       SkillLevel   `json:"skill_level"`
	Interests        []string     `json:"interests"`
	ComfortableWords []string     `json:"comfortable_words"`
	StrugglingWords  []string     `json:"struggling_words"`
	BigPicture       string       `json:"big_picture"`
	Summary          string       `json:"summary_of_previous_story"`
	LatestChoice     string       `json:"latest_choice"`
	ExerciseType     ExerciseType `json:"exercise_type"`
	Progression      int          `json:"progression"`
	TotalSteps       int          `json:"total_steps"`
	Model            string       `json:"model"`
	GenerateImage    bool         `json:"generate_image"`
}

// StoryInitRequest запрос на инициализацию истории.
type StoryInitRequest struct {
	Name       string     `json:"name"`
	Age        int        `json:"age"`
	SkillLevel SkillLevel `json:"skill_level"`
	Interests  []string   `json:"interests"`
	Model      string     `json:"model"`
}

// StoryInit результат инициализации: название и общий замысел истории.
type StoryInit struct {
	Title   string
	Premise string
}

// NewGenerationRequest собирает запрос из профиля и снимка сессии.
func NewGenerationRequest(p LearnerProfile, s StorySession, kind ExerciseType, model string) GenerationRequest {
	if model == "" {
		model = DefaultModel
	}
	return GenerationRequest{
		Name:             p.Name,
		Age:              p.Age,
		SkillLevel:       p.SkillLevel,
		Interests:        nonNil(p.Interests),
		ComfortableWords: nonNil(p.ComfortableWords),
		StrugglingWords:  nonNil(p.StrugglingWords),
		BigPicture:       s.Premise,
		Summary:          s.Summary,
		LatestChoice:     s.LastChoice,
		ExerciseType:     kind,
		Progression:      s.Progression,
		TotalSteps:       s.TotalSteps,
		Model:            model,
		GenerateImage:    true,
	}
}

// IsFinalStep - запрос на последний ход.
func (r GenerationRequest) IsFinalStep() bool {
	return r.Progression >= r.TotalSteps
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
