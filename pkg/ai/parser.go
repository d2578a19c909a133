package ai

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/safa0/google-rangerz/internal/domain"
)

// Теги разметки ответа сервиса генерации.
const (
	TagImage    = "img"
	TagText     = "txt"
	TagOptions  = "opt"
	TagExercise = "exe"

	// Теги ответа на инициализацию истории у LLM-бэкендов.
	TagTitle = "title"
	TagInfo  = "info"
)

// NarrativeTags обязательные сегменты ответа, в порядке проверки.
var NarrativeTags = []string{TagImage, TagText, TagOptions, TagExercise}

var (
	bracketTokenRe = regexp.MustCompile(`\[([^\[\]]*)\]`)
	whitespaceRe   = regexp.MustCompile(`\s+`)
	delimiterCache = map[string]*regexp.Regexp{}
)

func compileDelimiter(tags []string) *regexp.Regexp {
	quoted := make([]string, len(tags))
	for i, t := range tags {
		quoted[i] = regexp.QuoteMeta(t)
	}
	return regexp.MustCompile(`(?i)<(/?)(` + strings.Join(quoted, "|") + `)\s*>`)
}

func delimiterRe(tags []string) *regexp.Regexp {
	if re, ok := delimiterCache[strings.Join(tags, "|")]; ok {
		return re
	}
	return compileDelimiter(tags)
}

func init() {
	// map после init только читается
	for _, set := range [][]string{NarrativeTags, {TagTitle, TagInfo}} {
		delimiterCache[strings.Join(set, "|")] = compileDelimiter(set)
	}
}

// ExtractSegments достает содержимое парных тегов из сырого текста.
// Порядок тегов не важен, каждый тег встречается не больше одного раза,
// теги не вкладываются и не перекрываются. Отсутствие любого тега из tags - ошибка.
// Неизвестные теги считаются обычным текстом. Содержимое обрезается по краям.
func ExtractSegments(raw string, tags ...string) (map[string]string, error) {
	re := delimiterRe(tags)
	segments := make(map[string]string, len(tags))

	open := ""
	contentStart := 0
	for _, m := range re.FindAllStringSubmatchIndex(raw, -1) {
		closing := raw[m[2]:m[3]] == "/"
		tag := strings.ToLower(raw[m[4]:m[5]])

		if !closing {
			if open != "" {
				return nil, &domain.MalformedResponseError{Tag: open, Reason: fmt.Sprintf("unterminated tag, <%s> opened before </%s>", tag, open)}
			}
			if _, seen := segments[tag]; seen {
				return nil, &domain.MalformedResponseError{Tag: tag, Reason: "tag appears more than once"}
			}
			open = tag
			contentStart = m[1]
			continue
		}

		if open == "" {
			return nil, &domain.MalformedResponseError{Tag: tag, Reason: "closing tag without opening tag"}
		}
		if tag != open {
			return nil, &domain.MalformedResponseError{Tag: open, Reason: fmt.Sprintf("unterminated tag, found </%s> instead", tag)}
		}
		segments[tag] = strings.TrimSpace(raw[contentStart:m[0]])
		open = ""
	}
	if open != "" {
		return nil, &domain.MalformedResponseError{Tag: open, Reason: "unterminated tag"}
	}

	for _, tag := range tags {
		if _, ok := segments[tag]; !ok {
			return nil, &domain.MalformedResponseError{Tag: tag, Reason: "tag is missing"}
		}
	}
	return segments, nil
}

// ParseNarrative разбирает ответ сервиса генерации в NarrativeResponse.
// На последнем шаге истории сегмент <opt> может не содержать вариантов.
func ParseNarrative(raw string, finalStep bool) (*domain.NarrativeResponse, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, &domain.MalformedResponseError{Reason: "empty response"}
	}

	segments, err := ExtractSegments(raw, NarrativeTags...)
	if err != nil {
		return nil, err
	}

	for _, tag := range []string{TagImage, TagText, TagExercise} {
		if segments[tag] == "" {
			return nil, &domain.MalformedResponseError{Tag: tag, Reason: "segment is empty"}
		}
	}

	prompt, options, err := parseOptions(segments[TagOptions])
	if err != nil {
		return nil, err
	}
	if len(options) == 0 && !finalStep {
		return nil, &domain.MalformedResponseError{Tag: TagOptions, Reason: "no options before the final step"}
	}

	return &domain.NarrativeResponse{
		ImagePrompt:  segments[TagImage],
		Text:         segments[TagText],
		OptionPrompt: prompt,
		Options:      options,
		Exercise:     segments[TagExercise],
	}, nil
}

// parseOptions делит сегмент на текст вопроса и варианты в квадратных скобках.
func parseOptions(segment string) (string, []string, error) {
	matches := bracketTokenRe.FindAllStringSubmatch(segment, -1)
	options := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		label := strings.TrimSpace(m[1])
		if label == "" {
			return "", nil, &domain.MalformedResponseError{Tag: TagOptions, Reason: "empty option label"}
		}
		key := strings.ToLower(label)
		if _, dup := seen[key]; dup {
			return "", nil, &domain.MalformedResponseError{Tag: TagOptions, Reason: fmt.Sprintf("duplicate option '%s'", label)}
		}
		seen[key] = struct{}{}
		options = append(options, label)
	}

	rest := bracketTokenRe.ReplaceAllString(segment, " ")
	if strings.ContainsAny(rest, "[]") {
		return "", nil, &domain.MalformedResponseError{Tag: TagOptions, Reason: "unterminated option bracket"}
	}
	return collapse(rest), options, nil
}

// ParseExercise делит блок упражнения на задание и варианты.
// Первый вариант считается правильным ответом.
func ParseExercise(block string) domain.Exercise {
	matches := bracketTokenRe.FindAllStringSubmatch(block, -1)
	ex := domain.Exercise{
		Prompt:  collapse(bracketTokenRe.ReplaceAllString(block, " ")),
		Options: make([]string, 0, len(matches)),
	}
	for _, m := range matches {
		if opt := strings.TrimSpace(m[1]); opt != "" {
			ex.Options = append(ex.Options, opt)
		}
	}
	if len(ex.Options) > 0 {
		ex.Answer = ex.Options[0]
	}
	return ex
}

func collapse(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
