package ai

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/safa0/google-rangerz/internal/domain"
)

const initSystemPrompt = `You create short interactive stories that help children learn Swedish.
Invent a story for the learner described by the user.
Answer with exactly two tags and nothing else:
<title>story title in Swedish</title>
<info>the big picture of the whole story in 2-3 sentences, in English</info>`

const continueSystemPrompt = `You write one chapter of an interactive Swedish learning story for a child.
Use the learner's comfortable words freely and practice the struggling words.
Answer with exactly four tags, each used once:
<img>an English description of the chapter illustration</img>
<txt>the chapter text in Swedish; mark new words as [svenska](english)</txt>
<opt>a short question followed by 2-3 choices, each in square brackets</opt>
<exe>an exercise of the requested type; put answer choices in square brackets, correct one first</exe>
On the final step the story must end: <opt> contains a closing sentence and no choices.`

// RenderInitPrompt формирует пользовательский ввод для инициализации истории.
func RenderInitPrompt(req domain.StoryInitRequest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Learner name: %s\n", req.Name)
	fmt.Fprintf(&sb, "Age: %d\n", req.Age)
	fmt.Fprintf(&sb, "Skill level: %s\n", req.SkillLevel)
	fmt.Fprintf(&sb, "Interests: %s\n", listOrNone(req.Interests))
	return sb.String()
}

// RenderContinuePrompt формирует пользовательский ввод для очередной главы.
func RenderContinuePrompt(req domain.GenerationRequest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Learner name: %s\n", req.Name)
	fmt.Fprintf(&sb, "Age: %d\n", req.Age)
	fmt.Fprintf(&sb, "Skill level: %s\n", req.SkillLevel)
	fmt.Fprintf(&sb, "Interests: %s\n", listOrNone(req.Interests))
	fmt.Fprintf(&sb, "Comfortable words: %s\n", listOrNone(req.ComfortableWords))
	fmt.Fprintf(&sb, "Struggling words: %s\n", listOrNone(req.StrugglingWords))
	fmt.Fprintf(&sb, "\nBig picture:\n%s\n", orNone(req.BigPicture))
	fmt.Fprintf(&sb, "\nStory so far:\n%s\n", orNone(req.Summary))
	fmt.Fprintf(&sb, "\nLatest choice: %s\n", orNone(req.LatestChoice))
	fmt.Fprintf(&sb, "Exercise type: %s\n", req.ExerciseType)
	fmt.Fprintf(&sb, "Step %d of %d", req.Progression, req.TotalSteps)
	if req.IsFinalStep() {
		sb.WriteString(" (final step, end the story)")
	}
	sb.WriteString("\n")
	return sb.String()
}

// EstimateUsage считает токены через tiktoken, когда API их не вернул.
// Для неизвестных tiktoken моделей используется cl100k_base.
func EstimateUsage(model, prompt, completion string) UsageInfo {
	tke, err := tiktoken.EncodingForModel(model)
	if err != nil {
		tke, err = tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
		if err != nil {
			return UsageInfo{Estimated: true}
		}
	}
	p := len(tke.Encode(prompt, nil, nil))
	c := len(tke.Encode(completion, nil, nil))
	return UsageInfo{PromptTokens: p, CompletionTokens: c, TotalTokens: p + c, Estimated: true}
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}
