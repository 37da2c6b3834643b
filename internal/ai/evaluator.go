package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/spigell/jobsieve/internal/jobs"
	"github.com/spigell/jobsieve/internal/utils"
)

//go:embed system_prompt.md
var systemPrompt string

const defaultMaxLogLength = 200

// Evaluator turns a Completer into an Assistant.
type Evaluator struct {
	completer Completer
	logger    *zap.Logger
	maxLogLen int
}

func NewEvaluator(completer Completer, logger *zap.Logger, maxLogLength int) *Evaluator {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Evaluator{
		completer: completer,
		logger:    logger,
		maxLogLen: maxLogLength,
	}
}

func (e *Evaluator) Evaluate(ctx context.Context, candidate jobs.Candidate, profile Profile) (*Assessment, error) {
	prompt := BuildPrompt(candidate, profile)

	e.logger.Debug("assistant request",
		zap.String("candidate", candidate.Key().String()),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, e.maxLogLen)),
	)

	raw, err := e.completer.Complete(ctx, prompt, systemPrompt)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("assistant response",
		zap.String("candidate", candidate.Key().String()),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, e.maxLogLen)),
	)

	assessment, err := ParseAssessment(raw)
	if err != nil {
		return nil, err
	}
	assessment.Raw = raw
	return assessment, nil
}

// BuildPrompt renders the profile and the posting as the user message.
func BuildPrompt(candidate jobs.Candidate, profile Profile) string {
	var b strings.Builder

	b.WriteString("CANDIDATE PROFILE\n")
	fmt.Fprintf(&b, "Name: %s\n", orDefault(profile.Name, "not provided"))
	fmt.Fprintf(&b, "Target roles: %s\n", joinOrDefault(profile.TargetRoles, "not specified"))
	fmt.Fprintf(&b, "Seniority: %s\n", orDefault(profile.Seniority, "not specified"))
	fmt.Fprintf(&b, "Core skills: %s\n", joinOrDefault(profile.CoreSkills, "not specified"))
	years := "not specified"
	if profile.YearsOfExperience > 0 {
		years = strconv.Itoa(profile.YearsOfExperience)
	}
	fmt.Fprintf(&b, "Years of experience: %s\n", years)
	fmt.Fprintf(&b, "Workplace preference: %s\n", joinOrDefault(profile.PreferredWorkplace, "no preference"))

	b.WriteString("\nJOB LISTING\n")
	fmt.Fprintf(&b, "Title: %s\n", candidate.Title)
	fmt.Fprintf(&b, "Company: %s\n", orDefault(candidate.Company, "not provided"))
	fmt.Fprintf(&b, "Location: %s\n", orDefault(candidate.Location, "not provided"))
	fmt.Fprintf(&b, "Workplace type: %s\n", orDefault(string(candidate.WorkplaceType), "not specified"))
	fmt.Fprintf(&b, "Posted: %s\n", orDefault(candidate.PostedTime, "not specified"))
	easy := "no"
	if candidate.IsEasyApplyLike {
		easy = "yes"
	}
	fmt.Fprintf(&b, "Easy apply: %s\n", easy)
	if snippet := strings.TrimSpace(candidate.DescriptionSnippet); snippet != "" {
		fmt.Fprintf(&b, "Description:\n%s\n", snippet)
	}

	return b.String()
}

// ParseAssessment reads {"score", "reasoning"} from raw, tolerating a markdown fence.
// Both keys are required and the score must be numeric. The score is clamped to [0, 100].
func ParseAssessment(raw string) (*Assessment, error) {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	rawScore, ok := data["score"]
	if !ok {
		return nil, fmt.Errorf("%w: missing score", ErrMalformedResponse)
	}
	score := coerceFloat(rawScore)
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return nil, fmt.Errorf("%w: score %v is not a number", ErrMalformedResponse, rawScore)
	}

	rawReasoning, ok := data["reasoning"]
	if !ok || rawReasoning == nil {
		return nil, fmt.Errorf("%w: missing reasoning", ErrMalformedResponse)
	}

	return &Assessment{
		Score:     jobs.ClampScore(score),
		Reasoning: coerceString(rawReasoning),
	}, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		trimmed := strings.TrimSpace(val)
		if trimmed == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		if v == nil {
			return ""
		}
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}

func orDefault(s, fallback string) string {
	if s = strings.TrimSpace(s); s == "" {
		return fallback
	}
	return s
}

func joinOrDefault(items []string, fallback string) string {
	if len(items) == 0 {
		return fallback
	}
	return strings.Join(items, ", ")
}
