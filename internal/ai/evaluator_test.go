package ai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/spigell/jobsieve/internal/jobs"
)

type stubCompleter struct {
	response   string
	err        error
	lastPrompt string
	lastSystem string
}

func (s *stubCompleter) Complete(_ context.Context, prompt, system string) (string, error) {
	s.lastPrompt = prompt
	s.lastSystem = system
	if s.err != nil {
		return "", s.err
	}
	return s.response, nil
}

func (s *stubCompleter) Model() string { return "stub-model" }

func TestEvaluatorEvaluate(t *testing.T) {
	stub := &stubCompleter{response: "```json\n{\"score\": 82, \"reasoning\": \"Go and Kubernetes match\"}\n```"}
	evaluator := NewEvaluator(stub, zap.NewNop(), 0)

	candidate := jobs.Candidate{
		Platform:           "hh",
		ExternalID:         "1",
		Title:              "Senior Go Developer",
		WorkplaceType:      jobs.WorkplaceRemote,
		IsEasyApplyLike:    true,
		DescriptionSnippet: "Build platform services in Go",
	}
	profile := Profile{TargetRoles: []string{"Go Developer", "Platform Engineer"}, Seniority: "senior", CoreSkills: []string{"go"}}

	assessment, err := evaluator.Evaluate(context.Background(), candidate, profile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if assessment.Score != 82 || assessment.Reasoning != "Go and Kubernetes match" {
		t.Fatalf("unexpected assessment: %+v", assessment)
	}
	if assessment.Raw == "" {
		t.Fatalf("expected raw response to be kept")
	}

	for _, want := range []string{
		"Target roles: Go Developer, Platform Engineer",
		"Seniority: senior",
		"Title: Senior Go Developer",
		"Workplace type: remote",
		"Easy apply: yes",
		"Description:\nBuild platform services in Go",
		"Company: not provided",
		"Years of experience: not specified",
	} {
		if !strings.Contains(stub.lastPrompt, want) {
			t.Fatalf("prompt is missing %q:\n%s", want, stub.lastPrompt)
		}
	}
	if !strings.Contains(stub.lastSystem, `"reasoning"`) {
		t.Fatalf("expected system prompt to describe the response schema")
	}
}

func TestEvaluatorPropagatesCompleterError(t *testing.T) {
	cause := errors.New("deadline exceeded")
	evaluator := NewEvaluator(&stubCompleter{err: cause}, nil, 0)

	_, err := evaluator.Evaluate(context.Background(), jobs.Candidate{Title: "x"}, Profile{})
	if !errors.Is(err, cause) {
		t.Fatalf("expected completer error, got %v", err)
	}
}

func TestParseAssessment(t *testing.T) {
	cases := []struct {
		name      string
		raw       string
		wantScore float64
		wantErr   bool
	}{
		{name: "plain", raw: `{"score": 70, "reasoning": "ok"}`, wantScore: 70},
		{name: "string score", raw: `{"score": "55.5", "reasoning": "ok"}`, wantScore: 55.5},
		{name: "clamped high", raw: `{"score": 140, "reasoning": "ok"}`, wantScore: 100},
		{name: "clamped low", raw: `{"score": -3, "reasoning": "ok"}`, wantScore: 0},
		{name: "fenced", raw: "```\n{\"score\": 12, \"reasoning\": \"\"}\n```", wantScore: 12},
		{name: "missing score", raw: `{"reasoning": "ok"}`, wantErr: true},
		{name: "missing reasoning", raw: `{"score": 50}`, wantErr: true},
		{name: "null reasoning", raw: `{"score": 50, "reasoning": null}`, wantErr: true},
		{name: "non numeric score", raw: `{"score": "high", "reasoning": "ok"}`, wantErr: true},
		{name: "not json", raw: `I think it is a 7/10`, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseAssessment(tc.raw)
			if tc.wantErr {
				if !errors.Is(err, ErrMalformedResponse) {
					t.Fatalf("expected ErrMalformedResponse, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Score != tc.wantScore {
				t.Fatalf("score = %v, want %v", got.Score, tc.wantScore)
			}
		})
	}
}
