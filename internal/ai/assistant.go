package ai

import (
	"context"
	"errors"

	"github.com/spigell/jobsieve/internal/jobs"
)

// ErrMalformedResponse is returned when the assistant answer cannot be read as an assessment.
var ErrMalformedResponse = errors.New("malformed assistant response")

// Completer is a plain text completion backend.
type Completer interface {
	Complete(ctx context.Context, prompt, system string) (string, error)
	Model() string
}

// Assessment is the assistant's view of how well a posting fits the profile.
type Assessment struct {
	Score     float64
	Reasoning string
	Raw       string
}

// Assistant scores a single candidate against the target profile.
type Assistant interface {
	Evaluate(ctx context.Context, candidate jobs.Candidate, profile Profile) (*Assessment, error)
}

// Profile describes who the postings are matched for.
type Profile struct {
	Name               string   `mapstructure:"name"`
	TargetRoles        []string `mapstructure:"target-roles"`
	Seniority          string   `mapstructure:"seniority"`
	CoreSkills         []string `mapstructure:"core-skills"`
	YearsOfExperience  int      `mapstructure:"years-of-experience"`
	PreferredWorkplace []string `mapstructure:"preferred-workplace"`
}
